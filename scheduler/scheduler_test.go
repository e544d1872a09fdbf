package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewValidates(t *testing.T) {
	_, err := New(0, time.Second, func(context.Context) error { return nil }, nil)
	assert.Error(t, err)
	_, err = New(time.Second, time.Second, nil, nil)
	assert.Error(t, err)
}

func TestExecuteNowIsolatesFailures(t *testing.T) {
	var calls int32
	task := func(ctx context.Context) error {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			return errors.New("retrain failed")
		case 2:
			panic("boom")
		}
		return nil
	}
	s, err := New(time.Hour, time.Second, task, zap.NewNop())
	require.NoError(t, err)

	var mu sync.Mutex
	var outcomes []Outcome
	s.Subscribe(func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})

	ctx := context.Background()
	assert.EqualError(t, s.ExecuteNow(ctx), "retrain failed")
	err = s.ExecuteNow(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.NoError(t, s.ExecuteNow(ctx))

	stats := s.Stats()
	assert.Equal(t, int64(3), stats.ExecutionCount)
	assert.Equal(t, int64(2), stats.FailureCount)
	assert.Empty(t, stats.LastError)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 3)
	assert.Equal(t, TriggerManual, outcomes[0].Trigger)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[2].Err)
}

func TestExecuteNowAppliesTimeout(t *testing.T) {
	task := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	s, err := New(time.Hour, 10*time.Millisecond, task, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.ExecuteNow(context.Background()), context.DeadlineExceeded)
}

func TestDisabledSkipsManualRuns(t *testing.T) {
	s, err := New(time.Hour, 0, func(context.Context) error { return nil }, nil)
	require.NoError(t, err)
	s.SetEnabled(false)
	assert.ErrorIs(t, s.ExecuteNow(context.Background()), ErrDisabled)
}

func TestStartTicksUntilStopped(t *testing.T) {
	ran := make(chan struct{}, 16)
	task := func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		case <-ctx.Done():
		}
		return errors.New("keeps failing")
	}
	s, err := New(5*time.Millisecond, time.Second, task, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	// the loop survives failing runs
	for i := 0; i < 3; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not tick")
		}
	}
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.Error(t, s.Stop())
	assert.GreaterOrEqual(t, s.Stats().FailureCount, int64(3))
}

func TestStartStopsWithContext(t *testing.T) {
	s, err := New(time.Hour, 0, func(context.Context) error { return nil }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)
}
