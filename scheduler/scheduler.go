// Package scheduler 周期性重训练调度器
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of scheduled work.
type Task func(ctx context.Context) error

// Outcome describes a finished execution.
type Outcome struct {
	Run       int64         `json:"run"`
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Notifier receives every outcome, successful or not.
type Notifier func(Outcome)

const (
	TriggerTick   = "tick"
	TriggerManual = "manual"
)

var ErrDisabled = errors.New("scheduler is disabled")

// Stats 调度器统计
type Stats struct {
	Running        bool      `json:"running"`
	Enabled        bool      `json:"enabled"`
	Interval       string    `json:"interval"`
	ExecutionCount int64     `json:"execution_count"`
	FailureCount   int64     `json:"failure_count"`
	LastExecution  time.Time `json:"last_execution"`
	LastError      string    `json:"last_error,omitempty"`
	NextExecution  time.Time `json:"next_execution"`
}

// Scheduler runs a task on a fixed interval. A failing or panicking run is
// logged and counted; it never stops the loop.
type Scheduler struct {
	mu             sync.RWMutex
	running        bool
	enabled        bool
	interval       time.Duration
	timeout        time.Duration
	lastExecution  time.Time
	executionCount int64
	failureCount   int64
	lastError      string
	notifiers      []Notifier

	task   Task
	logger *zap.Logger
	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New 创建调度器
func New(interval, timeout time.Duration, task Task, logger *zap.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval %s", interval)
	}
	if task == nil {
		return nil, errors.New("task required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		interval: interval,
		timeout:  timeout,
		enabled:  true,
		task:     task,
		logger:   logger.Named("scheduler"),
	}, nil
}

// Subscribe registers a notifier for run outcomes.
func (s *Scheduler) Subscribe(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Start launches the loop. It ends when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx, s.done)
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return errors.New("scheduler is not running")
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SetEnabled pauses or resumes ticks without stopping the loop.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	s.logger.Info("scheduler enabled changed", zap.Bool("enabled", enabled))
}

func (s *Scheduler) isEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.isEnabled() {
				continue
			}
			s.execute(ctx, TriggerTick)
		}
	}
}

// ExecuteNow runs the task immediately and returns its error.
func (s *Scheduler) ExecuteNow(ctx context.Context) error {
	if !s.isEnabled() {
		return ErrDisabled
	}
	return s.execute(ctx, TriggerManual).Err
}

// execute runs the task once under the per-run timeout. Runs never overlap.
func (s *Scheduler) execute(ctx context.Context, trigger string) Outcome {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	s.mu.Lock()
	s.executionCount++
	s.lastExecution = start
	run := s.executionCount
	s.mu.Unlock()

	logger := s.logger.With(zap.Int64("run", run), zap.String("trigger", trigger))
	logger.Info("execution started")

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	err := s.safeRun(runCtx)

	outcome := Outcome{Run: run, Trigger: trigger, StartedAt: start, Duration: time.Since(start), Err: err}
	s.mu.Lock()
	if err != nil {
		s.failureCount++
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	notifiers := append([]Notifier(nil), s.notifiers...)
	s.mu.Unlock()

	if err != nil {
		logger.Error("execution failed", zap.Error(err), zap.Duration("duration", outcome.Duration))
	} else {
		logger.Info("execution completed", zap.Duration("duration", outcome.Duration))
	}
	for _, notify := range notifiers {
		notify(outcome)
	}
	return outcome
}

func (s *Scheduler) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return s.task(ctx)
}

// Stats 获取调度器统计信息
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Running:        s.running,
		Enabled:        s.enabled,
		Interval:       s.interval.String(),
		ExecutionCount: s.executionCount,
		FailureCount:   s.failureCount,
		LastExecution:  s.lastExecution,
		LastError:      s.lastError,
	}
	if s.running && s.enabled && !s.lastExecution.IsZero() {
		stats.NextExecution = s.lastExecution.Add(s.interval)
	}
	return stats
}
