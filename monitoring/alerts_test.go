package monitoring

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu     sync.Mutex
	bodies []map[string]any
	status int
}

func (c *capture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	json.Unmarshal(data, &body)
	c.mu.Lock()
	c.bodies = append(c.bodies, body)
	c.mu.Unlock()
	if c.status != 0 {
		w.WriteHeader(c.status)
	}
}

func TestAlerterPayloads(t *testing.T) {
	hook, feishu, ding := &capture{}, &capture{}, &capture{}
	url := func(c *capture) string {
		srv := httptest.NewServer(c)
		t.Cleanup(srv.Close)
		return srv.URL
	}

	a := NewAlerter([]Webhook{
		{Name: "ops", URL: url(hook)},
		{Name: "feishu", Type: "feishu", URL: url(feishu)},
		{Name: "ding", Type: "dingding", URL: url(ding)},
	}, RateLimit{}, nil, nil)

	err := a.Send(context.Background(), Alert{Level: LevelError, Title: "retrain failed", Message: "boom", Source: "scheduler"})
	require.NoError(t, err)

	require.Len(t, hook.bodies, 1)
	assert.Equal(t, "retrain failed", hook.bodies[0]["title"])
	assert.NotEmpty(t, hook.bodies[0]["id"])

	require.Len(t, feishu.bodies, 1)
	assert.Equal(t, "text", feishu.bodies[0]["msg_type"])
	content := feishu.bodies[0]["content"].(map[string]any)
	assert.Contains(t, content["text"], "[error] retrain failed\nboom")

	require.Len(t, ding.bodies, 1)
	assert.Equal(t, "text", ding.bodies[0]["msgtype"])

	assert.Equal(t, int64(3), a.Stats().Sent)
}

func TestAlerterRateLimit(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	a := NewAlerter([]Webhook{{Name: "ops", URL: srv.URL}}, RateLimit{MaxPerHour: 2, Cooldown: time.Minute}, nil, nil)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	send := func() { require.NoError(t, a.Send(context.Background(), Alert{Title: "x"})) }

	send()
	send() // within cooldown
	now = now.Add(2 * time.Minute)
	send()
	now = now.Add(2 * time.Minute)
	send() // hourly cap reached
	now = now.Add(time.Hour)
	send()

	assert.Len(t, c.bodies, 3)
	stats := a.Stats()
	assert.Equal(t, int64(3), stats.Sent)
	assert.Equal(t, int64(2), stats.Throttled)
}

func TestAlerterChannelFailure(t *testing.T) {
	c := &capture{status: http.StatusInternalServerError}
	srv := httptest.NewServer(c)
	defer srv.Close()

	a := NewAlerter([]Webhook{{Name: "ops", URL: srv.URL}}, RateLimit{}, nil, nil)
	err := a.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel ops")
	assert.Equal(t, int64(1), a.Stats().Failed)
}
