package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertLevel 告警级别
type AlertLevel string

const (
	LevelInfo     AlertLevel = "info"
	LevelWarning  AlertLevel = "warning"
	LevelError    AlertLevel = "error"
	LevelCritical AlertLevel = "critical"
)

// Alert 告警结构
type Alert struct {
	ID        string         `json:"id"`
	Level     AlertLevel     `json:"level"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Webhook 告警渠道
type Webhook struct {
	Name string `yaml:"name" validate:"required"`
	// Type selects the payload shape: webhook, feishu or dingding.
	Type string `yaml:"type" validate:"omitempty,oneof=webhook feishu dingding"`
	URL  string `yaml:"url" validate:"required,url"`
}

// RateLimit 限流配置
type RateLimit struct {
	MaxPerHour int           `yaml:"max_per_hour" validate:"gte=0"`
	Cooldown   time.Duration `yaml:"cooldown"`
}

// AlertStats 告警统计
type AlertStats struct {
	Sent      int64            `json:"sent"`
	Throttled int64            `json:"throttled"`
	Failed    int64            `json:"failed"`
	ByChannel map[string]int64 `json:"by_channel"`
	LastAlert time.Time        `json:"last_alert"`
}

type rateTracker struct {
	hourCount int
	hourReset time.Time
	lastSent  time.Time
}

var textTemplate = template.Must(template.New("alert").Parse(
	"[{{.Level}}] {{.Title}}\n{{.Message}}\n{{.Timestamp.Format \"2006-01-02 15:04:05\"}}"))

// Alerter posts alerts to webhook channels with per-channel rate limits.
type Alerter struct {
	mu         sync.Mutex
	channels   []Webhook
	limit      RateLimit
	trackers   map[string]*rateTracker
	stats      AlertStats
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewAlerter 创建告警器；client 为空时使用 10 秒超时的默认客户端
func NewAlerter(channels []Webhook, limit RateLimit, client *http.Client, logger *zap.Logger) *Alerter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerter{
		channels:   channels,
		limit:      limit,
		trackers:   make(map[string]*rateTracker),
		stats:      AlertStats{ByChannel: make(map[string]int64)},
		httpClient: client,
		logger:     logger.Named("alerts"),
		now:        time.Now,
	}
}

// Send delivers alert to every channel that is not throttled. Channel
// failures are joined into the returned error.
func (a *Alerter) Send(ctx context.Context, alert Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = a.now()
	}

	var errs []error
	for _, ch := range a.channels {
		if !a.allow(ch.Name) {
			a.logger.Debug("alert throttled", zap.String("channel", ch.Name), zap.String("title", alert.Title))
			continue
		}
		payload, err := buildPayload(ch.Type, alert)
		if err == nil {
			err = a.post(ctx, ch.URL, payload)
		}
		a.record(ch.Name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.Name, err))
			continue
		}
		a.logger.Info("alert sent", zap.String("channel", ch.Name), zap.String("id", alert.ID))
	}
	return errors.Join(errs...)
}

func (a *Alerter) allow(channel string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	t, ok := a.trackers[channel]
	if !ok {
		t = &rateTracker{hourReset: now.Truncate(time.Hour)}
		a.trackers[channel] = t
	}
	if now.Sub(t.hourReset) >= time.Hour {
		t.hourCount = 0
		t.hourReset = now.Truncate(time.Hour)
	}
	throttled := (a.limit.MaxPerHour > 0 && t.hourCount >= a.limit.MaxPerHour) ||
		(a.limit.Cooldown > 0 && !t.lastSent.IsZero() && now.Sub(t.lastSent) < a.limit.Cooldown)
	if throttled {
		a.stats.Throttled++
		return false
	}
	t.hourCount++
	t.lastSent = now
	return true
}

func (a *Alerter) record(channel string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.stats.Failed++
		return
	}
	a.stats.Sent++
	a.stats.ByChannel[channel]++
	a.stats.LastAlert = a.now()
}

// Stats 返回统计快照
func (a *Alerter) Stats() AlertStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.stats
	out.ByChannel = make(map[string]int64, len(a.stats.ByChannel))
	for k, v := range a.stats.ByChannel {
		out.ByChannel[k] = v
	}
	return out
}

// buildPayload shapes the body for the channel type. Feishu and DingTalk
// bots take a plain text message; a generic webhook gets the alert itself.
func buildPayload(kind string, alert Alert) (any, error) {
	switch kind {
	case "", "webhook":
		return alert, nil
	case "feishu", "dingding":
		var b strings.Builder
		if err := textTemplate.Execute(&b, alert); err != nil {
			return nil, fmt.Errorf("render alert: %w", err)
		}
		if kind == "feishu" {
			return map[string]any{"msg_type": "text", "content": map[string]string{"text": b.String()}}, nil
		}
		return map[string]any{"msgtype": "text", "text": map[string]string{"content": b.String()}}, nil
	}
	return nil, fmt.Errorf("unknown channel type %q", kind)
}

func (a *Alerter) post(ctx context.Context, url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
