package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LogChannel 把告警写入结构化日志
type LogChannel struct {
	log  *zap.Logger
	name string
}

func NewLogChannel(name string, log *zap.Logger) *LogChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogChannel{log: log, name: name}
}

func (c *LogChannel) Send(_ context.Context, alert Alert) error {
	fields := make([]zap.Field, 0, len(alert.Fields)+2)
	fields = append(fields, zap.String("alert_level", string(alert.Level)), zap.Time("alert_ts", alert.Timestamp))
	for k, v := range alert.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch alert.Level {
	case LevelCritical, LevelError:
		c.log.Error(alert.Message, fields...)
	case LevelWarning:
		c.log.Warn(alert.Message, fields...)
	default:
		c.log.Info(alert.Message, fields...)
	}
	return nil
}

func (c *LogChannel) Name() string { return c.name }

// WebhookChannel 以 JSON POST 告警到外部地址（如 IM 机器人）
type WebhookChannel struct {
	name   string
	url    string
	client *http.Client
}

func NewWebhookChannel(name, url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookChannel{name: name, url: url, client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (c *WebhookChannel) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Level:     alert.Level,
		Message:   alert.Message,
		Timestamp: alert.Timestamp,
		Fields:    alert.Fields,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func (c *WebhookChannel) Name() string { return c.name }
