package alert

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息
type Alert struct {
	Level     Level
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警通道接口
type Channel interface {
	Send(ctx context.Context, alert Alert) error
	Name() string
}

// Manager 告警管理器：同一级别、同一消息在限流间隔内只发送一次。
type Manager struct {
	channels []Channel
	throttle *Throttler
	timeout  time.Duration
}

// Throttler 告警限流器
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	mu       sync.Mutex
}

// NewThrottler 创建限流器
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

// Allow 检查是否允许发送（限流）
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	lastTime, exists := t.lastSent[key]
	if !exists || now.Sub(lastTime) >= t.interval {
		t.lastSent[key] = now
		return true
	}
	return false
}

// Clear 清空所有限流记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// NewManager 创建告警管理器。timeout 限制单次发送所有通道的总耗时。
func NewManager(channels []Channel, throttleInterval, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
		timeout:  timeout,
	}
}

// SendAlert 发送告警。只有所有通道都失败时返回错误。
func (m *Manager) SendAlert(alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if !m.throttle.Allow(fmt.Sprintf("%s:%s", alert.Level, alert.Message)) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var lastErr error
	successCount := 0
	for _, ch := range m.channels {
		if err := ch.Send(ctx, alert); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
		} else {
			successCount++
		}
	}
	if successCount == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// Notify 异步发送告警并忽略通道错误。协调器在闸门内调用，不能被外部通道阻塞。
func (m *Manager) Notify(level Level, message string, fields map[string]interface{}) {
	a := Alert{Level: level, Message: message, Fields: fields, Timestamp: time.Now()}
	go func() { _ = m.SendAlert(a) }()
}

// ResetThrottle 重置限流器
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}
