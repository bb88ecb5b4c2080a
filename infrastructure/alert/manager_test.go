package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// mockChannel 记录收到的告警
type mockChannel struct {
	name   string
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (c *mockChannel) Send(_ context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *mockChannel) Name() string { return c.name }

func (c *mockChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func TestManager_SendAlert(t *testing.T) {
	mock := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{mock}, time.Minute, time.Second)

	require.NoError(t, mgr.SendAlert(Alert{
		Level:   LevelCritical,
		Message: "Trade volume is not fully tracked",
		Fields:  map[string]interface{}{"trade_id": "t1"},
	}))
	require.Equal(t, 1, mock.count())
	got := mock.alerts[0]
	assert.Equal(t, LevelCritical, got.Level)
	assert.Equal(t, "t1", got.Fields["trade_id"])
	assert.False(t, got.Timestamp.IsZero())
}

func TestManager_Throttling(t *testing.T) {
	mock := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{mock}, 50*time.Millisecond, time.Second)
	send := func(level Level, msg string) {
		require.NoError(t, mgr.SendAlert(Alert{Level: level, Message: msg}))
	}

	send(LevelError, "Error on placing orders")
	send(LevelError, "Error on placing orders")
	assert.Equal(t, 1, mock.count())

	// 不同级别或消息互不影响
	send(LevelWarning, "Error on placing orders")
	send(LevelError, "Inventory mismatch")
	assert.Equal(t, 3, mock.count())

	time.Sleep(60 * time.Millisecond)
	send(LevelError, "Error on placing orders")
	assert.Equal(t, 4, mock.count())

	mgr.ResetThrottle()
	send(LevelError, "Error on placing orders")
	assert.Equal(t, 5, mock.count())
}

func TestManager_NotifyIsAsync(t *testing.T) {
	mock := &mockChannel{name: "mock"}
	mgr := NewManager([]Channel{mock}, time.Minute, time.Second)

	mgr.Notify(LevelCritical, "Inventory mismatch", map[string]interface{}{"levels": "1"})
	assert.Eventually(t, func() bool { return mock.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestManager_ChannelFailures(t *testing.T) {
	bad := &mockChannel{name: "bad", err: errors.New("down")}
	good := &mockChannel{name: "good"}

	mgr := NewManager([]Channel{bad, good}, time.Minute, time.Second)
	assert.NoError(t, mgr.SendAlert(Alert{Level: LevelInfo, Message: "partial"}))
	assert.Equal(t, 1, good.count())

	mgr = NewManager([]Channel{bad}, time.Minute, time.Second)
	err := mgr.SendAlert(Alert{Level: LevelInfo, Message: "all failed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel bad failed")
}

func TestThrottler(t *testing.T) {
	th := NewThrottler(time.Hour)
	assert.True(t, th.Allow("a"))
	assert.False(t, th.Allow("a"))
	assert.True(t, th.Allow("b"))
	th.Clear()
	assert.True(t, th.Allow("a"))
}

func TestLogChannel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ch := NewLogChannel("log", zap.New(core))

	require.NoError(t, ch.Send(context.Background(), Alert{Level: LevelCritical, Message: "boom", Fields: map[string]interface{}{"asset_pair": "BTCUSD"}}))
	require.NoError(t, ch.Send(context.Background(), Alert{Level: LevelWarning, Message: "careful"}))
	require.NoError(t, ch.Send(context.Background(), Alert{Level: LevelInfo, Message: "fyi"}))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "BTCUSD", entries[0].ContextMap()["asset_pair"])
	assert.Equal(t, "CRITICAL", entries[0].ContextMap()["alert_level"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.InfoLevel, entries[2].Level)
	assert.Equal(t, "log", ch.Name())
}

func TestWebhookChannel(t *testing.T) {
	var got webhookPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer ts.Close()

	ch := NewWebhookChannel("hook", ts.URL, time.Second)
	require.NoError(t, ch.Send(context.Background(), Alert{Level: LevelError, Message: "venue down", Timestamp: time.Now()}))
	assert.Equal(t, LevelError, got.Level)
	assert.Equal(t, "venue down", got.Message)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	err := NewWebhookChannel("hook", failing.URL, time.Second).Send(context.Background(), Alert{Level: LevelError})
	assert.Error(t, err)
}
