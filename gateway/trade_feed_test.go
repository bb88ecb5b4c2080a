package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ladder-maker-go/order"
)

type staticPair string

func (p staticPair) BaseAssetPair() (string, bool) { return string(p), p != "" }

type collectHandler struct {
	mu      sync.Mutex
	batches [][]order.Trade
}

func (h *collectHandler) HandleTrades(_ context.Context, trades []order.Trade) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, trades)
	return nil
}

func (h *collectHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.batches)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleMessage() LimitOrdersMessage {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return LimitOrdersMessage{Orders: []LimitOrderWithTrades{
		{
			Order: ExecutedOrder{ClientID: "wallet-1", AssetPairID: "BTCUSD", Volume: dec("-5")},
			Trades: []ExecutedTrade{
				{TradeID: "t1", Price: dec("110"), Volume: dec("2"), Timestamp: ts},
				{TradeID: "t0", Price: dec("110"), Volume: dec("0"), Timestamp: ts},
			},
		},
		{
			Order:  ExecutedOrder{ClientID: "wallet-1", AssetPairID: "BTCUSD", Volume: dec("3")},
			Trades: []ExecutedTrade{{TradeID: "t2", Price: dec("90"), Volume: dec("-1.5"), Timestamp: ts}},
		},
		{
			Order:  ExecutedOrder{ClientID: "other", AssetPairID: "BTCUSD", Volume: dec("3")},
			Trades: []ExecutedTrade{{TradeID: "t3", Price: dec("90"), Volume: dec("1")}},
		},
		{
			Order:  ExecutedOrder{ClientID: "wallet-1", AssetPairID: "BTCEUR", Volume: dec("3")},
			Trades: []ExecutedTrade{{TradeID: "t4", Price: dec("80"), Volume: dec("1")}},
		},
	}}
}

func TestFilterTrades(t *testing.T) {
	trades := FilterTrades(sampleMessage(), "wallet-1", "BTCUSD")
	require.Len(t, trades, 2)

	assert.Equal(t, "t1", trades[0].ID)
	assert.Equal(t, order.TradeTypeSell, trades[0].Type)
	assert.True(t, trades[0].Volume.Equal(dec("2")))
	assert.True(t, trades[0].SignedVolume().Equal(dec("-2")))

	assert.Equal(t, "t2", trades[1].ID)
	assert.Equal(t, order.TradeTypeBuy, trades[1].Type)
	assert.True(t, trades[1].Volume.Equal(dec("1.5")))

	assert.Empty(t, FilterTrades(sampleMessage(), "wallet-2", "BTCUSD"))
}

func TestTradeFeed_Decode(t *testing.T) {
	raw, err := json.Marshal(sampleMessage())
	require.NoError(t, err)

	f := NewTradeFeed(FeedConfig{WalletID: "wallet-1"}, staticPair("BTCUSD"), &collectHandler{}, nil)
	trades, err := f.decode(raw)
	require.NoError(t, err)
	assert.Len(t, trades, 2)

	// 未配置基准对时忽略所有成交
	f = NewTradeFeed(FeedConfig{WalletID: "wallet-1"}, staticPair(""), &collectHandler{}, nil)
	trades, err = f.decode(raw)
	require.NoError(t, err)
	assert.Empty(t, trades)

	_, err = f.decode([]byte("{"))
	assert.Error(t, err)
}

func TestTradeFeed_RunForwardsAndReconnects(t *testing.T) {
	raw, err := json.Marshal(sampleMessage())
	require.NoError(t, err)

	upgrader := websocket.Upgrader{}
	var connects sync.WaitGroup
	connects.Add(2)
	var once [2]sync.Once
	var n int
	var nmu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		nmu.Lock()
		i := n
		n++
		nmu.Unlock()
		if i < 2 {
			once[i].Do(connects.Done)
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
		_ = conn.WriteMessage(websocket.TextMessage, raw)
		if i == 0 {
			// 第一次连接发送后断开，触发重连
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	h := &collectHandler{}
	f := NewTradeFeed(FeedConfig{
		URL:            "ws" + strings.TrimPrefix(ts.URL, "http"),
		APIKey:         "key",
		WalletID:       "wallet-1",
		PingInterval:   50 * time.Millisecond,
		ReconnectDelay: 10 * time.Millisecond,
	}, staticPair("BTCUSD"), h, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	assert.Eventually(t, func() bool { return h.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	connects.Wait()
	assert.Eventually(t, f.Connected, time.Second, 5*time.Millisecond)

	h.mu.Lock()
	first := h.batches[0]
	h.mu.Unlock()
	require.Len(t, first, 2)
	assert.Equal(t, "t1", first[0].ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("trade feed did not stop")
	}
	assert.False(t, f.Connected())
}

func TestTradeFeed_RequiresURL(t *testing.T) {
	f := NewTradeFeed(FeedConfig{}, staticPair("BTCUSD"), &collectHandler{}, nil)
	assert.Error(t, f.Run(context.Background()))
}
