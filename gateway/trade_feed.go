package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ladder-maker-go/order"
)

// TradeHandler 接收属于本钱包、本交易对的一批成交。
type TradeHandler interface {
	HandleTrades(ctx context.Context, trades []order.Trade) error
}

// PairSource 返回当前基准交易对；settings 热更新后立即生效。
type PairSource interface {
	BaseAssetPair() (string, bool)
}

// LimitOrdersMessage 撮合系统推送的限价单执行批次。
type LimitOrdersMessage struct {
	Orders []LimitOrderWithTrades `json:"orders"`
}

type LimitOrderWithTrades struct {
	Order  ExecutedOrder   `json:"order"`
	Trades []ExecutedTrade `json:"trades"`
}

// ExecutedOrder 被成交的挂单；Volume 带符号，负数为卖单。
type ExecutedOrder struct {
	ID          string          `json:"id"`
	ExternalID  string          `json:"externalId"`
	ClientID    string          `json:"clientId"`
	AssetPairID string          `json:"assetPairId"`
	Status      string          `json:"status"`
	Volume      decimal.Decimal `json:"volume"`
	Price       decimal.Decimal `json:"price"`
}

type ExecutedTrade struct {
	TradeID   string          `json:"tradeId"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// FeedConfig 成交推送连接参数。
type FeedConfig struct {
	URL            string
	APIKey         string
	WalletID       string
	PingInterval   time.Duration
	ReconnectDelay time.Duration
}

// TradeFeed 订阅本钱包的限价单执行推送，过滤后转换为 order.Trade 交给 handler。
type TradeFeed struct {
	cfg     FeedConfig
	pairs   PairSource
	handler TradeHandler
	dialer  *websocket.Dialer
	log     *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewTradeFeed(cfg FeedConfig, pairs PairSource, handler TradeHandler, log *zap.Logger) *TradeFeed {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	return &TradeFeed{
		cfg:     cfg,
		pairs:   pairs,
		handler: handler,
		dialer:  websocket.DefaultDialer,
		log:     log,
	}
}

// Run 连接并读取推送，断线后按 ReconnectDelay 重连，直到 ctx 结束。
func (f *TradeFeed) Run(ctx context.Context) error {
	if f.cfg.URL == "" {
		return fmt.Errorf("trade feed url required")
	}
	for {
		err := f.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		f.log.Warn("Trade feed disconnected, reconnecting",
			zap.Duration("delay", f.cfg.ReconnectDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

func (f *TradeFeed) runOnce(ctx context.Context) error {
	header := http.Header{}
	if f.cfg.APIKey != "" {
		header.Set("X-API-Key", f.cfg.APIKey)
	}
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial trade feed: %w", err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		conn.Close()
	}()
	f.log.Info("Trade feed connected", zap.String("url", f.cfg.URL))

	readTimeout := 2 * f.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go f.pingLoop(ctx, conn, done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		trades, err := f.decode(msg)
		if err != nil {
			f.log.Warn("Skip malformed trade message", zap.Error(err))
			continue
		}
		if len(trades) == 0 {
			continue
		}
		if err := f.handler.HandleTrades(ctx, trades); err != nil {
			// 闸门超时等错误由协调器计数，这里只记录
			f.log.Error("Failed to handle trades", zap.Int("trades", len(trades)), zap.Error(err))
		}
	}
}

// pingLoop 定期发送 ping；ctx 结束时关闭连接让读循环退出。
func (f *TradeFeed) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(f.cfg.PingInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				f.log.Debug("Trade feed ping failed", zap.Error(err))
			}
		}
	}
}

// decode 解析一条推送，只保留本钱包、当前基准交易对的成交。
func (f *TradeFeed) decode(msg []byte) ([]order.Trade, error) {
	var m LimitOrdersMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, err
	}
	base, ok := f.pairs.BaseAssetPair()
	if !ok {
		return nil, nil
	}
	return FilterTrades(m, f.cfg.WalletID, base), nil
}

// FilterTrades 把执行批次转换为成交列表。方向取自被成交挂单的 Volume 符号。
func FilterTrades(m LimitOrdersMessage, walletID, assetPairID string) []order.Trade {
	var trades []order.Trade
	for _, o := range m.Orders {
		if o.Order.ClientID != walletID || !strings.EqualFold(o.Order.AssetPairID, assetPairID) {
			continue
		}
		side := order.TradeTypeBuy
		if o.Order.Volume.IsNegative() {
			side = order.TradeTypeSell
		}
		for _, t := range o.Trades {
			if t.Volume.IsZero() {
				continue
			}
			trades = append(trades, order.Trade{
				ID:          t.TradeID,
				AssetPairID: o.Order.AssetPairID,
				Price:       t.Price,
				Volume:      t.Volume.Abs(),
				Type:        side,
				Time:        t.Timestamp,
			})
		}
	}
	return trades
}

// Connected 是否已建立连接
func (f *TradeFeed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil
}
