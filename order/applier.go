package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ladder-maker-go/infrastructure/logger"
	"ladder-maker-go/metrics"
)

var (
	ErrUnknownPair  = errors.New("unknown asset pair")
	ErrNilResponse  = errors.New("venue response is nil")
	ErrWalletNotSet = errors.New("wallet id is not set")
)

const (
	unknownErrorMessage = "Unknown error"
	zeroVolumeMessage   = "Volume is zero after rounding"
)

// ApplierConfig 下单层配置。
type ApplierConfig struct {
	WalletID string
	// Timeout 单次交易所调用的上限；<=0 时只依赖调用方 ctx。
	Timeout time.Duration
}

// Applier 把某交易对的期望订单集同步到交易所。
// 与上次成功提交的订单集相同时不发请求；否则整体撤旧挂新。
type Applier struct {
	venue Venue
	pairs PairInfoProvider
	cfg   ApplierConfig
	log   *zap.Logger

	mu      sync.Mutex
	applied map[string][]LimitOrder
}

func NewApplier(venue Venue, pairs PairInfoProvider, cfg ApplierConfig, log *zap.Logger) *Applier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{
		venue:   venue,
		pairs:   pairs,
		cfg:     cfg,
		log:     log,
		applied: make(map[string][]LimitOrder),
	}
}

// Apply 提交订单集，返回带回执标注的订单。
// 交易所返回应答后（不论单笔是否被拒）该订单集成为新的基准。
func (a *Applier) Apply(ctx context.Context, assetPairID string, orders []LimitOrder) ([]LimitOrder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if last, ok := a.applied[assetPairID]; ok && SameQuotes(orders, last) {
		a.log.Debug("New orders are the same as previously placed, don't replace",
			logger.AssetPair(assetPairID),
			zap.Int("count", len(orders)))
		metrics.RecordVenueRequest(assetPairID, metrics.ResultSkipped)
		return Clone(last), nil
	}

	if a.cfg.WalletID == "" {
		return nil, ErrWalletNotSet
	}
	info, err := a.pairs.PairInfo(assetPairID)
	if err != nil {
		return nil, fmt.Errorf("pair info: %w", err)
	}

	submitted := Clone(orders)
	if submitted == nil {
		submitted = []LimitOrder{}
	}
	byCorrelation := make(map[string]int, len(submitted))
	items := make([]MultiOrderItem, 0, len(submitted))
	for i := range submitted {
		o := &submitted[i]
		o.Error = ErrorNone
		o.ErrorMessage = ""
		item := MultiOrderItem{
			ID:          uuid.NewString(),
			OrderAction: toOrderAction(o.TradeType),
			Price:       info.RoundPrice(o.Price),
			Volume:      info.RoundVolume(o.Volume),
		}
		if item.Volume.IsZero() {
			// 按精度取整后为零，不发给交易所，直接标注
			o.Error = ErrorTooSmallVolume
			o.ErrorMessage = zeroVolumeMessage
			metrics.RecordOrderRejection(assetPairID, string(o.Error))
			a.log.Warn("Order volume rounds to zero, skipped",
				logger.AssetPair(assetPairID),
				zap.Stringer("volume", o.Volume),
				zap.Int32("volume_accuracy", info.VolumeAccuracy))
			continue
		}
		if info.BelowMinVolume(o.Volume) {
			// 仍然提交，由交易所拒绝并回写错误
			a.log.Warn("Order volume is below min volume",
				logger.AssetPair(assetPairID),
				zap.Stringer("volume", item.Volume),
				zap.Stringer("min_volume", info.MinVolume))
		}
		byCorrelation[item.ID] = i
		items = append(items, item)
	}

	req := MultiLimitOrder{
		ID:                   uuid.NewString(),
		ClientID:             a.cfg.WalletID,
		AssetPairID:          assetPairID,
		CancelPreviousOrders: true,
		CancelMode:           CancelModeBothSides,
		Orders:               items,
	}

	a.log.Info("ME place multi limit order request",
		logger.AssetPair(assetPairID),
		logger.RequestID(req.ID),
		zap.Int("orders", len(items)))

	callCtx := ctx
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := a.venue.PlaceMultiLimitOrder(callCtx, req)
	metrics.ObserveVenueLatency(assetPairID, time.Since(start))
	if err != nil {
		metrics.RecordVenueRequest(assetPairID, metrics.ResultFailed)
		a.log.Error("An error occurred during creating limit orders",
			logger.AssetPair(assetPairID),
			logger.RequestID(req.ID),
			zap.Error(err))
		return nil, fmt.Errorf("place multi limit order %s: %w", assetPairID, err)
	}
	if resp == nil {
		metrics.RecordVenueRequest(assetPairID, metrics.ResultFailed)
		return nil, fmt.Errorf("place multi limit order %s: %w", assetPairID, ErrNilResponse)
	}
	metrics.RecordVenueRequest(assetPairID, metrics.ResultSubmitted)

	a.log.Info("ME place multi limit order response",
		logger.AssetPair(assetPairID),
		logger.RequestID(req.ID),
		zap.String("status", string(resp.Status)),
		zap.Int("statuses", len(resp.Statuses)))

	for _, st := range resp.Statuses {
		i, ok := byCorrelation[st.ID]
		if !ok {
			continue
		}
		o := &submitted[i]
		o.Error = toOrderError(st.Status)
		switch {
		case o.Error != ErrorUnknown:
			o.ErrorMessage = st.StatusReason
		case st.StatusReason != "":
			o.ErrorMessage = st.StatusReason
		default:
			o.ErrorMessage = unknownErrorMessage
		}
		if o.Error != ErrorNone {
			metrics.RecordOrderRejection(assetPairID, string(o.Error))
		}
	}

	a.applied[assetPairID] = Clone(submitted)
	return submitted, nil
}

// LastApplied 返回某交易对上次提交的订单集。
func (a *Applier) LastApplied(assetPairID string) ([]LimitOrder, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	orders, ok := a.applied[assetPairID]
	return Clone(orders), ok
}
