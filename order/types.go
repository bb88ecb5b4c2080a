package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeType 买卖方向。
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// Opposite 返回相反方向。
func (t TradeType) Opposite() TradeType {
	if t == TradeTypeBuy {
		return TradeTypeSell
	}
	return TradeTypeBuy
}

// LimitOrderError 是交易所对单笔挂单的回执分类。
type LimitOrderError string

const (
	ErrorNone                 LimitOrderError = ""
	ErrorUnknown              LimitOrderError = "unknown"
	ErrorLowBalance           LimitOrderError = "low_balance"
	ErrorNotEnoughFunds       LimitOrderError = "not_enough_funds"
	ErrorInvalidPrice         LimitOrderError = "invalid_price"
	ErrorInvalidVolume        LimitOrderError = "invalid_volume"
	ErrorTooSmallVolume       LimitOrderError = "too_small_volume"
	ErrorPriceGapTooHigh      LimitOrderError = "price_gap_too_high"
	ErrorLeadToNegativeSpread LimitOrderError = "lead_to_negative_spread"
	ErrorDuplicate            LimitOrderError = "duplicate"
)

// LimitOrder 是一笔期望挂出的限价单。Volume 带符号：负数为卖，正数为买。
type LimitOrder struct {
	ID           string          `json:"id"`
	Price        decimal.Decimal `json:"price"`
	Volume       decimal.Decimal `json:"volume"`
	TradeType    TradeType       `json:"tradeType"`
	Error        LimitOrderError `json:"error,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// NewLimitOrder 按方向创建订单，并规范 Volume 的符号。
func NewLimitOrder(price, volume decimal.Decimal, tradeType TradeType) LimitOrder {
	volume = volume.Abs()
	if tradeType == TradeTypeSell {
		volume = volume.Neg()
	}
	return LimitOrder{
		ID:        uuid.NewString(),
		Price:     price,
		Volume:    volume,
		TradeType: tradeType,
	}
}

// SameQuote 比较价格、数量、方向，忽略 ID 与回执字段。
func (o LimitOrder) SameQuote(other LimitOrder) bool {
	return o.TradeType == other.TradeType &&
		o.Price.Equal(other.Price) &&
		o.Volume.Equal(other.Volume)
}

// SameQuotes 逐个比较两组订单（顺序敏感）。
func SameQuotes(a, b []LimitOrder) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].SameQuote(b[i]) {
			return false
		}
	}
	return true
}

// Clone 返回订单切片的拷贝。
func Clone(orders []LimitOrder) []LimitOrder {
	if orders == nil {
		return nil
	}
	res := make([]LimitOrder, len(orders))
	copy(res, orders)
	return res
}

// Trade 是一笔成交回报。Volume 为正数，方向由 Type 表示。
type Trade struct {
	ID          string          `json:"id"`
	AssetPairID string          `json:"assetPairId"`
	Price       decimal.Decimal `json:"price"`
	Volume      decimal.Decimal `json:"volume"`
	Type        TradeType       `json:"type"`
	Time        time.Time       `json:"time"`
}

// SignedVolume 卖出成交为负，买入成交为正。
func (t Trade) SignedVolume() decimal.Decimal {
	v := t.Volume.Abs()
	if t.Type == TradeTypeSell {
		return v.Neg()
	}
	return v
}

// PairInfo 交易对精度信息。
type PairInfo struct {
	AssetPairID    string
	PriceAccuracy  int32
	VolumeAccuracy int32
	MinVolume      decimal.Decimal
	BaseAssetID    string
	QuoteAssetID   string
}

// PairInfoProvider 查询交易对元数据。
type PairInfoProvider interface {
	PairInfo(assetPairID string) (PairInfo, error)
}
