package order

import (
	"context"

	"github.com/shopspring/decimal"
)

// CancelMode 决定替换时撤掉哪一侧的旧单。
type CancelMode string

const (
	CancelModeNotEmptySide CancelMode = "not_empty_side"
	CancelModeBothSides    CancelMode = "both_sides"
	CancelModeSellSide     CancelMode = "sell_side"
	CancelModeBuySide      CancelMode = "buy_side"
)

// OrderAction 单笔挂单的买卖动作。
type OrderAction string

const (
	OrderActionBuy  OrderAction = "buy"
	OrderActionSell OrderAction = "sell"
)

// MultiOrderItem 批量请求中的一笔挂单，Volume 为正数。
type MultiOrderItem struct {
	ID          string          `json:"id"`
	OrderAction OrderAction     `json:"orderAction"`
	Price       decimal.Decimal `json:"price"`
	Volume      decimal.Decimal `json:"volume"`
}

// MultiLimitOrder 原子的撤旧挂新请求。
type MultiLimitOrder struct {
	ID                   string           `json:"id"`
	ClientID             string           `json:"clientId"`
	AssetPairID          string           `json:"assetPairId"`
	CancelPreviousOrders bool             `json:"cancelPreviousOrders"`
	CancelMode           CancelMode       `json:"cancelMode"`
	Orders               []MultiOrderItem `json:"orders"`
}

// MeStatus 交易所对单笔挂单返回的状态码。
type MeStatus string

const (
	MeStatusOk                       MeStatus = "Ok"
	MeStatusLowBalance               MeStatus = "LowBalance"
	MeStatusNotEnoughFunds           MeStatus = "NotEnoughFunds"
	MeStatusInvalidPrice             MeStatus = "InvalidPrice"
	MeStatusInvalidVolume            MeStatus = "InvalidVolume"
	MeStatusTooSmallVolume           MeStatus = "TooSmallVolume"
	MeStatusPriceGapTooHigh          MeStatus = "PriceGapTooHigh"
	MeStatusLeadToNegativeSpread     MeStatus = "LeadToNegativeSpread"
	MeStatusDuplicate                MeStatus = "Duplicate"
	MeStatusRuntime                  MeStatus = "Runtime"
	MeStatusUnknownAsset             MeStatus = "UnknownAsset"
	MeStatusDisabledAsset            MeStatus = "DisabledAsset"
	MeStatusBalanceLowerThanReserved MeStatus = "BalanceLowerThanReserved"
)

// OrderStatus 单笔挂单回执。
type OrderStatus struct {
	ID           string   `json:"id"`
	MatchingID   string   `json:"matchingEngineId,omitempty"`
	Status       MeStatus `json:"status"`
	StatusReason string   `json:"statusReason,omitempty"`
	Price        float64  `json:"price,omitempty"`
	Volume       float64  `json:"volume,omitempty"`
}

// MultiLimitOrderResponse 批量请求的回执。
type MultiLimitOrderResponse struct {
	ID          string        `json:"id"`
	AssetPairID string        `json:"assetPairId"`
	Status      MeStatus      `json:"status"`
	Statuses    []OrderStatus `json:"statuses"`
}

// Venue 是外部撮合系统。连接或协议错误以 error 返回。
type Venue interface {
	PlaceMultiLimitOrder(ctx context.Context, req MultiLimitOrder) (*MultiLimitOrderResponse, error)
}

// toOrderError 把交易所状态码映射到本地错误分类。
func toOrderError(s MeStatus) LimitOrderError {
	switch s {
	case MeStatusOk:
		return ErrorNone
	case MeStatusLowBalance, MeStatusBalanceLowerThanReserved:
		return ErrorLowBalance
	case MeStatusNotEnoughFunds:
		return ErrorNotEnoughFunds
	case MeStatusInvalidPrice:
		return ErrorInvalidPrice
	case MeStatusInvalidVolume:
		return ErrorInvalidVolume
	case MeStatusTooSmallVolume:
		return ErrorTooSmallVolume
	case MeStatusPriceGapTooHigh:
		return ErrorPriceGapTooHigh
	case MeStatusLeadToNegativeSpread:
		return ErrorLeadToNegativeSpread
	case MeStatusDuplicate:
		return ErrorDuplicate
	default:
		return ErrorUnknown
	}
}

func toOrderAction(t TradeType) OrderAction {
	if t == TradeTypeSell {
		return OrderActionSell
	}
	return OrderActionBuy
}
