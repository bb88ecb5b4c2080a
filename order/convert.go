package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DependentPairSpec 描述一个跟随基准交易对报价的交易对。
type DependentPairSpec struct {
	AssetPairID      string
	PriceMultiplier  decimal.Decimal
	VolumeMultiplier decimal.Decimal
	// Inverted 表示报价方向相反（如 BTCUSD -> USDBTC）。
	Inverted bool
}

// Converter 把基准交易对订单换算为依赖交易对订单。
type Converter interface {
	Convert(ctx context.Context, o LimitOrder, spec DependentPairSpec) (LimitOrder, error)
}

var errZeroPrice = errors.New("cannot invert zero price")

// inversePrecision 取倒数时保留的小数位，最终精度由下单层按交易对取整。
const inversePrecision = 16

// MultiplierConverter 按乘数换算价格与数量。
type MultiplierConverter struct{}

func (MultiplierConverter) Convert(_ context.Context, o LimitOrder, spec DependentPairSpec) (LimitOrder, error) {
	price := o.Price
	volume := o.Volume.Abs()
	side := o.TradeType
	if spec.Inverted {
		if price.IsZero() {
			return LimitOrder{}, fmt.Errorf("convert to %s: %w", spec.AssetPairID, errZeroPrice)
		}
		volume = volume.Mul(price)
		price = decimal.NewFromInt(1).DivRound(price, inversePrecision)
		side = side.Opposite()
	}
	if !spec.PriceMultiplier.IsZero() {
		price = price.Mul(spec.PriceMultiplier)
	}
	if !spec.VolumeMultiplier.IsZero() {
		volume = volume.Mul(spec.VolumeMultiplier)
	}
	return NewLimitOrder(price, volume, side), nil
}
