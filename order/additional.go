package order

import (
	"context"

	"github.com/shopspring/decimal"
)

// AdditionalVolume 根据梯子订单合成额外挂单，纯函数。
type AdditionalVolume interface {
	Orders(ctx context.Context, base []LimitOrder) ([]LimitOrder, error)
}

// DepthAdditionalVolume 在最外侧订单之外按固定步长追加 Count 档深度。
type DepthAdditionalVolume struct {
	Count     int
	PriceStep decimal.Decimal
	Volume    decimal.Decimal
}

func (d DepthAdditionalVolume) Orders(_ context.Context, base []LimitOrder) ([]LimitOrder, error) {
	if d.Count <= 0 || !d.PriceStep.IsPositive() || !d.Volume.IsPositive() {
		return nil, nil
	}

	var (
		maxSell, minBuy decimal.Decimal
		hasSell, hasBuy bool
	)
	for _, o := range base {
		switch o.TradeType {
		case TradeTypeSell:
			if !hasSell || o.Price.GreaterThan(maxSell) {
				maxSell = o.Price
				hasSell = true
			}
		case TradeTypeBuy:
			if !hasBuy || o.Price.LessThan(minBuy) {
				minBuy = o.Price
				hasBuy = true
			}
		}
	}

	res := make([]LimitOrder, 0, d.Count*2)
	for i := 1; i <= d.Count; i++ {
		step := d.PriceStep.Mul(decimal.NewFromInt(int64(i)))
		if hasSell {
			res = append(res, NewLimitOrder(maxSell.Add(step), d.Volume, TradeTypeSell))
		}
		if hasBuy {
			if p := minBuy.Sub(step); p.IsPositive() {
				res = append(res, NewLimitOrder(p, d.Volume, TradeTypeBuy))
			}
		}
	}
	return res, nil
}

// NoAdditionalVolume 不追加任何订单。
type NoAdditionalVolume struct{}

func (NoAdditionalVolume) Orders(context.Context, []LimitOrder) ([]LimitOrder, error) {
	return nil, nil
}
