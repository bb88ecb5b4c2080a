package inventory

import "github.com/shopspring/decimal"

// Valuation 按标记价估值的库存。
type Valuation struct {
	MarkPrice decimal.Decimal `json:"markPrice"`
	// AvgCost 平均持仓成本；净仓位为零时为零
	AvgCost decimal.Decimal `json:"avgCost"`
	// PnL 盯市盈亏：net*mark + 计价资产余额
	PnL decimal.Decimal `json:"pnl"`
}

// Valuation 以 mark 估值
func (t *Tracker) Valuation(mark decimal.Decimal) Valuation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := Valuation{
		MarkPrice: mark,
		PnL:       t.net.Mul(mark).Add(t.opposite),
	}
	if !t.net.IsZero() {
		v.AvgCost = t.opposite.Neg().DivRound(t.net, 16)
	}
	return v
}
