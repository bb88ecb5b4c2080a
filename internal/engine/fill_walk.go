package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ladder-maker-go/infrastructure/logger"
	"ladder-maker-go/metrics"
	"ladder-maker-go/order"
)

var (
	// ErrNoLevels 梯子为空，成交无法记到任何档位。
	ErrNoLevels = errors.New("trade received but there aren't any levels")
	// ErrNoFurtherLevels 所有可用档位都已成交，剩余量无处可去。
	ErrNoFurtherLevels = errors.New("trade received but there aren't any further levels")
)

// walkTrade 按价格优先把一笔成交分配到档位：卖出量给卖价最低的档，买入量给买价最高的档，
// 剩余量继续分配给下一档。同一笔成交中已经成交过的档位不再重复选择。
// 返回被档位吸收的带符号数量。
func (c *Coordinator) walkTrade(t order.Trade) (decimal.Decimal, error) {
	volume := t.SignedVolume()
	c.log.Info("Trade is received",
		zap.String("trade_id", t.ID),
		zap.String("type", string(t.Type)),
		zap.Stringer("price", t.Price),
		zap.Stringer("volume", t.Volume))

	absorbed := decimal.Zero
	if c.ladder.Len() == 0 {
		return absorbed, ErrNoLevels
	}

	visited := make(map[string]bool)
	for !volume.IsZero() {
		var (
			name string
			ok   bool
		)
		if volume.IsNegative() {
			name, ok = c.ladder.BestSell(visited)
		} else {
			name, ok = c.ladder.BestBuy(visited)
		}
		if !ok {
			return absorbed, fmt.Errorf("remainder %s: %w", volume, ErrNoFurtherLevels)
		}

		remainder, exec, err := c.ladder.ApplyFill(name, volume)
		if err != nil {
			return absorbed, err
		}
		visited[name] = true
		c.inventory.Add(exec.Volume, exec.Price)
		absorbed = absorbed.Add(exec.Volume)

		side := order.TradeTypeBuy
		if exec.Volume.IsNegative() {
			side = order.TradeTypeSell
		}
		metrics.RecordExecution(name, string(side), exec.Full)
		c.log.Info("Level is executed",
			logger.LadderLevel(name),
			zap.String("side", string(side)),
			zap.Stringer("price", exec.Price),
			zap.Stringer("volume", exec.Volume),
			zap.Bool("full", exec.Full),
			zap.Stringer("remainder", remainder))

		volume = remainder
	}
	return absorbed, nil
}
