package inventory

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Snapshot 全局库存快照。
type Snapshot struct {
	Inventory         decimal.Decimal `json:"inventory"`
	OppositeInventory decimal.Decimal `json:"oppositeInventory"`
}

// Tracker 维护全局净仓位：基础资产与计价资产两侧。
// 与各档位的库存同步推进，二者之和必须始终相等。
type Tracker struct {
	mu       sync.RWMutex
	net      decimal.Decimal
	opposite decimal.Decimal
}

// Add 记一笔带符号成交：负数为卖出。计价资产按 -volume*price 变化。
func (t *Tracker) Add(volume, price decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.net = t.net.Add(volume)
	t.opposite = t.opposite.Sub(volume.Mul(price))
}

// Reset 用给定值覆盖，启动恢复档位后调用。
func (t *Tracker) Reset(net, opposite decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.net = net
	t.opposite = opposite
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{Inventory: t.net, OppositeInventory: t.opposite}
}
