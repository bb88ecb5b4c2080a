package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"ladder-maker-go/infrastructure/alert"
	"ladder-maker-go/ladder"
	"ladder-maker-go/order"
)

// PriceStore 持久化初始价：冷启动时读取，每批成交后写入最后成交价。
type PriceStore interface {
	Get(ctx context.Context) (decimal.Decimal, bool, error)
	Set(ctx context.Context, price decimal.Decimal) error
}

// Settings 运行期可变的交易对配置。
type Settings interface {
	// BaseAssetPair 返回基准交易对；未配置时第二个返回值为 false。
	BaseAssetPair() (string, bool)
	DependentPairs() []order.DependentPairSpec
}

// Ladder 协调器对梯子的依赖，由 *ladder.Service 实现。
type Ladder interface {
	Add(ctx context.Context, name string, delta, volume decimal.Decimal) error
	Update(ctx context.Context, name string, delta, volume decimal.Decimal) error
	Delete(ctx context.Context, name string) error
	Len() int
	Orders() []order.LimitOrder
	BestSell(skip map[string]bool) (string, bool)
	BestBuy(skip map[string]bool) (string, bool)
	ApplyFill(name string, volume decimal.Decimal) (decimal.Decimal, ladder.Execution, error)
	SeedReference(price decimal.Decimal) int
	SaveStates(ctx context.Context) error
	TotalInventory() (decimal.Decimal, decimal.Decimal)
}

// OrderApplier 把期望订单集同步到交易所，由 *order.Applier 实现。
type OrderApplier interface {
	Apply(ctx context.Context, assetPairID string, orders []order.LimitOrder) ([]order.LimitOrder, error)
}

// Alerter 运维告警，由 *alert.Manager 实现。调用不能阻塞。
type Alerter interface {
	Notify(level alert.Level, message string, fields map[string]interface{})
}

type nopAlerter struct{}

func (nopAlerter) Notify(alert.Level, string, map[string]interface{}) {}

var (
	_ Alerter      = (*alert.Manager)(nil)
	_ Ladder       = (*ladder.Service)(nil)
	_ OrderApplier = (*order.Applier)(nil)
)
