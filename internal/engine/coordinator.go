package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ladder-maker-go/infrastructure/alert"
	"ladder-maker-go/infrastructure/logger"
	"ladder-maker-go/inventory"
	"ladder-maker-go/metrics"
	"ladder-maker-go/order"
)

// EngineState 协调器状态
type EngineState int

const (
	// StateCold 没有初始价或基准交易对，只尝试启动
	StateCold EngineState = iota
	// StateWarm 梯子已设置参考价，持续对账
	StateWarm
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateCold:
		return "COLD"
	case StateWarm:
		return "WARM"
	default:
		return "UNKNOWN"
	}
}

// Config 协调器配置
type Config struct {
	LockTimeout time.Duration // 获取闸门的最长等待
}

// Components 协调器依赖组件
type Components struct {
	Ladder     Ladder
	Applier    OrderApplier
	Prices     PriceStore
	Settings   Settings
	Additional order.AdditionalVolume
	Converter  order.Converter
	Inventory  *inventory.Tracker
	Alerts     Alerter
	Logger     *zap.Logger
}

// Statistics 协调器统计信息
type Statistics struct {
	StartTime            time.Time
	TotalTrades          int64
	TotalTicks           int64
	TotalReconciliations int64
	TotalErrors          int64
	DroppedEvents        int64
	LastTradeTime        time.Time
	LastReconcileTime    time.Time
}

// Coordinator 单写者协调器：成交批次与定时器互斥执行，驱动梯子并同步所有交易对的订单。
type Coordinator struct {
	ladder     Ladder
	applier    OrderApplier
	prices     PriceStore
	settings   Settings
	additional order.AdditionalVolume
	converter  order.Converter
	inventory  *inventory.Tracker
	alerts     Alerter
	log        *zap.Logger

	gate *gate

	// 以下字段只在持有闸门时读写
	warm     bool
	basePair string
	mark     decimal.Decimal // 最近的初始价或成交价，用于库存估值
	desired  map[string][]order.LimitOrder

	// 供外部观察者读取的快照
	mu        sync.RWMutex
	state     EngineState
	viewBase  string
	published map[string][]order.LimitOrder
	valuation inventory.Valuation
	stats     Statistics
}

// New 创建协调器
func New(cfg Config, comps Components) (*Coordinator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(comps); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 30 * time.Second
	}
	if comps.Additional == nil {
		comps.Additional = order.NoAdditionalVolume{}
	}
	if comps.Converter == nil {
		comps.Converter = order.MultiplierConverter{}
	}
	if comps.Inventory == nil {
		comps.Inventory = &inventory.Tracker{}
	}
	if comps.Alerts == nil {
		comps.Alerts = nopAlerter{}
	}
	if comps.Logger == nil {
		comps.Logger = zap.NewNop()
	}

	return &Coordinator{
		ladder:     comps.Ladder,
		applier:    comps.Applier,
		prices:     comps.Prices,
		settings:   comps.Settings,
		additional: comps.Additional,
		converter:  comps.Converter,
		inventory:  comps.Inventory,
		alerts:     comps.Alerts,
		log:        comps.Logger,
		gate:       newGate(cfg.LockTimeout),
		desired:    make(map[string][]order.LimitOrder),
		published:  make(map[string][]order.LimitOrder),
		state:      StateCold,
	}, nil
}

// Start 用恢复出的档位库存初始化全局计数，并尝试进入报价状态。
func (c *Coordinator) Start(ctx context.Context) error {
	release, err := c.acquire(ctx, "start")
	if err != nil {
		return err
	}
	defer release()

	inv, opp := c.ladder.TotalInventory()
	c.inventory.Reset(inv, opp)
	c.publishInventory()

	c.mu.Lock()
	c.stats.StartTime = time.Now()
	c.mu.Unlock()

	c.log.Info("Coordinator starting",
		zap.Stringer("inventory", inv),
		zap.Stringer("opposite_inventory", opp))

	return c.tryWarm(ctx)
}

// HandleTrades 处理一批成交：记录最后成交价，逐笔分配到档位，保存快照，然后对账。
func (c *Coordinator) HandleTrades(ctx context.Context, trades []order.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	release, err := c.acquire(ctx, "trades")
	if err != nil {
		return err
	}
	defer release()

	last := trades[len(trades)-1].Price
	c.mark = last
	if err := c.prices.Set(ctx, last); err != nil {
		c.recordError()
		c.log.Error("Failed to update initial price", zap.Stringer("price", last), zap.Error(err))
	} else {
		c.log.Info("InitialPrice is updated",
			zap.Stringer("price", last),
			zap.Int("trades", len(trades)))
	}

	for _, t := range trades {
		metrics.TradesHandled.Inc()
		absorbed, err := c.walkTrade(t)
		if err != nil {
			untracked := t.SignedVolume().Sub(absorbed)
			metrics.UntrackedVolume.Add(untracked.Abs().InexactFloat64())
			c.recordError()
			c.log.Error("Trade volume is not fully tracked",
				zap.String("trade_id", t.ID),
				zap.Stringer("absorbed", absorbed),
				zap.Stringer("untracked", untracked),
				zap.Error(err))
			c.alerts.Notify(alert.LevelCritical, "Trade volume is not fully tracked", map[string]interface{}{
				"trade_id":  t.ID,
				"untracked": untracked.String(),
				"error":     err.Error(),
			})
		}
	}

	c.mu.Lock()
	c.stats.TotalTrades += int64(len(trades))
	c.stats.LastTradeTime = time.Now()
	c.mu.Unlock()

	if err := c.ladder.SaveStates(ctx); err != nil {
		c.recordError()
		c.log.Error("Failed to save level states", zap.Error(err))
	}
	c.checkConservation()
	c.publishInventory()

	if !c.warm {
		c.log.Debug("Coordinator is cold, skip reconciliation after trades")
		return nil
	}
	return c.reconcile(ctx)
}

// HandleTimer 冷状态下尝试启动，报价状态下直接对账。
func (c *Coordinator) HandleTimer(ctx context.Context) error {
	release, err := c.acquire(ctx, "timer")
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	c.stats.TotalTicks++
	c.mu.Unlock()

	if !c.warm {
		return c.tryWarm(ctx)
	}
	return c.reconcile(ctx)
}

// AddLevel 经闸门新增档位，报价状态下立即对账。
func (c *Coordinator) AddLevel(ctx context.Context, name string, delta, volume decimal.Decimal) error {
	return c.mutateLadder(ctx, "add_level", func() error {
		return c.ladder.Add(ctx, name, delta, volume)
	})
}

// UpdateLevel 经闸门修改档距与档量。
func (c *Coordinator) UpdateLevel(ctx context.Context, name string, delta, volume decimal.Decimal) error {
	return c.mutateLadder(ctx, "update_level", func() error {
		return c.ladder.Update(ctx, name, delta, volume)
	})
}

// DeleteLevel 经闸门删除档位。该档的库存随之移出全局计数。
func (c *Coordinator) DeleteLevel(ctx context.Context, name string) error {
	return c.mutateLadder(ctx, "delete_level", func() error {
		if err := c.ladder.Delete(ctx, name); err != nil {
			return err
		}
		inv, opp := c.ladder.TotalInventory()
		prev := c.inventory.Snapshot()
		c.inventory.Reset(inv, opp)
		c.log.Info("Global inventory follows remaining levels",
			logger.LadderLevel(name),
			zap.Stringer("previous_inventory", prev.Inventory),
			zap.Stringer("inventory", inv))
		return nil
	})
}

func (c *Coordinator) mutateLadder(ctx context.Context, trigger string, fn func() error) error {
	release, err := c.acquire(ctx, trigger)
	if err != nil {
		return err
	}
	defer release()

	if err := fn(); err != nil {
		return err
	}
	c.publishInventory()
	if !c.warm {
		return nil
	}
	return c.reconcile(ctx)
}

func (c *Coordinator) acquire(ctx context.Context, trigger string) (func(), error) {
	release, err := c.gate.acquire(ctx)
	if err != nil {
		metrics.GateTimeouts.WithLabelValues(trigger).Inc()
		c.mu.Lock()
		c.stats.DroppedEvents++
		c.mu.Unlock()
		c.log.Warn("Can't take lock, event dropped",
			zap.String("trigger", trigger),
			zap.Error(err))
		c.alerts.Notify(alert.LevelWarning, "Event dropped on gate timeout", map[string]interface{}{"trigger": trigger})
		return nil, err
	}
	return release, nil
}

// tryWarm 冷启动需要初始价与基准交易对同时存在。
func (c *Coordinator) tryWarm(ctx context.Context) error {
	price, ok, err := c.prices.Get(ctx)
	if err != nil {
		c.recordError()
		return fmt.Errorf("get initial price: %w", err)
	}
	if !ok {
		c.log.Info("No initial price to start algorithm, waiting for one")
		return nil
	}
	base, ok := c.settings.BaseAssetPair()
	if !ok {
		c.log.Info("No base asset pair to start algorithm, waiting for one")
		return nil
	}

	seeded := c.ladder.SeedReference(price)
	c.basePair = base
	c.mark = price
	c.publishInventory()
	c.setWarm(true)
	c.log.Info("Coordinator is warm",
		zap.String("base_pair", base),
		zap.Stringer("initial_price", price),
		zap.Int("seeded_levels", seeded))

	return c.reconcile(ctx)
}

// reconcile 计算所有交易对的期望订单并逐个提交。单个交易对失败不影响其余交易对。
func (c *Coordinator) reconcile(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Reconciliations.WithLabelValues("panic").Inc()
			c.recordError()
			c.log.Error("Reconciliation aborted", zap.Any("panic", r), zap.Stack("stack"))
			c.alerts.Notify(alert.LevelCritical, "Reconciliation aborted", map[string]interface{}{"panic": fmt.Sprint(r)})
			err = fmt.Errorf("reconciliation panic: %v", r)
		}
	}()

	base, ok := c.settings.BaseAssetPair()
	var baseSet []order.LimitOrder
	if !ok {
		c.log.Info("Base pair deletion is detected, remove all orders",
			zap.String("base_pair", c.basePair))
		baseSet = []order.LimitOrder{}
		c.setWarm(false)
	} else {
		if c.basePair != "" && c.basePair != base {
			c.log.Info("Base pair is changed",
				zap.String("previous", c.basePair),
				zap.String("current", base))
		}
		c.basePair = base
		levelOrders := c.ladder.Orders()
		extra, err := c.additional.Orders(ctx, levelOrders)
		if err != nil {
			metrics.Reconciliations.WithLabelValues("error").Inc()
			c.recordError()
			return fmt.Errorf("additional volume: %w", err)
		}
		baseSet = make([]order.LimitOrder, 0, len(levelOrders)+len(extra))
		baseSet = append(baseSet, levelOrders...)
		baseSet = append(baseSet, extra...)
	}
	if c.basePair != "" {
		c.desired[c.basePair] = baseSet
	}

	active := map[string]bool{}
	if ok {
		active[base] = true
	}
	var failures []error
	for _, spec := range c.settings.DependentPairs() {
		if spec.AssetPairID == c.basePair {
			c.log.Warn("Dependent pair equals base pair, ignored", logger.AssetPair(spec.AssetPairID))
			continue
		}
		active[spec.AssetPairID] = true
		converted, err := c.convert(ctx, baseSet, spec)
		if err != nil {
			c.log.Error("Error on converting orders",
				logger.AssetPair(spec.AssetPairID),
				zap.Error(err))
			failures = append(failures, err)
			continue
		}
		c.desired[spec.AssetPairID] = converted
	}

	// 不再配置的交易对（含被替换的旧基准对）置空，撤掉其挂单
	for pair, orders := range c.desired {
		if active[pair] || len(orders) == 0 {
			continue
		}
		c.log.Info("Asset pair is not configured anymore, remove its orders", logger.AssetPair(pair))
		c.desired[pair] = []order.LimitOrder{}
	}

	pairs := make([]string, 0, len(c.desired))
	for pair := range c.desired {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	view := make(map[string][]order.LimitOrder, len(pairs))
	for _, pair := range pairs {
		orders := c.desired[pair]
		view[pair] = order.Clone(orders)
		metrics.DesiredOrders.WithLabelValues(pair).Set(float64(len(orders)))

		annotated, err := c.applier.Apply(ctx, pair, orders)
		if err != nil {
			c.log.Error("Error on placing orders",
				logger.AssetPair(pair),
				zap.Error(err))
			c.alerts.Notify(alert.LevelError, "Error on placing orders", map[string]interface{}{
				"asset_pair": pair,
				"error":      err.Error(),
			})
			failures = append(failures, fmt.Errorf("%s: %w", pair, err))
			continue
		}
		view[pair] = annotated
	}

	c.mu.Lock()
	c.published = view
	c.viewBase = c.basePair
	c.stats.TotalReconciliations++
	c.stats.LastReconcileTime = time.Now()
	c.stats.TotalErrors += int64(len(failures))
	c.mu.Unlock()

	if len(failures) > 0 {
		metrics.Reconciliations.WithLabelValues("partial").Inc()
		return errors.Join(failures...)
	}
	metrics.Reconciliations.WithLabelValues("ok").Inc()
	return nil
}

func (c *Coordinator) convert(ctx context.Context, base []order.LimitOrder, spec order.DependentPairSpec) ([]order.LimitOrder, error) {
	res := make([]order.LimitOrder, 0, len(base))
	for _, o := range base {
		converted, err := c.converter.Convert(ctx, o, spec)
		if err != nil {
			return nil, fmt.Errorf("convert order for %s: %w", spec.AssetPairID, err)
		}
		res = append(res, converted)
	}
	return res, nil
}

// checkConservation 各档库存之和必须与全局计数一致。
func (c *Coordinator) checkConservation() {
	inv, opp := c.ladder.TotalInventory()
	snap := c.inventory.Snapshot()
	if inv.Equal(snap.Inventory) && opp.Equal(snap.OppositeInventory) {
		return
	}
	c.recordError()
	c.log.Error("Inventory mismatch between levels and global counters",
		zap.Stringer("levels_inventory", inv),
		zap.Stringer("global_inventory", snap.Inventory),
		zap.Stringer("levels_opposite", opp),
		zap.Stringer("global_opposite", snap.OppositeInventory))
	c.alerts.Notify(alert.LevelCritical, "Inventory mismatch between levels and global counters", map[string]interface{}{
		"levels_inventory": inv.String(),
		"global_inventory": snap.Inventory.String(),
	})
}

func (c *Coordinator) publishInventory() {
	snap := c.inventory.Snapshot()
	metrics.UpdateInventory(snap.Inventory.InexactFloat64(), snap.OppositeInventory.InexactFloat64())
	if c.mark.IsZero() {
		return
	}
	v := c.inventory.Valuation(c.mark)
	metrics.UpdateValuation(v.AvgCost.InexactFloat64(), v.PnL.InexactFloat64())
	c.mu.Lock()
	c.valuation = v
	c.mu.Unlock()
}

func (c *Coordinator) setWarm(warm bool) {
	c.warm = warm
	state := StateCold
	if warm {
		state = StateWarm
	}
	c.mu.Lock()
	c.state = state
	c.viewBase = c.basePair
	c.mu.Unlock()
	metrics.SetWarm(warm)
}

func (c *Coordinator) recordError() {
	c.mu.Lock()
	c.stats.TotalErrors++
	c.mu.Unlock()
}

// Orders 返回某交易对最近一次的订单集（带交易所回执标注）。不经过闸门，结果仅供参考。
func (c *Coordinator) Orders(assetPairID string) []order.LimitOrder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	orders, ok := c.published[assetPairID]
	if !ok {
		return []order.LimitOrder{}
	}
	return order.Clone(orders)
}

// BaseOrders 基准交易对的订单集
func (c *Coordinator) BaseOrders() []order.LimitOrder {
	c.mu.RLock()
	base := c.viewBase
	c.mu.RUnlock()
	return c.Orders(base)
}

// BaseAssetPair 最近一次使用的基准交易对
func (c *Coordinator) BaseAssetPair() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewBase
}

// Inventory 全局库存
func (c *Coordinator) Inventory() inventory.Snapshot {
	return c.inventory.Snapshot()
}

// Valuation 最近一次按标记价的库存估值；尚无任何价格时为零值
func (c *Coordinator) Valuation() inventory.Valuation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.valuation
}

// State 返回当前状态
func (c *Coordinator) State() EngineState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Statistics 返回统计信息
func (c *Coordinator) Statistics() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func validateConfig(cfg Config) error {
	if cfg.LockTimeout < 0 {
		return fmt.Errorf("lock timeout must be >= 0")
	}
	return nil
}

func validateComponents(comp Components) error {
	if comp.Ladder == nil {
		return fmt.Errorf("ladder is required")
	}
	if comp.Applier == nil {
		return fmt.Errorf("applier is required")
	}
	if comp.Prices == nil {
		return fmt.Errorf("price store is required")
	}
	if comp.Settings == nil {
		return fmt.Errorf("settings are required")
	}
	return nil
}
