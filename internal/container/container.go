package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ladder-maker-go/config"
	"ladder-maker-go/gateway"
	"ladder-maker-go/infrastructure/alert"
	"ladder-maker-go/infrastructure/logger"
	iconfig "ladder-maker-go/internal/config"
	"ladder-maker-go/internal/engine"
	"ladder-maker-go/internal/store"
	"ladder-maker-go/inventory"
	"ladder-maker-go/ladder"
	"ladder-maker-go/metrics"
	"ladder-maker-go/order"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg    config.AppConfig
	logger *logger.Logger
	alerts *alert.Manager

	// 存储
	prices  engine.PriceStore
	repo    ladder.Repository
	closers []func()

	// 交易所
	venue   order.Venue
	applier *order.Applier

	// 核心服务
	ladder      *ladder.Service
	settings    *iconfig.SettingsWatcher
	coordinator *engine.Coordinator
	runner      *engine.Runner
	feed        *gateway.TradeFeed

	lifecycle *LifecycleManager
}

// New 创建容器，venue 为 nil 时使用配置中的 HTTP 客户端
func New(cfg config.AppConfig, lg *logger.Logger, venue order.Venue) *Container {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Container{
		cfg:       cfg,
		logger:    lg,
		venue:     venue,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build(ctx context.Context) error {
	if err := c.buildInfrastructure(ctx); err != nil {
		c.closeStores()
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildGateway(); err != nil {
		c.closeStores()
		return fmt.Errorf("build gateway failed: %w", err)
	}
	if err := c.buildCoreServices(ctx); err != nil {
		c.closeStores()
		return fmt.Errorf("build core services failed: %w", err)
	}
	c.registerLifecycleComponents()
	c.logger.Info("Container built", zap.Int("levels", c.ladder.Len()))
	return nil
}

func (c *Container) buildInfrastructure(ctx context.Context) error {
	channels := []alert.Channel{alert.NewLogChannel("log", c.logger.Component("alert"))}
	if c.cfg.Alerts.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookChannel("webhook", c.cfg.Alerts.WebhookURL, c.cfg.Alerts.Timeout))
	}
	c.alerts = alert.NewManager(channels, c.cfg.Alerts.Throttle, c.cfg.Alerts.Timeout)

	log := c.logger.Component("store")
	if c.cfg.Storage.Redis.Addr == "" {
		log.Warn("Redis is not configured, initial price is kept in memory")
		c.prices = store.NewMemoryPriceStore()
	} else {
		rdb, err := store.NewRedisClient(ctx, c.cfg.Storage.Redis)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		c.prices = store.NewRedisPriceStore(rdb, c.cfg.Storage.Redis.KeyPrefix)
		log.Info("Initial price store: redis", zap.String("addr", c.cfg.Storage.Redis.Addr))
	}

	if c.cfg.Storage.Postgres.DSN == "" {
		log.Warn("Postgres is not configured, level states are kept in memory")
		c.repo = store.NewMemoryLevelRepository()
		return nil
	}
	pool, err := store.NewPostgresPool(ctx, c.cfg.Storage.Postgres)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, pool.Close)
	if err := store.RunMigrations(ctx, pool); err != nil {
		return err
	}
	c.repo = store.NewPostgresLevelRepository(pool)
	log.Info("Level repository: postgres")
	return nil
}

func (c *Container) buildGateway() error {
	pairs, err := c.cfg.PairInfoProvider()
	if err != nil {
		return err
	}
	if c.venue == nil {
		c.venue = gateway.NewVenueClient(c.cfg.Venue.BaseURL, c.cfg.Venue.APIKey, c.cfg.Venue.Timeout,
			gateway.NewTokenBucketLimiter(c.cfg.Venue.RateLimit, c.cfg.Venue.Burst))
	}
	c.applier = order.NewApplier(c.venue, pairs, order.ApplierConfig{
		WalletID: c.cfg.WalletID,
		Timeout:  c.cfg.Venue.Timeout,
	}, c.logger.Component("applier"))
	return nil
}

func (c *Container) buildCoreServices(ctx context.Context) error {
	c.ladder = ladder.NewService(c.repo, c.logger.Component("ladder"))
	if err := c.ladder.Start(ctx); err != nil {
		return fmt.Errorf("start ladder: %w", err)
	}

	settings, err := iconfig.NewSettingsWatcher(c.cfg.SettingsFile, iconfig.DefaultHotReloadConfig(), c.logger.Component("settings"))
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	c.settings = settings

	c.coordinator, err = engine.New(engine.Config{LockTimeout: c.cfg.LockTimeout}, engine.Components{
		Ladder:     c.ladder,
		Applier:    c.applier,
		Prices:     c.prices,
		Settings:   settings,
		Additional: settings,
		Converter:  order.MultiplierConverter{},
		Inventory:  &inventory.Tracker{},
		Alerts:     c.alerts,
		Logger:     c.logger.Component("coordinator"),
	})
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}
	if err := c.bootstrapLevels(ctx); err != nil {
		return err
	}
	c.runner = engine.NewRunner(c.coordinator, c.cfg.TimerInterval, c.logger.Component("runner"))

	if c.cfg.Feed.URL != "" {
		c.feed = gateway.NewTradeFeed(gateway.FeedConfig{
			URL:            c.cfg.Feed.URL,
			APIKey:         c.cfg.Venue.APIKey,
			WalletID:       c.cfg.WalletID,
			PingInterval:   c.cfg.Feed.PingInterval,
			ReconnectDelay: c.cfg.Feed.ReconnectDelay,
		}, settings, c.coordinator, c.logger.Component("feed"))
	} else {
		c.logger.Warn("Trade feed url is empty, fills will not be tracked")
	}
	return nil
}

// bootstrapLevels 仓库为空时按配置创建档位，和其他档位变更一样经过协调器
func (c *Container) bootstrapLevels(ctx context.Context) error {
	if c.ladder.Len() > 0 || len(c.cfg.Levels) == 0 {
		return nil
	}
	for _, l := range c.cfg.Levels {
		if err := c.coordinator.AddLevel(ctx, l.Name, decimal.NewFromFloat(l.Delta), decimal.NewFromFloat(l.Volume)); err != nil {
			return fmt.Errorf("bootstrap level %s: %w", l.Name, err)
		}
	}
	c.logger.Info("Ladder bootstrapped from config", zap.Int("levels", len(c.cfg.Levels)))
	return nil
}

func (c *Container) registerLifecycleComponents() {
	c.lifecycle.Register(&settingsComponent{watcher: c.settings})
	if c.cfg.MetricsAddr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.Handler(),
			addr:    c.cfg.MetricsAddr,
			log:     c.logger.Component("http"),
		})
	}
}

// Start 启动生命周期组件并尝试冷启动。冷启动失败不致命，定时器会继续尝试。
func (c *Container) Start(ctx context.Context) error {
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	if err := c.coordinator.Start(ctx); err != nil {
		c.logger.Warn("Coordinator start failed, will retry on timer", zap.Error(err))
	}
	c.logger.Info("Container started", zap.Stringer("state", c.coordinator.State()))
	return nil
}

// Run 运行定时器与成交推送，直到 ctx 结束或其中之一返回错误。
func (c *Container) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.runner.Run(gctx) })
	if c.feed != nil {
		g.Go(func() error { return c.feed.Run(gctx) })
	}
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop 停止所有组件，保存最后一次档位快照并关闭存储连接。
func (c *Container) Stop() error {
	c.runner.Stop()
	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := c.ladder.SaveStates(saveCtx); serr != nil {
		c.logger.Error("Failed to save level states on shutdown", zap.Error(serr))
		err = errors.Join(err, serr)
	}

	stats := c.coordinator.Statistics()
	c.logger.Info("Coordinator statistics",
		zap.Int64("trades", stats.TotalTrades),
		zap.Int64("reconciliations", stats.TotalReconciliations),
		zap.Int64("errors", stats.TotalErrors),
		zap.Int64("dropped_events", stats.DroppedEvents))

	c.closeStores()
	return err
}

func (c *Container) closeStores() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// HealthCheck 组件健康状态；配置了成交推送时要求已连接
func (c *Container) HealthCheck() error {
	if err := c.lifecycle.CheckHealth(); err != nil {
		return err
	}
	if c.feed != nil && !c.feed.Connected() {
		return errors.New("trade feed is not connected")
	}
	return nil
}

// Coordinator 返回协调器
func (c *Container) Coordinator() *engine.Coordinator { return c.coordinator }

// Ladder 返回梯子服务
func (c *Container) Ladder() *ladder.Service { return c.ladder }

type healthResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	State     string `json:"state"`
	BasePair  string `json:"basePair,omitempty"`
	Inventory string `json:"inventory"`
	Opposite  string `json:"oppositeInventory"`
	MarkPrice string `json:"markPrice,omitempty"`
	AvgCost   string `json:"avgCost,omitempty"`
	PnL       string `json:"pnl,omitempty"`
	// 基准交易对上次交易所确认的订单集
	AppliedOrders  int `json:"appliedOrders"`
	RejectedOrders int `json:"rejectedOrders"`
}

func (c *Container) health() (healthResponse, int) {
	snap := c.coordinator.Inventory()
	resp := healthResponse{
		Status:    "ok",
		State:     c.coordinator.State().String(),
		BasePair:  c.coordinator.BaseAssetPair(),
		Inventory: snap.Inventory.String(),
		Opposite:  snap.OppositeInventory.String(),
	}
	if v := c.coordinator.Valuation(); !v.MarkPrice.IsZero() {
		resp.MarkPrice = v.MarkPrice.String()
		resp.AvgCost = v.AvgCost.String()
		resp.PnL = v.PnL.String()
	}
	if resp.BasePair != "" {
		applied, _ := c.applier.LastApplied(resp.BasePair)
		resp.AppliedOrders = len(applied)
		for _, o := range applied {
			if o.Error != order.ErrorNone {
				resp.RejectedOrders++
			}
		}
	}
	code := http.StatusOK
	if err := c.HealthCheck(); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		code = http.StatusServiceUnavailable
	}
	return resp, code
}

// Handler 提供 /metrics 与 /healthz
func (c *Container) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp, code := c.health()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}
