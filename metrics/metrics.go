// Package metrics provides Prometheus metrics for the ladder market maker
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ladder"

// 下单结果标签
const (
	ResultSubmitted = "submitted"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

var (
	// 成交
	TradesHandled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_handled_total",
		Help:      "已处理的成交笔数",
	})
	LevelExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "level_executions_total",
		Help:      "档位成交次数（full=整档成交并上移，partial=部分成交）",
	}, []string{"level", "side", "kind"})
	UntrackedVolume = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "untracked_volume_total",
		Help:      "没有可用档位吸收的成交量",
	})

	// 库存
	Inventory = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inventory",
		Help:      "基础资产净库存",
	})
	OppositeInventory = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "opposite_inventory",
		Help:      "计价资产净库存",
	})
	AvgCost = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inventory_avg_cost",
		Help:      "净库存平均成本，净库存为零时为0",
	})
	MarkToMarket = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mark_to_market_pnl",
		Help:      "按最近成交价估值的盈亏（计价资产）",
	})

	// 协调器
	GateTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_timeouts_total",
		Help:      "获取互斥闸门超时而丢弃的事件数",
	}, []string{"trigger"})
	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_total",
		Help:      "对账执行次数",
	}, []string{"result"})
	Warm = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "warm",
		Help:      "协调器是否处于报价状态(1=warm,0=cold)",
	})
	DesiredOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "desired_orders",
		Help:      "各交易对期望订单数",
	}, []string{"asset_pair"})

	SettingsReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settings_reloads_total",
		Help:      "settings 文件重载次数（ok/rejected）",
	}, []string{"result"})

	// 交易所
	VenueRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "venue_requests_total",
		Help:      "批量挂单请求（submitted/skipped/failed）",
	}, []string{"asset_pair", "result"})
	VenueLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "venue_latency_seconds",
		Help:      "批量挂单请求耗时（秒）",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"asset_pair"})
	OrderRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_rejections_total",
		Help:      "交易所拒绝的单笔挂单",
	}, []string{"asset_pair", "error"})
)

// RecordExecution 记录一次档位成交。
func RecordExecution(level, side string, full bool) {
	kind := "partial"
	if full {
		kind = "full"
	}
	LevelExecutions.WithLabelValues(level, side, kind).Inc()
}

// UpdateInventory 更新库存指标。
func UpdateInventory(inventory, opposite float64) {
	Inventory.Set(inventory)
	OppositeInventory.Set(opposite)
}

// UpdateValuation 更新库存估值指标。
func UpdateValuation(avgCost, pnl float64) {
	AvgCost.Set(avgCost)
	MarkToMarket.Set(pnl)
}

// SetWarm 更新协调器状态。
func SetWarm(warm bool) {
	if warm {
		Warm.Set(1)
		return
	}
	Warm.Set(0)
}

func RecordVenueRequest(assetPair, result string) {
	VenueRequests.WithLabelValues(assetPair, result).Inc()
}

func ObserveVenueLatency(assetPair string, d time.Duration) {
	VenueLatency.WithLabelValues(assetPair).Observe(d.Seconds())
}

func RecordOrderRejection(assetPair, reason string) {
	OrderRejections.WithLabelValues(assetPair, reason).Inc()
}

// Handler 返回 Prometheus 指标的 HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
