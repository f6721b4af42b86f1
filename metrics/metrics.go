// Package metrics provides Prometheus metrics for the market maker
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mm"

var (
	// 储备
	ReserveBase = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "reserve_base",
		Help: "当前储备中的 base 数量",
	})
	ReserveQuote = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "reserve_quote",
		Help: "当前储备中的 quote 数量",
	})
	ReserveInvariant = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "reserve_invariant",
		Help: "base × quote",
	})
	EquilibriumPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "equilibrium_price",
		Help: "quote / base",
	})
	InvariantRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "invariant_ratio",
		Help: "最近一笔成交后 k_after / k_before",
	})

	// 阶梯与订单
	LadderRungs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "ladder_rungs",
		Help: "当前挂出的档位数",
	}, []string{"side"})
	OrdersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "orders_submitted_total",
		Help: "提交的订单总数",
	})
	OrderRejects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "order_rejects_total",
		Help: "提交失败的订单批次数",
	})
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "fills_total",
		Help: "成交笔数",
	}, []string{"side"})

	// 风控
	RiskTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "risk_triggers_total",
		Help: "风控触发次数",
	}, []string{"reason"})
	KillSwitchTripped = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "kill_switch_tripped",
		Help: "熔断开关状态（0/1）",
	})

	// 行情与账户
	MarketPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "market_price",
		Help: "交易所行情",
	}, []string{"symbol", "kind"})
	WalletBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "wallet_balance",
		Help: "交易所钱包余额",
	}, []string{"currency"})

	// 连接
	WsReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "ws_reconnects_total",
		Help: "WebSocket 重连次数",
	})
	WsMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ws_messages_total",
		Help: "按类型统计的 WebSocket 消息",
	}, []string{"type"})
	RestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "rest_errors_total",
		Help: "REST 请求失败次数",
	}, []string{"endpoint"})
	RestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "rest_latency_seconds",
		Help:    "REST 请求延迟",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"endpoint"})
	PersistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "persist_errors_total",
		Help: "储备持久化失败次数",
	})
)

// UpdateReserve 更新储备相关指标。
func UpdateReserve(base, quote, invariant, equilibrium float64) {
	ReserveBase.Set(base)
	ReserveQuote.Set(quote)
	ReserveInvariant.Set(invariant)
	EquilibriumPrice.Set(equilibrium)
}

// UpdateLadder 记录当前阶梯两侧档位数。
func UpdateLadder(buys, sells int) {
	LadderRungs.WithLabelValues("buy").Set(float64(buys))
	LadderRungs.WithLabelValues("sell").Set(float64(sells))
}

// RecordFill 记录一笔成交及其不变量比值。
func RecordFill(side string, ratio float64) {
	FillsTotal.WithLabelValues(side).Inc()
	InvariantRatio.Set(ratio)
}

// RecordRisk 记录一次风控触发。
func RecordRisk(reason string) {
	RiskTriggered.WithLabelValues(reason).Inc()
}

// SetKillSwitch 设置熔断状态。
func SetKillSwitch(tripped bool) {
	if tripped {
		KillSwitchTripped.Set(1)
		return
	}
	KillSwitchTripped.Set(0)
}

// UpdateMarketData 更新行情，零值不写入。
func UpdateMarketData(symbol string, bid, ask, last, mid float64) {
	for kind, v := range map[string]float64{"bid": bid, "ask": ask, "last": last, "mid": mid} {
		if v > 0 {
			MarketPrice.WithLabelValues(symbol, kind).Set(v)
		}
	}
}

// UpdateWallet 更新钱包余额。
func UpdateWallet(currency string, balance float64) {
	WalletBalance.WithLabelValues(currency).Set(balance)
}

// ObserveRest 记录一次 REST 调用。
func ObserveRest(endpoint string, d time.Duration, err error) {
	RestLatency.WithLabelValues(endpoint).Observe(d.Seconds())
	if err != nil {
		RestErrors.WithLabelValues(endpoint).Inc()
	}
}

// StartMetricsServer 启动Prometheus指标服务器，ctx 结束时关闭。
func StartMetricsServer(ctx context.Context, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv
}
