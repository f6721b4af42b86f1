package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kleros/market-maker/gateway"
	"github.com/kleros/market-maker/infrastructure/alert"
	"github.com/kleros/market-maker/infrastructure/logger"
	"github.com/kleros/market-maker/internal/store"
	"github.com/kleros/market-maker/inventory"
	"github.com/kleros/market-maker/metrics"
	"github.com/kleros/market-maker/order"
	"github.com/kleros/market-maker/risk"
	"github.com/kleros/market-maker/strategy"
)

var (
	// ErrFatal 包装需要停止进程的错误（不变量被破坏、熔断）。
	ErrFatal = errors.New("fatal engine error")
	// ErrNotReady 表示还没有足够的余额或行情来计算初始储备。
	ErrNotReady = errors.New("engine not ready")
	// ErrStopped 表示引擎已停止，不再处理成交。
	ErrStopped = errors.New("engine stopped")
)

// EngineState 引擎状态
type EngineState int

const (
	// StateIdle 等待余额与行情
	StateIdle EngineState = iota
	// StateRunning 已挂出阶梯
	StateRunning
	// StatePaused 暂停：继续记账但不重新挂单
	StatePaused
	// StateStopped 停止状态
	StateStopped
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config 引擎配置
type Config struct {
	Symbol        string // 交易所交易对，例如 tPNKETH
	BaseCurrency  string // 例如 PNK
	QuoteCurrency string // 例如 ETH
	PriceBand     inventory.PriceBand
	// SettleDelay 是重新挂单后继续持有锁的时间，避免挂单途中处理下一笔成交
	SettleDelay       time.Duration
	EnableReconcile   bool
	ReconcileInterval time.Duration
}

// TickerSource 拉取最新行情。
type TickerSource interface {
	Ticker(ctx context.Context, symbol string) (gateway.Ticker, error)
}

// Journal 记录每笔成交后的储备，用于事后分析。
type Journal interface {
	RecordFill(f inventory.Fill, before, after inventory.Reserve) error
}

// Components 引擎依赖组件
type Components struct {
	Strategy   *strategy.Engine
	Orders     *order.Manager
	Tracker    *inventory.Tracker
	Store      store.ReserveStore
	Market     *store.State
	Ticker     TickerSource
	Guard      risk.Guard
	Detectors  risk.Detectors
	KillSwitch *risk.KillSwitch
	Notifier   *risk.Notifier
	Alert      *alert.Manager
	Journal    Journal
	Reconciler *order.Reconciler
	Logger     *logger.Logger
}

// TradingEngine 把成交转换为储备更新并重新挂出阶梯
type TradingEngine struct {
	config Config

	strategy   *strategy.Engine
	orders     *order.Manager
	tracker    *inventory.Tracker
	store      store.ReserveStore
	market     *store.State
	ticker     TickerSource
	guard      risk.Guard
	detectors  risk.Detectors
	killSwitch *risk.KillSwitch
	notifier   *risk.Notifier
	alertMgr   *alert.Manager
	journal    Journal
	reconciler *order.Reconciler
	logger     *logger.Logger

	// cycle 串行化 撤单→记账→持久化→挂单 的完整流程
	cycle sync.Mutex

	state EngineState
	mu    sync.RWMutex

	stats Statistics
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime     time.Time
	TotalFills    int64
	TotalRequotes int64
	TotalErrors   int64
	LastFillTime  time.Time
	mu            sync.RWMutex
}

// New 创建交易引擎
func New(cfg Config, c Components) (*TradingEngine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(c); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if cfg.PriceBand.Max.IsZero() {
		cfg.PriceBand = inventory.DefaultPriceBand
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 30 * time.Second
	}
	guard := c.Guard
	if guard == nil {
		guard = risk.InvariantGuard{Tolerance: risk.DefaultTolerance}
	}
	notifier := c.Notifier
	if notifier == nil {
		var ac risk.AlertClient
		if c.Alert != nil {
			ac = c.Alert
		}
		notifier = risk.NewNotifier(ac, c.Logger)
	}
	return &TradingEngine{
		config:     cfg,
		strategy:   c.Strategy,
		orders:     c.Orders,
		tracker:    c.Tracker,
		store:      c.Store,
		market:     c.Market,
		ticker:     c.Ticker,
		guard:      guard,
		detectors:  c.Detectors,
		killSwitch: c.KillSwitch,
		notifier:   notifier,
		alertMgr:   c.Alert,
		journal:    c.Journal,
		reconciler: c.Reconciler,
		logger:     c.Logger.Named("engine"),
		state:      StateIdle,
	}, nil
}

// Bootstrap 恢复或计算初始储备并挂出第一条阶梯。
// 储备存在时直接使用；否则需要 Market 中已有两种余额和参考价格，不满足时返回 ErrNotReady。
func (e *TradingEngine) Bootstrap(ctx context.Context) error {
	e.cycle.Lock()
	defer e.cycle.Unlock()

	switch e.GetState() {
	case StateStopped:
		return ErrStopped
	case StateRunning, StatePaused:
		return nil
	}

	r, err := e.initialReserve(ctx, true)
	if err != nil {
		return err
	}
	e.startLocked(r)
	return e.requoteLocked(ctx)
}

// initialReserve 优先读取已持久化的储备；compute 为 false 时不根据余额计算。
func (e *TradingEngine) initialReserve(ctx context.Context, compute bool) (inventory.Reserve, error) {
	r, ok, err := e.store.Load(ctx)
	if err != nil {
		return inventory.Reserve{}, fmt.Errorf("load reserve: %w", err)
	}
	if ok {
		e.logger.Info("reserve restored", zap.Stringer("reserve", r))
		return r, nil
	}
	if !compute {
		return inventory.Reserve{}, fmt.Errorf("%w: no stored reserve", ErrNotReady)
	}
	r, err = e.computeReserve()
	if err != nil {
		return inventory.Reserve{}, err
	}
	if err := e.store.Save(ctx, r); err != nil {
		return inventory.Reserve{}, fmt.Errorf("save initial reserve: %w", err)
	}
	e.logger.Info("reserve calculated", zap.Stringer("reserve", r))
	return r, nil
}

func (e *TradingEngine) startLocked(r inventory.Reserve) {
	e.tracker.Set(r)
	e.publishReserve(r)

	e.stats.mu.Lock()
	e.stats.StartTime = time.Now()
	e.stats.mu.Unlock()
	e.setState(StateRunning)
	if e.alertMgr != nil {
		e.alertMgr.Send(alert.TypeStarted, fmt.Sprintf("%s reserve %s", e.config.Symbol, r))
	}
}

func (e *TradingEngine) computeReserve() (inventory.Reserve, error) {
	if e.market == nil {
		return inventory.Reserve{}, fmt.Errorf("%w: no market state", ErrNotReady)
	}
	base, okBase := e.market.Balance(e.config.BaseCurrency)
	quote, okQuote := e.market.Balance(e.config.QuoteCurrency)
	price, okPrice := e.market.ReferencePrice()
	if !okBase || !okQuote || !okPrice {
		return inventory.Reserve{}, fmt.Errorf("%w: balances %t/%t price %t", ErrNotReady, okBase, okQuote, okPrice)
	}
	r, err := e.config.PriceBand.MaximumReserve(base, quote, price)
	if err != nil {
		return inventory.Reserve{}, fmt.Errorf("calculate reserve: %w", err)
	}
	return r, nil
}

// Handle 处理一条交易所消息，返回的错误包装 ErrFatal 时调用方应退出。
func (e *TradingEngine) Handle(ctx context.Context, ev gateway.Event) error {
	switch ev.Kind {
	case gateway.EventInfo:
		if err := e.RefreshTicker(ctx); err != nil {
			e.logger.Warn("ticker refresh failed", zap.Error(err))
		}
		return e.tryBootstrap(ctx)
	case gateway.EventWallet:
		if e.market != nil {
			for _, w := range ev.Wallets {
				if w.Type == "" || w.Type == "exchange" {
					e.market.HandleWalletUpdate(w.Currency, w.Balance)
				}
			}
		}
		return e.tryBootstrap(ctx)
	case gateway.EventTrade:
		if ev.Trade == nil || ev.Trade.Symbol != e.config.Symbol {
			return nil
		}
		return e.OnFill(ctx, ev.Trade.Fill(e.config.BaseCurrency, e.config.QuoteCurrency))
	case gateway.EventOrder:
		for _, u := range ev.Orders {
			if err := e.orders.Update(u.ClientID, gateway.OrderStatus(u)); err != nil {
				e.logger.Debug("order update ignored", zap.Int64("cid", u.ClientID), zap.Error(err))
			}
		}
	case gateway.EventNotification:
		if ev.Notice != nil && ev.Notice.Status == "ERROR" {
			e.logger.Warn("exchange notification", zap.String("type", ev.Notice.Type), zap.String("text", ev.Notice.Text))
			e.recordError()
		}
	}
	return nil
}

func (e *TradingEngine) tryBootstrap(ctx context.Context) error {
	if e.GetState() != StateIdle {
		return nil
	}
	err := e.Bootstrap(ctx)
	if errors.Is(err, ErrNotReady) {
		e.logger.Debug("bootstrap deferred", zap.Error(err))
		return nil
	}
	return err
}

// RefreshTicker 从 REST 拉取行情写入 Market。
func (e *TradingEngine) RefreshTicker(ctx context.Context) error {
	if e.ticker == nil || e.market == nil {
		return nil
	}
	t, err := e.ticker.Ticker(ctx, e.config.Symbol)
	if err != nil {
		return err
	}
	e.market.HandleTicker(t.Bid, t.Ask, t.Last, time.Now().UTC())
	return nil
}

// OnFill 按顺序执行：撤单、校验并应用成交、持久化、异常检测与熔断、重新挂单。
func (e *TradingEngine) OnFill(ctx context.Context, f inventory.Fill) error {
	e.cycle.Lock()
	defer e.cycle.Unlock()

	switch e.GetState() {
	case StateStopped:
		return ErrStopped
	case StateIdle:
		// 钱包快照之前到达的成交只能叠加在已持久化的储备上，此时还没有挂单
		r, err := e.initialReserve(ctx, false)
		if err != nil {
			e.logger.Warn("fill before bootstrap", zap.String("fill_id", f.ID), zap.Error(err))
			e.recordError()
			return fmt.Errorf("fill %s: %w", f.ID, err)
		}
		e.startLocked(r)
	}
	if err := e.orders.CancelAll(ctx); err != nil {
		e.logger.Error("cancel before fill failed", zap.Error(err))
		e.recordError()
	}

	before, after, err := e.tracker.Apply(f, risk.CheckFor(e.guard, f))
	if err != nil {
		if errors.Is(err, risk.ErrInvariantDecreased) || errors.Is(err, inventory.ErrReserveDepleted) {
			e.notifier.NotifyInvariantViolation(err)
			metrics.RecordRisk("invariant")
			e.setState(StateStopped)
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
		e.logger.LogError(err, zap.String("fill_id", f.ID))
		e.recordError()
		// 阶梯已经撤掉，按未变的储备重新挂出
		if e.GetState() == StateRunning {
			if rerr := e.requoteLocked(ctx); rerr != nil {
				e.logger.Error("requote after rejected fill failed", zap.Error(rerr))
			}
		}
		return err
	}

	e.logger.LogFill("applied",
		zap.String("fill_id", f.ID),
		zap.String("symbol", f.Symbol),
		zap.String("side", f.Side()),
		zap.Stringer("amount", f.BaseAmount),
		zap.Stringer("price", f.Price),
		zap.Stringer("fee", f.Fee),
		zap.String("fee_asset", string(f.FeeAsset)))
	ratio := risk.InvariantRatio(before, after)
	metrics.RecordFill(f.Side(), ratio.InexactFloat64())
	e.publishReserve(after)

	e.stats.mu.Lock()
	e.stats.TotalFills++
	e.stats.LastFillTime = time.Now()
	e.stats.mu.Unlock()

	if err := e.store.Save(ctx, after); err != nil {
		metrics.PersistErrors.Inc()
		e.logger.LogError(err, zap.String("op", "persist_reserve"))
		e.recordError()
	}
	if e.journal != nil {
		if err := e.journal.RecordFill(f, before, after); err != nil {
			e.logger.Warn("journal write failed", zap.Error(err))
		}
	}

	anomalous, reasons := e.detectors.Check(f, before, after)
	if anomalous {
		e.notifier.NotifyAnomaly(f.ID, reasons)
		for _, r := range reasons {
			metrics.RecordRisk(r)
		}
	}
	if e.killSwitch != nil {
		if err := e.killSwitch.Record(anomalous); err != nil {
			e.notifier.NotifyKillSwitch(err)
			metrics.SetKillSwitch(true)
			metrics.RecordRisk("kill_switch")
			e.setState(StateStopped)
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
	}

	if e.GetState() == StatePaused {
		return nil
	}
	if err := e.requoteLocked(ctx); err != nil {
		return err
	}
	return e.settle(ctx)
}

// Requote 以当前储备重新挂出阶梯。
func (e *TradingEngine) Requote(ctx context.Context) error {
	e.cycle.Lock()
	defer e.cycle.Unlock()
	if e.GetState() != StateRunning {
		return nil
	}
	return e.requoteLocked(ctx)
}

func (e *TradingEngine) requoteLocked(ctx context.Context) error {
	r := e.tracker.Snapshot()
	e.mu.RLock()
	strat := e.strategy
	e.mu.RUnlock()

	ladder, err := strat.Ladder(r)
	if err != nil {
		e.recordError()
		return fmt.Errorf("build ladder: %w", err)
	}
	orders := order.FromLadder(ladder, e.config.Symbol)
	placed, err := e.orders.Replace(ctx, orders, r.EquilibriumPrice())
	if err != nil {
		metrics.OrderRejects.Inc()
		e.recordError()
		return fmt.Errorf("place ladder: %w", err)
	}
	buys, sells := 0, 0
	for _, o := range placed {
		if o.Side == order.SideSell {
			sells++
		} else {
			buys++
		}
	}
	metrics.UpdateLadder(buys, sells)
	e.stats.mu.Lock()
	e.stats.TotalRequotes++
	e.stats.mu.Unlock()
	e.logger.Info("ladder placed", zap.Int("buys", buys), zap.Int("sells", sells), zap.Stringer("equilibrium", r.EquilibriumPrice()))
	return nil
}

func (e *TradingEngine) settle(ctx context.Context) error {
	if e.config.SettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(e.config.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetParams 热更新阶梯参数，成功后立即重新挂单。
func (e *TradingEngine) SetParams(ctx context.Context, cfg strategy.EngineConfig) error {
	e.mu.RLock()
	cur := e.strategy
	e.mu.RUnlock()
	next, err := cur.WithConfig(cfg)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.strategy = next
	e.mu.Unlock()
	e.logger.Info("ladder params updated",
		zap.String("model", string(cfg.Model)),
		zap.Int("steps", cfg.Steps),
		zap.Stringer("size", cfg.SizePerStep))
	return e.Requote(ctx)
}

// Params 返回当前阶梯参数。
func (e *TradingEngine) Params() strategy.EngineConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strategy.Config()
}

// Run 运行对账循环直到 ctx 结束；对账发现孤儿订单时撤单并按当前储备重挂。
func (e *TradingEngine) Run(ctx context.Context) {
	if !e.config.EnableReconcile || e.reconciler == nil {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(e.config.ReconcileInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.onReconcile(ctx)
		}
	}
}

func (e *TradingEngine) onReconcile(ctx context.Context) {
	if e.GetState() != StateRunning {
		return
	}
	rep, err := e.reconciler.Reconcile(ctx)
	if err != nil {
		e.logger.Error("Order reconciliation failed", zap.Error(err))
		e.recordError()
		return
	}
	if rep.Clean() {
		return
	}
	e.logger.Warn("reconcile mismatch", zap.Int64s("missing", rep.Missing), zap.Int("orphans", len(rep.Orphans)))
	if e.alertMgr != nil {
		e.alertMgr.Send(alert.TypeReconcile, fmt.Sprintf("missing=%d orphans=%d", len(rep.Missing), len(rep.Orphans)))
	}
	if len(rep.Orphans) > 0 {
		if err := e.Requote(ctx); err != nil {
			e.logger.Error("requote after reconcile failed", zap.Error(err))
		}
	}
}

// Pause 暂停引擎：撤掉全部挂单，成交仍会记账
func (e *TradingEngine) Pause(ctx context.Context) error {
	e.cycle.Lock()
	defer e.cycle.Unlock()
	if e.GetState() != StateRunning {
		return fmt.Errorf("engine not running (state: %s)", e.GetState())
	}
	e.setState(StatePaused)
	e.logger.Info("Trading engine paused")
	return e.orders.CancelAll(ctx)
}

// Resume 恢复引擎并重新挂单
func (e *TradingEngine) Resume(ctx context.Context) error {
	e.cycle.Lock()
	defer e.cycle.Unlock()
	if e.GetState() != StatePaused {
		return fmt.Errorf("engine not paused (state: %s)", e.GetState())
	}
	e.setState(StateRunning)
	e.logger.Info("Trading engine resumed")
	return e.requoteLocked(ctx)
}

// Stop 撤销全部挂单并停止处理成交，可重复调用
func (e *TradingEngine) Stop(ctx context.Context) error {
	e.cycle.Lock()
	defer e.cycle.Unlock()
	prev := e.GetState()
	e.setState(StateStopped)
	if prev == StateIdle {
		return nil
	}
	if err := e.orders.CancelAll(ctx); err != nil {
		return fmt.Errorf("cancel on stop: %w", err)
	}
	if prev != StateStopped {
		e.logger.Info("Trading engine stopped")
		if e.alertMgr != nil {
			e.alertMgr.Send(alert.TypeStopped, e.config.Symbol)
		}
	}
	return nil
}

func (e *TradingEngine) publishReserve(r inventory.Reserve) {
	e.logger.LogReserve("reserve", r.Base, r.Quote, r.Invariant())
	metrics.UpdateReserve(r.Base.InexactFloat64(), r.Quote.InexactFloat64(),
		r.Invariant().InexactFloat64(), r.EquilibriumPrice().InexactFloat64())
}

// Reserve 返回当前储备。
func (e *TradingEngine) Reserve() inventory.Reserve { return e.tracker.Snapshot() }

// Valuation 以参考价计算储备价值与相对初始储备的盈亏。
func (e *TradingEngine) Valuation() (value, pnl decimal.Decimal, ok bool) {
	if e.market == nil {
		return decimal.Zero, decimal.Zero, false
	}
	mark, ok := e.market.ReferencePrice()
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	value, pnl = e.tracker.Valuation(mark)
	return value, pnl, true
}

// Snapshot 返回以参考价估值的储备快照，没有行情时 ok 为 false。
func (e *TradingEngine) Snapshot() (snap inventory.Snapshot, ok bool) {
	if e.market == nil {
		return inventory.Snapshot{}, false
	}
	mark, ok := e.market.ReferencePrice()
	if !ok {
		return inventory.Snapshot{}, false
	}
	s := inventory.Sync{Tracker: e.tracker}
	return s.Snapshot(mark), true
}

func (e *TradingEngine) setState(s EngineState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// GetState 获取引擎状态
func (e *TradingEngine) GetState() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// GetStatistics 获取统计信息
func (e *TradingEngine) GetStatistics() Statistics {
	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()
	return Statistics{
		StartTime:     e.stats.StartTime,
		TotalFills:    e.stats.TotalFills,
		TotalRequotes: e.stats.TotalRequotes,
		TotalErrors:   e.stats.TotalErrors,
		LastFillTime:  e.stats.LastFillTime,
	}
}

func (e *TradingEngine) recordError() {
	e.stats.mu.Lock()
	e.stats.TotalErrors++
	e.stats.mu.Unlock()
}

// validateConfig 验证配置
func validateConfig(cfg Config) error {
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if cfg.BaseCurrency == "" || cfg.QuoteCurrency == "" {
		return errors.New("base and quote currency are required")
	}
	if cfg.SettleDelay < 0 {
		return errors.New("settle_delay must be >= 0")
	}
	return nil
}

// validateComponents 验证组件
func validateComponents(c Components) error {
	if c.Strategy == nil {
		return errors.New("strategy is required")
	}
	if c.Orders == nil {
		return errors.New("order manager is required")
	}
	if c.Tracker == nil {
		return errors.New("tracker is required")
	}
	if c.Store == nil {
		return errors.New("reserve store is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}
