package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kleros/market-maker/config"
	"github.com/kleros/market-maker/gateway"
	"github.com/kleros/market-maker/infrastructure/alert"
	"github.com/kleros/market-maker/infrastructure/journal"
	"github.com/kleros/market-maker/infrastructure/logger"
	hotreload "github.com/kleros/market-maker/internal/config"
	"github.com/kleros/market-maker/internal/engine"
	"github.com/kleros/market-maker/internal/store"
	"github.com/kleros/market-maker/inventory"
	"github.com/kleros/market-maker/metrics"
	"github.com/kleros/market-maker/order"
	"github.com/kleros/market-maker/risk"
	"github.com/kleros/market-maker/sim"
	"github.com/kleros/market-maker/strategy"
)

// 退出码供 systemd 区分重启策略
const (
	exitOK        = 0
	exitFailure   = 1
	exitConfig    = 2
	exitKill      = 5
	exitInvariant = 6
	exitLinkDown  = 123
)

const (
	paperPollInterval = 5 * time.Second
	reportInterval    = time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	dryRun := flag.Bool("dryRun", false, "仅日志输出，不真正下单")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，覆盖配置文件")
	hotReload := flag.Bool("hotReload", true, "监听配置文件并热更新阶梯参数")
	flag.Parse()

	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return exitConfig
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return exitConfig
	}
	defer log.Close()
	log = log.With(zap.String("symbol", cfg.Pair.Symbol), zap.String("exchange", cfg.Gateway.Exchange))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if cfg.Metrics.Addr != "" {
		metrics.StartMetricsServer(ctx, cfg.Metrics.Addr)
		log.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
	}

	rs, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.LogError(err, zap.String("stage", "store"))
		return exitConfig
	}
	defer rs.Close()

	alerts := alert.NewManager([]alert.Channel{alert.NewLogChannel("log", log)}, cfg.Alert.ThrottleInterval)
	if cfg.Alert.WebhookURL != "" {
		alerts.AddChannel(alert.NewWebhookChannel("webhook", cfg.Alert.WebhookURL, gateway.NewDefaultHTTPClient()))
	}

	var jr engine.Journal
	if cfg.Journal.Enabled {
		influx, err := journal.NewInflux(journal.Config{
			URL:      cfg.Journal.URL,
			Database: cfg.Journal.Database,
			Username: cfg.Journal.Username,
			Password: cfg.Journal.Password,
			Tags:     map[string]string{"env": cfg.Env},
		})
		if err != nil {
			log.LogError(err, zap.String("stage", "journal"))
			return exitConfig
		}
		defer influx.Close()
		jr = influx
	}

	ex, err := newExchange(&cfg, log)
	if err != nil {
		log.LogError(err, zap.String("stage", "gateway"))
		if errors.Is(err, config.ErrMissingCredentials) {
			return exitConfig
		}
		return exitFailure
	}
	var gw order.Gateway = gateway.NewBreakerGateway(ex.gateway, gateway.DefaultBreaker)
	if *dryRun {
		gw = dryRunGateway{log: log.Named("dry_run")}
	}

	strat, err := strategy.NewEngine(cfg.Ladder.EngineConfig())
	if err != nil {
		log.LogError(err, zap.String("stage", "strategy"))
		return exitConfig
	}
	orders := order.NewManager(gw, order.NewSession())
	orders.Constrain(cfg.Pair.Symbol, cfg.Pair.Constraints)

	var reconciler *order.Reconciler
	if ex.openOrders != nil && !*dryRun {
		reconciler = order.NewReconciler(ex.openOrders, orders, cfg.Pair.Symbol)
	}

	var ks *risk.KillSwitch
	if cfg.Risk.MaxFills > 0 || cfg.Risk.MaxConsecutiveAnomalies > 0 {
		ks = risk.NewKillSwitch(cfg.Risk.MaxFills, cfg.Risk.MaxConsecutiveAnomalies)
	}
	stateLog := log.Named("state")
	eng, err := engine.New(engine.Config{
		Symbol:            cfg.Pair.Symbol,
		BaseCurrency:      cfg.Pair.Base,
		QuoteCurrency:     cfg.Pair.Quote,
		PriceBand:         cfg.Bounds,
		SettleDelay:       cfg.Risk.SettleDelay,
		EnableReconcile:   cfg.Reconcile.Enabled && reconciler != nil,
		ReconcileInterval: cfg.Reconcile.Interval,
	}, engine.Components{
		Strategy: strat,
		Orders:   orders,
		Tracker:  inventory.NewTracker(inventory.Reserve{}),
		Store:    rs,
		Market: store.NewState(cfg.Pair.Symbol, func(event string, fields map[string]interface{}) {
			stateLog.Debug(event, zap.Any("fields", fields))
		}),
		Ticker: ex.ticker,
		Guard:  risk.InvariantGuard{Tolerance: cfg.Risk.Tolerance},
		Detectors: risk.Detectors{
			risk.InvariantDrift{},
			risk.AdverseFill{},
			risk.NewCircuitBreaker(cfg.Risk.CircuitOneMin, cfg.Risk.CircuitFiveMin),
		},
		KillSwitch: ks,
		Alert:      alerts,
		Journal:    jr,
		Reconciler: reconciler,
		Logger:     log,
	})
	if err != nil {
		log.LogError(err, zap.String("stage", "engine"))
		return exitConfig
	}

	if *hotReload {
		hr, err := hotreload.NewHotReloader(*cfgPath, hotreload.DefaultHotReloadConfig(), cfg.Ladder, eng, log)
		if err != nil {
			log.LogError(err, zap.String("stage", "hot_reload"))
			return exitFailure
		}
		go func() {
			if err := hr.Run(ctx); err != nil {
				log.Warn("hot reload stopped", zap.Error(err))
			}
		}()
	}

	go eng.Run(ctx)
	go watchdog(ctx, log)
	go report(ctx, eng, log)

	var (
		fatalMu sync.Mutex
		fatal   error
	)
	handler := gateway.HandlerFunc(func(ctx context.Context, ev gateway.Event) {
		if err := eng.Handle(ctx, ev); err != nil {
			if errors.Is(err, engine.ErrFatal) {
				fatalMu.Lock()
				fatal = err
				fatalMu.Unlock()
				cancel()
				return
			}
			log.Warn("event handling failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-quit:
			log.Info("signal received", zap.String("signal", s.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("runner started", zap.Bool("dryRun", *dryRun))
	linkErr := gateway.Supervise(ctx, gateway.DefaultSupervise, log, func(ctx context.Context) error {
		return ex.run(ctx, handler)
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := eng.Stop(stopCtx); err != nil {
		log.LogError(err, zap.String("stage", "stop"))
	}
	stats := eng.GetStatistics()
	log.Info("runner exit",
		zap.Int64("fills", stats.TotalFills),
		zap.Int64("requotes", stats.TotalRequotes),
		zap.Int64("errors", stats.TotalErrors))

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return exitCode(fatal, linkErr)
}

// exitCode 优先按引擎致命错误分类，其次是连接错误。
func exitCode(fatal, link error) int {
	switch {
	case errors.Is(fatal, risk.ErrKillSwitch):
		return exitKill
	case errors.Is(fatal, risk.ErrInvariantDecreased), errors.Is(fatal, inventory.ErrReserveDepleted):
		return exitInvariant
	case fatal != nil:
		return exitFailure
	case errors.Is(link, gateway.ErrAuthFailed):
		return exitConfig
	case link != nil:
		return exitLinkDown
	}
	return exitOK
}

// exchange 把一个交易所的行情、下单与事件流组合在一起。
type exchange struct {
	gateway    order.Gateway
	ticker     engine.TickerSource
	openOrders order.OpenOrderSource
	run        func(ctx context.Context, h gateway.Handler) error
}

func newExchange(cfg *config.AppConfig, log *logger.Logger) (*exchange, error) {
	gc := cfg.Gateway
	switch strings.ToLower(gc.Exchange) {
	case "bitfinex":
		creds := gateway.Credentials{Key: gc.APIKey, Secret: gc.APISecret}
		ws := gateway.NewBitfinexWS(creds, log)
		if gc.WSURL != "" {
			ws.URL = gc.WSURL
		}
		if gc.HeartbeatTimeout > 0 {
			ws.HeartbeatTimeout = gc.HeartbeatTimeout
		}
		rest := gateway.NewBitfinexREST(creds, nil)
		if gc.RESTURL != "" {
			rest.AuthURL = gc.RESTURL
		}
		if gc.RatePerSecond > 0 {
			rest.Limiter = gateway.NewTokenBucketLimiter(gc.RatePerSecond, gc.Burst)
		}
		return &exchange{gateway: ws, ticker: rest, openOrders: rest, run: ws.Run}, nil

	case "idex":
		signer, err := order.NewIdexSigner(gc.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrMissingCredentials, err)
		}
		address := signer.Address().Hex()
		rest := gateway.NewIdexREST(gc.APIKey, cfg.Pair.Symbol, signer, log)
		if gc.RESTURL != "" {
			rest.BaseURL = gc.RESTURL
		}
		if gc.RatePerSecond > 0 {
			rest.Limiter = gateway.NewTokenBucketLimiter(gc.RatePerSecond, gc.Burst)
		}
		ws := gateway.NewIdexWS(gc.APIKey, address, cfg.Pair.Symbol, log)
		if gc.WSURL != "" {
			ws.URL = gc.WSURL
		}
		if gc.HeartbeatTimeout > 0 {
			ws.HeartbeatTimeout = gc.HeartbeatTimeout
		}
		run := func(ctx context.Context, h gateway.Handler) error {
			return ws.Run(ctx, idexBalances(rest, h, log))
		}
		return &exchange{gateway: rest, ticker: idexTicker{rest: rest}, run: run}, nil

	case "paper":
		paper := sim.NewPaperExchange()
		rest := gateway.NewBitfinexREST(gateway.Credentials{}, nil)
		if gc.RESTURL != "" {
			rest.PublicURL = gc.RESTURL
		}
		run := func(ctx context.Context, h gateway.Handler) error {
			return runPaper(ctx, paper, rest, cfg, h)
		}
		return &exchange{gateway: paper, ticker: rest, openOrders: paper, run: run}, nil
	}
	return nil, fmt.Errorf("unknown exchange %q", gc.Exchange)
}

// idexTicker 适配 IDEX 的单市场行情接口。
type idexTicker struct {
	rest *gateway.IdexREST
}

func (t idexTicker) Ticker(ctx context.Context, _ string) (gateway.Ticker, error) {
	return t.rest.Ticker(ctx)
}

// idexBalances 在订阅成功后先拉取余额，IDEX 的推送流不含钱包快照。
func idexBalances(rest *gateway.IdexREST, next gateway.Handler, log *logger.Logger) gateway.Handler {
	return gateway.HandlerFunc(func(ctx context.Context, ev gateway.Event) {
		if ev.Kind == gateway.EventInfo {
			wallets, err := rest.Balances(ctx)
			if err != nil {
				log.Warn("idex balances failed", zap.Error(err))
			} else {
				next.OnEvent(ctx, gateway.Event{Kind: gateway.EventWallet, Wallets: wallets})
			}
		}
		next.OnEvent(ctx, ev)
	})
}

// runPaper 用公开行情驱动模拟撮合，每次只撮合一笔，成交后由引擎重挂。
func runPaper(ctx context.Context, paper *sim.PaperExchange, rest *gateway.BitfinexREST, cfg *config.AppConfig, h gateway.Handler) error {
	wallets := make([]gateway.Wallet, 0, len(cfg.Gateway.PaperBalances))
	for cur, bal := range cfg.Gateway.PaperBalances {
		wallets = append(wallets, gateway.Wallet{Type: "exchange", Currency: cur, Balance: bal})
	}
	h.OnEvent(ctx, gateway.Event{Kind: gateway.EventWallet, Wallets: wallets})
	h.OnEvent(ctx, gateway.Event{Kind: gateway.EventInfo, Message: "paper"})

	t := time.NewTicker(paperPollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		tk, err := rest.Ticker(ctx, cfg.Pair.Symbol)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for i := 0; i < sim.DefaultMaxFillsPerStep; i++ {
			f, ok := paper.Match(tk.Last)
			if !ok {
				break
			}
			id, _ := strconv.ParseInt(strings.TrimPrefix(f.ID, "sim-"), 10, 64)
			h.OnEvent(ctx, gateway.Event{Kind: gateway.EventTrade, Trade: &gateway.Trade{
				ID:          id,
				Symbol:      cfg.Pair.Symbol,
				Time:        f.Time,
				Amount:      f.BaseAmount,
				Price:       f.Price,
				Fee:         f.Fee,
				FeeCurrency: cfg.Pair.Quote,
			}})
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

// dryRunGateway 只记录订单，不发送。
type dryRunGateway struct {
	log *logger.Logger
}

func (g dryRunGateway) Submit(_ context.Context, orders []order.Order) error {
	for _, o := range orders {
		g.log.LogOrder("order_place_dry_run", o.ClientID,
			zap.String("side", string(o.Side)),
			zap.Stringer("price", o.Price),
			zap.Stringer("amount", o.Amount))
	}
	return nil
}

func (g dryRunGateway) CancelAll(context.Context) error {
	g.log.Info("cancel_all_dry_run")
	return nil
}

// report 每分钟记录一次储备估值。
func report(ctx context.Context, eng *engine.TradingEngine, log *logger.Logger) {
	t := time.NewTicker(reportInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		snap, ok := eng.Snapshot()
		if !ok {
			continue
		}
		log.Info("reserve_report",
			zap.Stringer("base", snap.Reserve.Base),
			zap.Stringer("quote", snap.Reserve.Quote),
			zap.Stringer("k", snap.Invariant),
			zap.Stringer("equilibrium", snap.EquilibriumPrice),
			zap.Stringer("value", snap.Value),
			zap.Stringer("pnl", snap.PnL),
			zap.Int("fills", snap.Fills),
			zap.String("state", eng.GetState().String()))
	}
}

// watchdog 在 systemd 开启 WatchdogSec 时按半周期喂狗。
func watchdog(ctx context.Context, log *logger.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	log.Info("systemd watchdog enabled", zap.Duration("interval", interval))
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
