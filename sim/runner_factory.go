package sim

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/infrastructure/logger"
	"github.com/kleros/market-maker/internal/engine"
	"github.com/kleros/market-maker/internal/store"
	"github.com/kleros/market-maker/inventory"
	"github.com/kleros/market-maker/order"
	"github.com/kleros/market-maker/posttrade"
	"github.com/kleros/market-maker/risk"
	"github.com/kleros/market-maker/strategy"
)

// RunnerConfig 描述 Runner 的可选参数。
type RunnerConfig struct {
	Symbol    string
	Reserve   inventory.Reserve
	Ladder    strategy.EngineConfig
	Tolerance decimal.Decimal
	FeeRate   decimal.Decimal
	// MaxFills 为 0 时不限制成交次数
	MaxFills        int
	MaxFillsPerStep int
	// StepInterval 是模拟时钟每步前进的时间，默认 1s
	StepInterval    time.Duration
	MarkoutHorizons []time.Duration
	Logger          *logger.Logger
}

// BuildRunner 基于配置快速组装 Runner（使用内存组件，适合离线/仿真）。
func BuildRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Symbol == "" {
		cfg.Symbol = "tPNKETH"
	}
	if err := cfg.Reserve.Validate(); err != nil {
		return nil, err
	}
	strat, err := strategy.NewEngine(cfg.Ladder)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	ex := NewPaperExchange()
	ex.FeeRate = cfg.FeeRate
	var ks *risk.KillSwitch
	if cfg.MaxFills > 0 {
		ks = risk.NewKillSwitch(cfg.MaxFills, 0)
	}

	eng, err := engine.New(engine.Config{
		Symbol:        cfg.Symbol,
		BaseCurrency:  "BASE",
		QuoteCurrency: "QUOTE",
	}, engine.Components{
		Strategy:   strat,
		Orders:     order.NewManager(ex, order.NewSessionFrom(1)),
		Tracker:    inventory.NewTracker(inventory.Reserve{}),
		Store:      store.NewMemoryStoreWith(cfg.Reserve),
		Guard:      risk.InvariantGuard{Tolerance: cfg.Tolerance},
		Detectors:  risk.Detectors{risk.InvariantDrift{}, risk.AdverseFill{}},
		KillSwitch: ks,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = time.Second
	}
	return &Runner{
		Engine:          eng,
		Exchange:        ex,
		MaxFillsPerStep: cfg.MaxFillsPerStep,
		StepInterval:    cfg.StepInterval,
		Start:           time.Unix(0, 0).UTC(),
		Markout:         posttrade.NewAnalyzer(cfg.MarkoutHorizons...),
	}, nil
}
