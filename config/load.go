package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kleros/market-maker/infrastructure/logger"
	"github.com/kleros/market-maker/internal/store"
	"github.com/kleros/market-maker/inventory"
	"github.com/kleros/market-maker/order"
	"github.com/kleros/market-maker/risk"
	"github.com/kleros/market-maker/strategy"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string              `yaml:"env"`
	Pair      PairConfig          `yaml:"pair"`
	Ladder    LadderConfig        `yaml:"ladder"`
	Bounds    inventory.PriceBand `yaml:"bounds"`
	Risk      RiskConfig          `yaml:"risk"`
	Gateway   GatewayConfig       `yaml:"gateway"`
	Store     store.Config        `yaml:"store"`
	Metrics   MetricsConfig       `yaml:"metrics"`
	Journal   JournalConfig       `yaml:"journal"`
	Alert     AlertConfig         `yaml:"alert"`
	Reconcile ReconcileConfig     `yaml:"reconcile"`
	Log       logger.Config       `yaml:"log"`
}

// PairConfig 交易对与两种资产的币种代码。
type PairConfig struct {
	Symbol string `yaml:"symbol"` // 交易所符号，例如 tPNKETH
	Base   string `yaml:"base"`   // PNK
	Quote  string `yaml:"quote"`  // ETH
	// Constraints 为空时不检查下单精度
	Constraints order.SymbolConstraints `yaml:"constraints"`
}

// LadderConfig 阶梯参数，可热更新。
type LadderConfig struct {
	Model       strategy.Model  `yaml:"model"`
	Steps       int             `yaml:"steps"`
	SizePerStep decimal.Decimal `yaml:"sizePerStep"`
	Spread      decimal.Decimal `yaml:"spread"`
	Interval    decimal.Decimal `yaml:"interval"`
	Limits      strategy.Limits `yaml:"limits"`
}

// EngineConfig 转换为策略引擎参数。
func (l LadderConfig) EngineConfig() strategy.EngineConfig {
	return strategy.EngineConfig{
		Model:       l.Model,
		Steps:       l.Steps,
		SizePerStep: l.SizePerStep,
		Spread:      l.Spread,
		Interval:    l.Interval,
		Limits:      l.Limits,
	}
}

type RiskConfig struct {
	Tolerance               decimal.Decimal `yaml:"tolerance"`               // newK >= oldK × tolerance
	MaxFills                int             `yaml:"maxFills"`                // 0 表示不限制
	MaxConsecutiveAnomalies int             `yaml:"maxConsecutiveAnomalies"` // 0 表示不限制
	CircuitOneMin           decimal.Decimal `yaml:"circuitOneMin"`           // 1 分钟内价格变动比例上限，0 关闭
	CircuitFiveMin          decimal.Decimal `yaml:"circuitFiveMin"`
	SettleDelay             time.Duration   `yaml:"settleDelay"`
}

type GatewayConfig struct {
	Exchange         string        `yaml:"exchange"` // bitfinex | idex | paper
	APIKey           string        `yaml:"apiKey"`
	APISecret        string        `yaml:"apiSecret"`
	PrivateKey       string        `yaml:"privateKey"` // 仅 idex，用于订单签名
	WSURL            string        `yaml:"wsURL"`
	RESTURL          string        `yaml:"restURL"`
	HeartbeatTimeout time.Duration `yaml:"heartbeatTimeout"`
	RatePerSecond    float64       `yaml:"ratePerSecond"`
	Burst            int           `yaml:"burst"`
	// PaperBalances 是 paper 模式下的模拟钱包余额，按币种
	PaperBalances map[string]decimal.Decimal `yaml:"paperBalances"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 为空则不启动
}

type JournalConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type AlertConfig struct {
	WebhookURL       string        `yaml:"webhookURL"`
	ThrottleInterval time.Duration `yaml:"throttleInterval"`
}

type ReconcileConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Default 返回 PNK/ETH 的默认配置，YAML 中出现的字段会覆盖它。
func Default() AppConfig {
	return AppConfig{
		Env:  "dev",
		Pair: PairConfig{Symbol: "tPNKETH", Base: "PNK", Quote: "ETH"},
		Ladder: LadderConfig{
			Model:       strategy.ModelCurve,
			Steps:       16,
			SizePerStep: decimal.RequireFromString("0.5"),
			Limits:      strategy.DefaultLimits,
		},
		Bounds: inventory.DefaultPriceBand,
		Risk: RiskConfig{
			Tolerance:   risk.DefaultTolerance,
			MaxFills:    20,
			SettleDelay: 2 * time.Second,
		},
		Gateway: GatewayConfig{
			Exchange:         "bitfinex",
			HeartbeatTimeout: 50 * time.Second,
			RatePerSecond:    5,
			Burst:            10,
		},
		Store:     store.DefaultConfig(),
		Journal:   JournalConfig{Database: "algos"},
		Alert:     AlertConfig{ThrottleInterval: 5 * time.Minute},
		Reconcile: ReconcileConfig{Enabled: true, Interval: 30 * time.Second},
		Log:       logger.DefaultConfig(),
	}
}

// Decode decodes YAML on top of Default without validation.
func Decode(raw []byte) (AppConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(raw []byte) (AppConfig, error) {
	cfg, err := Decode(raw)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// envOverrides 按顺序应用，同一字段后出现的变量优先。
var envOverrides = []struct {
	name  string
	apply func(*AppConfig, string)
}{
	{"ETHFINEX_KEY", func(c *AppConfig, v string) { c.Gateway.APIKey = v }},
	{"ETHFINEX_SECRET", func(c *AppConfig, v string) { c.Gateway.APISecret = v }},
	{"MM_GATEWAY_API_KEY", func(c *AppConfig, v string) { c.Gateway.APIKey = v }},
	{"MM_GATEWAY_API_SECRET", func(c *AppConfig, v string) { c.Gateway.APISecret = v }},
	{"MM_GATEWAY_PRIVATE_KEY", func(c *AppConfig, v string) { c.Gateway.PrivateKey = v }},
	{"MM_STORE_DSN", func(c *AppConfig, v string) { c.Store.DSN = v }},
	{"MM_ALERT_WEBHOOK", func(c *AppConfig, v string) { c.Alert.WebhookURL = v }},
	{"MM_JOURNAL_PASSWORD", func(c *AppConfig, v string) { c.Journal.Password = v }},
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("read config: %w", err)
	}
	cfg, err := Decode(raw)
	if err != nil {
		return cfg, err
	}
	ApplyEnv(&cfg)
	return cfg, Validate(cfg)
}

// ApplyEnv 用环境变量覆盖敏感字段。
func ApplyEnv(cfg *AppConfig) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}
