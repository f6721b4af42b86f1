package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/strategy"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const sampleConfig = `
env: prod
pair:
  symbol: tPNKETH
  base: PNK
  quote: ETH
ladder:
  model: linear
  steps: 4
  sizePerStep: "0.25"
  spread: 0.02
  interval: 0.005
bounds:
  min: 0.000001
  max: 0.001
risk:
  tolerance: 0.9999
  maxFills: 20
  settleDelay: 2s
gateway:
  exchange: bitfinex
  apiKey: foo
  apiSecret: bar
store:
  driver: file
  path: /tmp/reserve.json
`

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "prod" || cfg.Gateway.APIKey != "foo" {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	if cfg.Ladder.Model != strategy.ModelLinear || cfg.Ladder.Steps != 4 {
		t.Fatalf("unexpected ladder: %+v", cfg.Ladder)
	}
	if !cfg.Ladder.SizePerStep.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("sizePerStep = %s", cfg.Ladder.SizePerStep)
	}
	if !cfg.Ladder.Spread.Equal(decimal.RequireFromString("0.02")) {
		t.Fatalf("spread = %s", cfg.Ladder.Spread)
	}
	if cfg.Risk.SettleDelay != 2*time.Second {
		t.Fatalf("settleDelay = %s", cfg.Risk.SettleDelay)
	}
	// 未出现的字段保留默认值
	if cfg.Ladder.Limits.MaxSteps != strategy.DefaultLimits.MaxSteps {
		t.Fatalf("limits not defaulted: %+v", cfg.Ladder.Limits)
	}
	if cfg.Gateway.HeartbeatTimeout != 50*time.Second {
		t.Fatalf("heartbeat default lost: %s", cfg.Gateway.HeartbeatTimeout)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
gateway:
  exchange: bitfinex
`)
	t.Setenv("ETHFINEX_KEY", "legacy-key")
	t.Setenv("ETHFINEX_SECRET", "legacy-secret")
	t.Setenv("MM_GATEWAY_API_KEY", "env-key")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.APIKey != "env-key" || cfg.Gateway.APISecret != "legacy-secret" {
		t.Fatalf("env overrides not applied: %+v", cfg.Gateway)
	}
}

func TestMissingCredentials(t *testing.T) {
	path := writeTempConfig(t, "env: prod\n")
	_, err := Load(path)
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}

	cfg := Default()
	cfg.Gateway.Exchange = "idex"
	cfg.Gateway.APIKey = "k"
	if err := Validate(cfg); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("idex without private key: %v", err)
	}
	cfg.Gateway.Exchange = "paper"
	if err := Validate(cfg); err != nil {
		t.Fatalf("paper needs no credentials: %v", err)
	}
}

func TestValidate(t *testing.T) {
	err := Validate(AppConfig{})
	if err == nil {
		t.Fatalf("expected error for empty config")
	}

	base := Default()
	base.Gateway.Exchange = "paper"
	cases := map[string]func(*AppConfig){
		"same assets":      func(c *AppConfig) { c.Pair.Quote = c.Pair.Base },
		"bad ladder":       func(c *AppConfig) { c.Ladder.Steps = 0 },
		"bad tolerance":    func(c *AppConfig) { c.Risk.Tolerance = decimal.RequireFromString("1.5") },
		"inverted band":    func(c *AppConfig) { c.Bounds.Min, c.Bounds.Max = c.Bounds.Max, c.Bounds.Min },
		"unknown store":    func(c *AppConfig) { c.Store.Driver = "redis" },
		"postgres no dsn":  func(c *AppConfig) { c.Store.Driver = "postgres" },
		"journal no url":   func(c *AppConfig) { c.Journal.Enabled = true },
		"unknown exchange": func(c *AppConfig) { c.Gateway.Exchange = "binance" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if err := Validate(base); err != nil {
		t.Fatalf("default paper config should validate: %v", err)
	}
}

func TestParseRejectsBadYAML(t *testing.T) {
	if _, err := Parse([]byte("ladder: [")); err == nil {
		t.Fatalf("expected yaml error")
	}
	if _, err := Parse([]byte("ladder:\n  sizePerStep: abc\n")); err == nil {
		t.Fatalf("expected decimal error")
	}
}

func TestDecodeSkipsValidation(t *testing.T) {
	raw := "pair:\n  symbol: tPNKETH\n  constraints:\n    minNotional: \"0.01\"\nladder:\n  steps: 3\n"
	cfg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Ladder.Steps != 3 || cfg.Ladder.Model != strategy.ModelCurve {
		t.Fatalf("ladder not merged over defaults: %+v", cfg.Ladder)
	}
	if !cfg.Pair.Constraints.MinNotional.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("constraints not decoded: %+v", cfg.Pair.Constraints)
	}
	// 默认配置没有凭据
	if _, err := Parse([]byte(raw)); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
}
