package config

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrMissingCredentials 表示所选交易所缺少密钥。
var ErrMissingCredentials = errors.New("missing exchange credentials")

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Pair.Symbol == "" || cfg.Pair.Base == "" || cfg.Pair.Quote == "" {
		return errors.New("pair.symbol/base/quote is required")
	}
	if cfg.Pair.Base == cfg.Pair.Quote {
		return fmt.Errorf("pair base and quote must differ, got %s", cfg.Pair.Base)
	}
	if err := ValidateLadder(cfg.Ladder); err != nil {
		return err
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return fmt.Errorf("bounds: %w", err)
	}
	if err := validateRisk(cfg.Risk); err != nil {
		return err
	}
	if err := validateGateway(cfg.Gateway); err != nil {
		return err
	}
	switch cfg.Store.Driver {
	case "", "file":
		if cfg.Store.Path == "" {
			return errors.New("store.path is required for the file driver")
		}
	case "postgres":
		if cfg.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store.driver %q", cfg.Store.Driver)
	}
	if cfg.Journal.Enabled && cfg.Journal.URL == "" {
		return errors.New("journal.url is required when the journal is enabled")
	}
	if cfg.Reconcile.Interval < 0 {
		return errors.New("reconcile.interval must be >= 0")
	}
	return nil
}

func validateRisk(r RiskConfig) error {
	one := decimal.NewFromInt(1)
	if !r.Tolerance.IsPositive() || r.Tolerance.GreaterThan(one) {
		return ErrInvalid(fmt.Sprintf("risk.tolerance %s must be in (0, 1]", r.Tolerance))
	}
	if r.MaxFills < 0 || r.MaxConsecutiveAnomalies < 0 {
		return ErrInvalid("risk.maxFills/maxConsecutiveAnomalies must be >= 0")
	}
	if r.CircuitOneMin.IsNegative() || r.CircuitFiveMin.IsNegative() {
		return ErrInvalid("risk circuit thresholds must be >= 0")
	}
	if r.SettleDelay < 0 {
		return ErrInvalid("risk.settleDelay must be >= 0")
	}
	return nil
}

func validateGateway(g GatewayConfig) error {
	switch g.Exchange {
	case "bitfinex":
		if g.APIKey == "" || g.APISecret == "" {
			return fmt.Errorf("%w: gateway.apiKey/apiSecret is required (or env overrides)", ErrMissingCredentials)
		}
	case "idex":
		if g.APIKey == "" || g.PrivateKey == "" {
			return fmt.Errorf("%w: gateway.apiKey/privateKey is required (or env overrides)", ErrMissingCredentials)
		}
	case "paper":
	default:
		return fmt.Errorf("unknown gateway.exchange %q", g.Exchange)
	}
	if g.HeartbeatTimeout < 0 {
		return ErrInvalid("gateway.heartbeatTimeout must be >= 0")
	}
	if g.RatePerSecond < 0 || g.Burst < 0 {
		return ErrInvalid("gateway rate limit must be >= 0")
	}
	return nil
}
