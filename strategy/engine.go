package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/inventory"
)

// Model 选择阶梯的定价模型。
type Model string

const (
	ModelLinear    Model = "linear"     // 围绕均衡价的固定价差阶梯
	ModelCurve     Model = "curve"      // 恒定乘积曲线阶梯
	ModelPriceStep Model = "price_step" // 旧式等比例阶梯，size 以 base 计
)

// EngineConfig 是生成阶梯所需的全部参数。
type EngineConfig struct {
	Model       Model
	Steps       int
	SizePerStep decimal.Decimal // linear/curve 以 quote 计，price_step 以 base 计
	Spread      decimal.Decimal
	Interval    decimal.Decimal
	Limits      Limits
}

// Validate 在不依赖储备的前提下检查参数。
func (c EngineConfig) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	switch c.Model {
	case ModelLinear:
		if err := c.Limits.checkSteps(c.Steps); err != nil {
			return err
		}
		if err := c.Limits.checkSize(c.SizePerStep); err != nil {
			return err
		}
		if err := c.Limits.checkSpread(c.Spread, c.Interval); err != nil {
			return err
		}
		if !c.Interval.Mul(decimal.NewFromInt(int64(c.Steps))).LessThan(one) {
			return fmt.Errorf("%w: steps × interval must be < 1", ErrInvalidParams)
		}
	case ModelCurve:
		if err := c.Limits.checkSteps(c.Steps); err != nil {
			return err
		}
		if err := c.Limits.checkSize(c.SizePerStep); err != nil {
			return err
		}
	case ModelPriceStep:
		if c.Steps <= 0 || !c.SizePerStep.IsPositive() || !c.Spread.IsPositive() {
			return fmt.Errorf("%w: price_step needs steps, size and spread > 0", ErrInvalidParams)
		}
		if !c.Spread.Mul(decimal.NewFromInt(int64(c.Steps))).LessThan(one) {
			return fmt.Errorf("%w: spread × steps must be < 1", ErrInvalidParams)
		}
	default:
		return fmt.Errorf("%w: unknown model %q", ErrInvalidParams, c.Model)
	}
	return nil
}

// Engine 根据当前储备生成阶梯。Engine 不可变，可并发使用。
type Engine struct {
	cfg EngineConfig
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Limits.isZero() {
		cfg.Limits = DefaultLimits
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config 返回引擎参数。
func (e *Engine) Config() EngineConfig { return e.cfg }

// WithConfig 返回使用新参数的引擎，原引擎不变。用于热更新。
func (e *Engine) WithConfig(cfg EngineConfig) (*Engine, error) {
	if cfg.Limits.isZero() {
		cfg.Limits = e.cfg.Limits
	}
	return NewEngine(cfg)
}

// Ladder 生成当前储备下的完整阶梯。
func (e *Engine) Ladder(r inventory.Reserve) ([]OrderDelta, error) {
	c := e.cfg
	switch c.Model {
	case ModelLinear:
		return c.Limits.ReserveStaircase(c.Steps, c.SizePerStep, c.Spread, c.Interval, r)
	case ModelCurve:
		return c.Limits.BondingCurveStaircase(c.Steps, c.SizePerStep, r)
	case ModelPriceStep:
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return PriceStepStaircase(c.Steps, c.SizePerStep, c.Spread, r.EquilibriumPrice())
	}
	return nil, fmt.Errorf("%w: unknown model %q", ErrInvalidParams, c.Model)
}
