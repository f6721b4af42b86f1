package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrConstraint 表示订单不满足交易对的精度或名义限制。
var ErrConstraint = errors.New("order violates symbol constraints")

// SymbolConstraints 描述交易对的步长与名义限制，零值表示不限制。
type SymbolConstraints struct {
	TickSize    decimal.Decimal `yaml:"tickSize"`
	StepSize    decimal.Decimal `yaml:"stepSize"`
	MinQty      decimal.Decimal `yaml:"minQty"`
	MaxQty      decimal.Decimal `yaml:"maxQty"`
	MinNotional decimal.Decimal `yaml:"minNotional"`
}

// Validate 检查订单价格/数量是否符合精度与最小名义。
func (c SymbolConstraints) Validate(price, qty decimal.Decimal) error {
	if !isMultiple(price, c.TickSize) {
		return fmt.Errorf("%w: price %s not aligned to tickSize %s", ErrConstraint, price, c.TickSize)
	}
	if !isMultiple(qty, c.StepSize) {
		return fmt.Errorf("%w: qty %s not aligned to stepSize %s", ErrConstraint, qty, c.StepSize)
	}
	if c.MinQty.IsPositive() && qty.LessThan(c.MinQty) {
		return fmt.Errorf("%w: qty %s < minQty %s", ErrConstraint, qty, c.MinQty)
	}
	if c.MaxQty.IsPositive() && qty.GreaterThan(c.MaxQty) {
		return fmt.Errorf("%w: qty %s > maxQty %s", ErrConstraint, qty, c.MaxQty)
	}
	if notional := price.Mul(qty); c.MinNotional.IsPositive() && notional.LessThan(c.MinNotional) {
		return fmt.Errorf("%w: notional %s < minNotional %s", ErrConstraint, notional, c.MinNotional)
	}
	return nil
}

func isMultiple(value, step decimal.Decimal) bool {
	if !step.IsPositive() {
		return true
	}
	return value.Mod(step).IsZero()
}
