package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/inventory"
)

// BondingCurveStaircase 使用默认边界生成恒定乘积曲线阶梯。
func BondingCurveStaircase(steps int, sizePerStep decimal.Decimal, reserve inventory.Reserve) ([]OrderDelta, error) {
	return DefaultLimits.BondingCurveStaircase(steps, sizePerStep, reserve)
}

// BondingCurveStaircase 沿 base×quote=k 曲线报价，第 n 档（n 从 1 开始）：
//
//	sell = (quote + size×n)² / k
//	buy  = (quote − size×n)² / k
//
// 连续成交会沿曲线移动价格，而不是回到固定价差。
func (l Limits) BondingCurveStaircase(steps int, sizePerStep decimal.Decimal, reserve inventory.Reserve) ([]OrderDelta, error) {
	if err := reserve.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := l.checkSteps(steps); err != nil {
		return nil, err
	}
	if err := l.checkSize(sizePerStep); err != nil {
		return nil, err
	}
	depth := sizePerStep.Mul(decimal.NewFromInt(int64(steps)))
	if !reserve.Quote.GreaterThan(depth) {
		return nil, fmt.Errorf("%w: reserve quote %s must exceed ladder depth %s", ErrInvalidParams, reserve.Quote, depth)
	}

	k := reserve.Invariant()
	eq := reserve.EquilibriumPrice()
	out := make([]OrderDelta, 0, steps*2)
	for i := 0; i < steps; i++ {
		moved := sizePerStep.Mul(decimal.NewFromInt(int64(i + 1)))
		up := reserve.Quote.Add(moved)
		down := reserve.Quote.Sub(moved)
		sellPrice := up.Mul(up).DivRound(k, inventory.DivisionPrecision)
		buyPrice := down.Mul(down).DivRound(k, inventory.DivisionPrecision)
		if !sellPrice.GreaterThan(eq) {
			return nil, fmt.Errorf("%w: step %d sell %s <= equilibrium %s", ErrCrossedLadder, i, sellPrice, eq)
		}
		if !buyPrice.IsPositive() || !buyPrice.LessThan(eq) {
			return nil, fmt.Errorf("%w: step %d buy %s not in (0, %s)", ErrCrossedLadder, i, buyPrice, eq)
		}
		out = append(out, sellRung(sizePerStep, sellPrice), buyRung(sizePerStep, buyPrice))
	}
	return out, nil
}
