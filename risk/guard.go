package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/inventory"
)

// Guard 在成交应用到储备之前校验新旧储备，返回错误则拒绝这次更新。
type Guard interface {
	OnFill(f inventory.Fill, before, after inventory.Reserve) error
}

// MultiGuard 顺序执行多个 Guard，只要有一个返回错误则中止。
type MultiGuard struct {
	Guards []Guard
}

func (m MultiGuard) OnFill(f inventory.Fill, before, after inventory.Reserve) error {
	for _, g := range m.Guards {
		if g == nil {
			continue
		}
		if err := g.OnFill(f, before, after); err != nil {
			return err
		}
	}
	return nil
}

// CheckFor 适配为 inventory.Tracker.Apply 使用的校验函数。
func CheckFor(g Guard, f inventory.Fill) inventory.CheckFunc {
	return func(before, after inventory.Reserve) error {
		return g.OnFill(f, before, after)
	}
}

// DefaultTolerance 允许 k 因手续费下降万分之一。
var DefaultTolerance = decimal.RequireFromString("0.9999")

// InvariantGuard 要求 newK >= oldK × Tolerance。
type InvariantGuard struct {
	Tolerance decimal.Decimal
}

func (g InvariantGuard) OnFill(f inventory.Fill, before, after inventory.Reserve) error {
	tol := g.Tolerance
	if tol.IsZero() {
		tol = DefaultTolerance
	}
	oldK, newK := before.Invariant(), after.Invariant()
	if newK.LessThan(oldK.Mul(tol)) {
		return fmt.Errorf("%w: fill %s old k=%s new k=%s tolerance=%s", ErrInvariantDecreased, f.ID, oldK, newK, tol)
	}
	return nil
}

// InvariantRatio 返回 newK / oldK。
func InvariantRatio(before, after inventory.Reserve) decimal.Decimal {
	oldK := before.Invariant()
	if oldK.IsZero() {
		return decimal.Zero
	}
	return after.Invariant().DivRound(oldK, inventory.DivisionPrecision)
}
