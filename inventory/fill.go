package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FeeAsset 标识手续费从哪一侧扣除。
type FeeAsset string

const (
	FeeNone  FeeAsset = ""
	FeeBase  FeeAsset = "base"
	FeeQuote FeeAsset = "quote"
)

// Fill 是交易所确认的一笔成交。
// BaseAmount 带符号：正数表示买入 base，负数表示卖出 base。
type Fill struct {
	ID         string
	OrderID    string
	Symbol     string
	BaseAmount decimal.Decimal
	Price      decimal.Decimal
	Fee        decimal.Decimal
	FeeAsset   FeeAsset
	Time       time.Time
}

// Side 返回 "buy" 或 "sell"（相对 base 资产）。
func (f Fill) Side() string {
	if f.BaseAmount.IsNegative() {
		return "sell"
	}
	return "buy"
}

// Deltas 计算成交对储备两侧的变化量，手续费按绝对值从对应一侧扣除。
func (f Fill) Deltas() (baseDelta, quoteDelta decimal.Decimal) {
	fee := f.Fee.Abs()
	baseDelta = f.BaseAmount
	quoteDelta = f.BaseAmount.Mul(f.Price).Neg()
	switch f.FeeAsset {
	case FeeBase:
		baseDelta = baseDelta.Sub(fee)
	case FeeQuote:
		quoteDelta = quoteDelta.Sub(fee)
	}
	return baseDelta, quoteDelta
}

// Validate 检查成交字段是否可用于更新储备。
func (f Fill) Validate() error {
	if f.BaseAmount.IsZero() {
		return fmt.Errorf("%w: fill %s has zero amount", ErrInvalidInput, f.ID)
	}
	if !f.Price.IsPositive() {
		return fmt.Errorf("%w: fill %s price %s must be > 0", ErrInvalidInput, f.ID, f.Price)
	}
	switch f.FeeAsset {
	case FeeNone, FeeBase, FeeQuote:
	default:
		return fmt.Errorf("%w: fill %s unknown fee asset %q", ErrInvalidInput, f.ID, f.FeeAsset)
	}
	return nil
}

// ApplyFill 返回应用成交后的新储备，原储备不变。
func (r Reserve) ApplyFill(f Fill) (Reserve, error) {
	if err := f.Validate(); err != nil {
		return r, err
	}
	baseDelta, quoteDelta := f.Deltas()
	next := Reserve{
		Base:  r.Base.Add(baseDelta),
		Quote: r.Quote.Add(quoteDelta),
	}
	if !next.Base.IsPositive() || !next.Quote.IsPositive() {
		return r, fmt.Errorf("%w: fill %s would leave %s", ErrReserveDepleted, f.ID, next)
	}
	return next, nil
}
