package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DivisionPrecision 是所有除法保留的小数位数，舍入方式为四舍五入（远离零）。
const DivisionPrecision int32 = 20

var (
	// ErrInvalidInput 表示输入非正或参考价格超出合理区间。
	ErrInvalidInput = errors.New("invalid reserve input")
	// ErrReserveDepleted 表示成交后储备的某一侧不再为正。
	ErrReserveDepleted = errors.New("reserve depleted")
)

// Reserve 是做市使用的虚拟储备，Base 为标的资产数量，Quote 为计价资产数量。
// 价格统一表示为每单位 Base 的 Quote 数量。
type Reserve struct {
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

// NewReserve 构造储备并校验两侧均为正。
func NewReserve(base, quote decimal.Decimal) (Reserve, error) {
	r := Reserve{Base: base, Quote: quote}
	if err := r.Validate(); err != nil {
		return Reserve{}, err
	}
	return r, nil
}

// Validate 检查储备两侧均严格为正。
func (r Reserve) Validate() error {
	if !r.Base.IsPositive() || !r.Quote.IsPositive() {
		return fmt.Errorf("%w: base=%s quote=%s must be > 0", ErrInvalidInput, r.Base, r.Quote)
	}
	return nil
}

// IsZero reports whether the reserve has never been initialised.
func (r Reserve) IsZero() bool {
	return r.Base.IsZero() && r.Quote.IsZero()
}

// Invariant 返回恒定乘积 k = base × quote。
func (r Reserve) Invariant() decimal.Decimal {
	return r.Base.Mul(r.Quote)
}

// EquilibriumPrice 返回储备隐含的价格 quote / base。
func (r Reserve) EquilibriumPrice() decimal.Decimal {
	if r.Base.IsZero() {
		return decimal.Zero
	}
	return r.Quote.DivRound(r.Base, DivisionPrecision)
}

// Value 以给定的标记价格计算储备的总价值（计价资产）。
func (r Reserve) Value(mark decimal.Decimal) decimal.Decimal {
	return r.Quote.Add(r.Base.Mul(mark))
}

func (r Reserve) String() string {
	return fmt.Sprintf("base=%s quote=%s k=%s", r.Base, r.Quote, r.Invariant())
}

// PriceBand 是参考价格的合理区间（开区间），零值表示该侧不限制。
type PriceBand struct {
	Min decimal.Decimal `yaml:"min" json:"min"`
	Max decimal.Decimal `yaml:"max" json:"max"`
}

// DefaultPriceBand 对应 PNK/ETH 的历史价格区间。
var DefaultPriceBand = PriceBand{
	Min: decimal.New(1, -6),
	Max: decimal.New(1, -3),
}

// Contains 判断价格是否落在区间内。
func (b PriceBand) Contains(price decimal.Decimal) bool {
	if !b.Min.IsZero() && !price.GreaterThan(b.Min) {
		return false
	}
	if !b.Max.IsZero() && !price.LessThan(b.Max) {
		return false
	}
	return true
}

// Validate 检查区间本身是否合法。
func (b PriceBand) Validate() error {
	if b.Min.IsNegative() || b.Max.IsNegative() {
		return fmt.Errorf("%w: price band bounds must be >= 0", ErrInvalidInput)
	}
	if !b.Min.IsZero() && !b.Max.IsZero() && !b.Min.LessThan(b.Max) {
		return fmt.Errorf("%w: price band min %s must be < max %s", ErrInvalidInput, b.Min, b.Max)
	}
	return nil
}

// CalculateMaximumReserve 使用默认价格区间计算钱包余额能支撑的最大储备。
func CalculateMaximumReserve(availableBase, availableQuote, referencePrice decimal.Decimal) (Reserve, error) {
	return DefaultPriceBand.MaximumReserve(availableBase, availableQuote, referencePrice)
}

// MaximumReserve 按参考价格取两侧余额中较小的那一侧作为约束，
// 返回的储备满足 quote/base == referencePrice 且不超过任一侧余额。
func (b PriceBand) MaximumReserve(availableBase, availableQuote, referencePrice decimal.Decimal) (Reserve, error) {
	if !availableBase.IsPositive() {
		return Reserve{}, fmt.Errorf("%w: available base %s must be > 0", ErrInvalidInput, availableBase)
	}
	if !availableQuote.IsPositive() {
		return Reserve{}, fmt.Errorf("%w: available quote %s must be > 0", ErrInvalidInput, availableQuote)
	}
	if !referencePrice.IsPositive() {
		return Reserve{}, fmt.Errorf("%w: reference price %s must be > 0", ErrInvalidInput, referencePrice)
	}
	if !b.Contains(referencePrice) {
		return Reserve{}, fmt.Errorf("%w: reference price %s outside (%s, %s)", ErrInvalidInput, referencePrice, b.Min, b.Max)
	}

	quoteValueOfBase := availableBase.Mul(referencePrice)
	if quoteValueOfBase.GreaterThan(availableQuote) {
		// 截断而非舍入，保证 base 不会超过实际余额
		base, _ := availableQuote.QuoRem(referencePrice, DivisionPrecision)
		return Reserve{Base: base, Quote: availableQuote}, nil
	}
	return Reserve{Base: availableBase, Quote: quoteValueOfBase}, nil
}
