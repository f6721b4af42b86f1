package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/inventory"
)

var (
	// ErrInvalidParams 表示阶梯参数越界，属于配置错误，不应重试。
	ErrInvalidParams = errors.New("invalid ladder params")
	// ErrCrossedLadder 表示生成的档位穿过了中心价。
	ErrCrossedLadder = errors.New("ladder crosses center price")
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// OrderDelta 描述一个挂单档位对储备的带符号影响。
// 卖出 base 的档位：Base < 0，Quote > 0；买入 base 的档位：Base > 0，Quote < 0。
type OrderDelta struct {
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

// IsSell 表示该档位卖出 base。
func (o OrderDelta) IsSell() bool { return o.Base.IsNegative() }

// Side 返回 "sell" 或 "buy"。
func (o OrderDelta) Side() string {
	if o.IsSell() {
		return "sell"
	}
	return "buy"
}

// Price 返回档位的限价 |quote / base|。
func (o OrderDelta) Price() decimal.Decimal {
	if o.Base.IsZero() {
		return decimal.Zero
	}
	return o.Quote.Abs().DivRound(o.Base.Abs(), inventory.DivisionPrecision)
}

// Limits 是阶梯生成器的合理性边界。
type Limits struct {
	MaxSizePerStep decimal.Decimal `yaml:"maxSizePerStep"`
	MinSpread      decimal.Decimal `yaml:"minSpread"`
	MaxSpread      decimal.Decimal `yaml:"maxSpread"`
	MaxSteps       int             `yaml:"maxSteps"`
}

// DefaultLimits：单档不超过 100 单位计价资产，价差在 (0.001, 1) 之间。
// MaxSteps 为 0 表示不限档数，部署时可在配置里设置上限。
var DefaultLimits = Limits{
	MaxSizePerStep: decimal.NewFromInt(100),
	MinSpread:      decimal.New(1, -3),
	MaxSpread:      one,
}

// Validate 检查边界自身是否合理。
func (l Limits) Validate() error {
	if !l.MaxSizePerStep.IsPositive() {
		return fmt.Errorf("%w: maxSizePerStep must be > 0", ErrInvalidParams)
	}
	if l.MinSpread.IsNegative() || !l.MaxSpread.GreaterThan(l.MinSpread) || l.MaxSpread.GreaterThan(one) {
		return fmt.Errorf("%w: spread limits must satisfy 0 <= min < max <= 1", ErrInvalidParams)
	}
	if l.MaxSteps < 0 {
		return fmt.Errorf("%w: maxSteps must be >= 0", ErrInvalidParams)
	}
	return nil
}

func (l Limits) isZero() bool {
	return l.MaxSizePerStep.IsZero() && l.MinSpread.IsZero() && l.MaxSpread.IsZero() && l.MaxSteps == 0
}

func (l Limits) checkSteps(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("%w: steps %d must be > 0", ErrInvalidParams, steps)
	}
	if l.MaxSteps > 0 && steps > l.MaxSteps {
		return fmt.Errorf("%w: steps %d exceeds %d", ErrInvalidParams, steps, l.MaxSteps)
	}
	return nil
}

func (l Limits) checkSize(size decimal.Decimal) error {
	if !size.IsPositive() || !size.LessThan(l.MaxSizePerStep) {
		return fmt.Errorf("%w: sizePerStep %s must be in (0, %s)", ErrInvalidParams, size, l.MaxSizePerStep)
	}
	return nil
}

func (l Limits) checkSpread(spread, interval decimal.Decimal) error {
	if !spread.GreaterThan(l.MinSpread) || !spread.LessThan(l.MaxSpread) {
		return fmt.Errorf("%w: spread %s must be in (%s, %s)", ErrInvalidParams, spread, l.MinSpread, l.MaxSpread)
	}
	if !interval.IsPositive() || !interval.LessThan(spread) {
		return fmt.Errorf("%w: interval %s must be in (0, spread)", ErrInvalidParams, interval)
	}
	return nil
}

// sellRung 以 price 卖出价值 size 的 base。
func sellRung(size, price decimal.Decimal) OrderDelta {
	return OrderDelta{
		Base:  size.DivRound(price, inventory.DivisionPrecision).Neg(),
		Quote: size,
	}
}

// buyRung 以 price 买入价值 size 的 base。
func buyRung(size, price decimal.Decimal) OrderDelta {
	return OrderDelta{
		Base:  size.DivRound(price, inventory.DivisionPrecision),
		Quote: size.Neg(),
	}
}

// SimpleStaircase 使用默认边界生成线性阶梯。
func SimpleStaircase(steps int, sizePerStep, spread, interval, priceCenter decimal.Decimal) ([]OrderDelta, error) {
	return DefaultLimits.SimpleStaircase(steps, sizePerStep, spread, interval, priceCenter)
}

// SimpleStaircase 围绕 priceCenter 生成线性价差阶梯：
// 第 i 档卖价 center×(1+spread/2+interval×i)，买价 center×(1−spread/2−interval×i)。
// 由近及远输出，每个卖单后紧跟同档买单。
func (l Limits) SimpleStaircase(steps int, sizePerStep, spread, interval, priceCenter decimal.Decimal) ([]OrderDelta, error) {
	if err := l.checkSteps(steps); err != nil {
		return nil, err
	}
	if err := l.checkSize(sizePerStep); err != nil {
		return nil, err
	}
	if err := l.checkSpread(spread, interval); err != nil {
		return nil, err
	}
	if !priceCenter.IsPositive() {
		return nil, fmt.Errorf("%w: price center %s must be > 0", ErrInvalidParams, priceCenter)
	}

	half := spread.DivRound(two, inventory.DivisionPrecision)
	out := make([]OrderDelta, 0, steps*2)
	for i := 0; i < steps; i++ {
		offset := half.Add(interval.Mul(decimal.NewFromInt(int64(i))))
		sellPrice := priceCenter.Mul(one.Add(offset))
		buyPrice := priceCenter.Mul(one.Sub(offset))
		if !sellPrice.GreaterThan(priceCenter) {
			return nil, fmt.Errorf("%w: step %d sell %s <= center %s", ErrCrossedLadder, i, sellPrice, priceCenter)
		}
		if !buyPrice.IsPositive() || !buyPrice.LessThan(priceCenter) {
			return nil, fmt.Errorf("%w: step %d buy %s not in (0, %s)", ErrCrossedLadder, i, buyPrice, priceCenter)
		}
		out = append(out, sellRung(sizePerStep, sellPrice), buyRung(sizePerStep, buyPrice))
	}
	return out, nil
}

// ReserveStaircase 使用默认边界，以储备的均衡价为中心生成线性阶梯。
func ReserveStaircase(steps int, sizePerStep, spread, interval decimal.Decimal, reserve inventory.Reserve) ([]OrderDelta, error) {
	return DefaultLimits.ReserveStaircase(steps, sizePerStep, spread, interval, reserve)
}

// ReserveStaircase 额外要求 steps×interval < 1。
func (l Limits) ReserveStaircase(steps int, sizePerStep, spread, interval decimal.Decimal, reserve inventory.Reserve) ([]OrderDelta, error) {
	if err := reserve.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if !interval.Mul(decimal.NewFromInt(int64(steps))).LessThan(one) {
		return nil, fmt.Errorf("%w: steps %d × interval %s must be < 1", ErrInvalidParams, steps, interval)
	}
	return l.SimpleStaircase(steps, sizePerStep, spread, interval, reserve.EquilibriumPrice())
}

// PriceStepStaircase 是按最新成交价等比例加价的旧式阶梯，size 以 base 计。
// 第 n 档（n 从 1 开始）卖价 last×(1+spread×n)，买价 last×(1−spread×n)。
func PriceStepStaircase(steps int, sizeInBase, spread, lastPrice decimal.Decimal) ([]OrderDelta, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: steps %d must be > 0", ErrInvalidParams, steps)
	}
	if !sizeInBase.IsPositive() {
		return nil, fmt.Errorf("%w: size %s must be > 0", ErrInvalidParams, sizeInBase)
	}
	if !lastPrice.IsPositive() {
		return nil, fmt.Errorf("%w: last price %s must be > 0", ErrInvalidParams, lastPrice)
	}
	depth := spread.Mul(decimal.NewFromInt(int64(steps)))
	if !spread.IsPositive() || !depth.LessThan(one) {
		return nil, fmt.Errorf("%w: spread %s × steps %d must be in (0, 1)", ErrInvalidParams, spread, steps)
	}

	out := make([]OrderDelta, 0, steps*2)
	for n := 1; n <= steps; n++ {
		offset := spread.Mul(decimal.NewFromInt(int64(n)))
		sellPrice := lastPrice.Mul(one.Add(offset))
		buyPrice := lastPrice.Mul(one.Sub(offset))
		out = append(out,
			OrderDelta{Base: sizeInBase.Neg(), Quote: sizeInBase.Mul(sellPrice)},
			OrderDelta{Base: sizeInBase, Quote: sizeInBase.Mul(buyPrice).Neg()},
		)
	}
	return out, nil
}
