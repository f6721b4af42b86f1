package order

import (
	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/strategy"
)

// Status represents order lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusNew      Status = "NEW"
	StatusAck      Status = "ACK"
	StatusPartial  Status = "PARTIAL"
	StatusFilled   Status = "FILLED"
	StatusCanceled Status = "CANCELED"
	StatusRejected Status = "REJECTED"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order 是一个待下发或已下发的限价单。
// Amount 带符号（以 base 计）：正数买入，负数卖出，与交易所 v2 接口一致。
type Order struct {
	ID        string
	ClientID  int64
	Symbol    string
	Side      string
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Quote     decimal.Decimal // 对应的计价资产变化，卖出为正
	Status    Status
	LastError string
}

// Quantity 返回下单数量的绝对值。
func (o Order) Quantity() decimal.Decimal { return o.Amount.Abs() }

// Notional 返回订单的计价资产名义价值。
func (o Order) Notional() decimal.Decimal {
	if !o.Quote.IsZero() {
		return o.Quote.Abs()
	}
	return o.Amount.Abs().Mul(o.Price)
}

// FromDelta 把阶梯档位转换为订单描述。
func FromDelta(d strategy.OrderDelta, symbol string) Order {
	side := SideBuy
	if d.IsSell() {
		side = SideSell
	}
	return Order{
		Symbol: symbol,
		Side:   side,
		Price:  d.Price(),
		Amount: d.Base,
		Quote:  d.Quote,
		Status: StatusPending,
	}
}

// FromLadder 按顺序转换整条阶梯。
func FromLadder(ladder []strategy.OrderDelta, symbol string) []Order {
	out := make([]Order, 0, len(ladder))
	for _, d := range ladder {
		out = append(out, FromDelta(d, symbol))
	}
	return out
}
