package sim

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/inventory"
	"github.com/kleros/market-maker/order"
)

// PaperExchange 是内存撮合：保存当前阶梯，价格穿过挂单价时按挂单价成交。
// 实现 order.Gateway 与 order.OpenOrderSource。
type PaperExchange struct {
	// FeeRate 按成交额从计价资产扣除，0 表示无手续费
	FeeRate decimal.Decimal
	Clock   func() time.Time

	mu      sync.Mutex
	resting []order.Order
	seq     int64
	submits int
	cancels int
}

func NewPaperExchange() *PaperExchange {
	return &PaperExchange{Clock: time.Now}
}

func (p *PaperExchange) Submit(_ context.Context, orders []order.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range orders {
		if !o.Price.IsPositive() || o.Amount.IsZero() {
			return fmt.Errorf("paper: invalid order cid=%d price=%s amount=%s", o.ClientID, o.Price, o.Amount)
		}
	}
	p.resting = append(p.resting, orders...)
	p.submits++
	return nil
}

func (p *PaperExchange) CancelAll(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resting = nil
	p.cancels++
	return nil
}

// OpenOrders 返回仍挂着的订单。
func (p *PaperExchange) OpenOrders(_ context.Context, symbol string) ([]order.RemoteOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]order.RemoteOrder, 0, len(p.resting))
	for _, o := range p.resting {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		out = append(out, order.RemoteOrder{
			ID:       strconv.FormatInt(o.ClientID, 10),
			ClientID: o.ClientID,
			Symbol:   o.Symbol,
			Amount:   o.Amount,
			Price:    o.Price,
		})
	}
	return out, nil
}

// Resting 返回当前挂单的拷贝，按价格升序。
func (p *PaperExchange) Resting() []order.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]order.Order(nil), p.resting...)
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out
}

// Match 以市场价 price 撮合一笔：在买单价 >= price 或卖单价 <= price 的挂单中，
// 取价格移动时最先被穿过的一笔成交并移出盘口。
func (p *PaperExchange) Match(price decimal.Decimal) (inventory.Fill, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	best := -1
	for i, o := range p.resting {
		crossed := (o.Amount.IsPositive() && o.Price.GreaterThanOrEqual(price)) ||
			(o.Amount.IsNegative() && o.Price.LessThanOrEqual(price))
		if !crossed {
			continue
		}
		if best < 0 || closerToBook(o, p.resting[best]) {
			best = i
		}
	}
	if best < 0 {
		return inventory.Fill{}, false
	}
	o := p.resting[best]
	p.resting = append(p.resting[:best], p.resting[best+1:]...)
	p.seq++

	f := inventory.Fill{
		ID:         "sim-" + strconv.FormatInt(p.seq, 10),
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		BaseAmount: o.Amount,
		Price:      o.Price,
		Time:       p.Clock(),
	}
	if p.FeeRate.IsPositive() {
		f.Fee = o.Amount.Mul(o.Price).Abs().Mul(p.FeeRate)
		f.FeeAsset = inventory.FeeQuote
	}
	return f, true
}

// closerToBook: 买单价高者优先，卖单价低者优先；买卖同时被穿过时先成交买单。
func closerToBook(a, b order.Order) bool {
	switch {
	case a.Amount.IsPositive() && b.Amount.IsPositive():
		return a.Price.GreaterThan(b.Price)
	case a.Amount.IsNegative() && b.Amount.IsNegative():
		return a.Price.LessThan(b.Price)
	default:
		return a.Amount.IsPositive()
	}
}

// Stats 返回下单批次与撤单次数。
func (p *PaperExchange) Stats() (submits, cancels int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits, p.cancels
}
