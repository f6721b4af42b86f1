package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/inventory"
)

// Tick 是一次成交价格观测。
type Tick struct {
	Price decimal.Decimal
	Ts    time.Time
}

// CircuitBreaker 基于近期成交价的相对变化判断行情是否异常。
type CircuitBreaker struct {
	// 阈值：1m、5m 相对涨跌幅，0 表示不检查
	OneMinuteThresh  decimal.Decimal
	FiveMinuteThresh decimal.Decimal
	Clock            Clock

	mu       sync.Mutex
	window1m []Tick
	window5m []Tick
}

func NewCircuitBreaker(one, five decimal.Decimal) *CircuitBreaker {
	return &CircuitBreaker{
		OneMinuteThresh:  one,
		FiveMinuteThresh: five,
		Clock:            NowUTC,
		window1m:         make([]Tick, 0, 32),
		window5m:         make([]Tick, 0, 128),
	}
}

// OnTick 返回 (是否触发, 触发窗口 "1m"/"5m"/"")
func (c *CircuitBreaker) OnTick(t Tick) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window1m = append(c.window1m, t)
	c.window5m = append(c.window5m, t)
	c.window1m = trim(c.window1m, t.Ts.Add(-1*time.Minute))
	c.window5m = trim(c.window5m, t.Ts.Add(-5*time.Minute))

	if check(c.window1m, c.OneMinuteThresh) {
		return true, "1m"
	}
	if check(c.window5m, c.FiveMinuteThresh) {
		return true, "5m"
	}
	return false, ""
}

// Anomalous 把成交价喂给熔断器。
func (c *CircuitBreaker) Anomalous(f inventory.Fill, _, _ inventory.Reserve) (bool, string) {
	ts := f.Time
	if ts.IsZero() {
		ts = c.Clock.Now()
	}
	trip, span := c.OnTick(Tick{Price: f.Price, Ts: ts})
	if trip {
		return true, "price_moved_" + span
	}
	return false, ""
}

func trim(buf []Tick, cutoff time.Time) []Tick {
	i := 0
	for ; i < len(buf); i++ {
		if buf[i].Ts.After(cutoff) {
			break
		}
	}
	return buf[i:]
}

func check(buf []Tick, thresh decimal.Decimal) bool {
	if !thresh.IsPositive() || len(buf) == 0 {
		return false
	}
	first := buf[0].Price
	last := buf[len(buf)-1].Price
	if first.IsZero() {
		return false
	}
	change := last.Sub(first).DivRound(first, inventory.DivisionPrecision).Abs()
	return change.GreaterThan(thresh)
}
