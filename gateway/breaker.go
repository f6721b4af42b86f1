package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kleros/market-maker/order"
)

// ErrCircuitOpen 表示下单通道已熔断，请求未发送。
var ErrCircuitOpen = errors.New("order circuit open")

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Threshold int           // 连续失败多少次后熔断
	Cooldown  time.Duration // 熔断后等待多久进入半开
}

// DefaultBreaker：连续 5 次失败后熔断 30s。
var DefaultBreaker = BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second}

// Breaker 是按连续失败次数触发的熔断器。半开状态只放行一次请求，成功则关闭，失败则重新打开。
type Breaker struct {
	cfg   BreakerConfig
	clock func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trips    int
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBreaker.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreaker.Cooldown
	}
	return &Breaker{cfg: cfg, clock: time.Now}
}

// Call 在熔断器允许时执行 fn 并记录结果。Permanent 错误（如参数错误）不计入失败。
func (b *Breaker) Call(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		wait := b.cfg.Cooldown - b.clock().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: retry in %v", ErrCircuitOpen, wait.Round(time.Millisecond))
		}
		b.state = BreakerHalfOpen
	case BreakerHalfOpen:
		// 半开期间已有请求在途
		return fmt.Errorf("%w: probing", ErrCircuitOpen)
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil || IsPermanent(err) || errors.Is(err, context.Canceled) {
		if b.state == BreakerHalfOpen || err == nil {
			b.state = BreakerClosed
			b.failures = 0
		}
		return
	}
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.Threshold {
		b.state = BreakerOpen
		b.openedAt = b.clock()
		b.trips++
	}
}

// State 返回当前状态。
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Trips 返回累计熔断次数。
func (b *Breaker) Trips() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

// BreakerGateway 给 order.Gateway 的下单加熔断；CancelAll 总是放行。
type BreakerGateway struct {
	next    order.Gateway
	breaker *Breaker
}

func NewBreakerGateway(next order.Gateway, cfg BreakerConfig) *BreakerGateway {
	return &BreakerGateway{next: next, breaker: NewBreaker(cfg)}
}

func (g *BreakerGateway) Submit(ctx context.Context, orders []order.Order) error {
	return g.breaker.Call(func() error { return g.next.Submit(ctx, orders) })
}

func (g *BreakerGateway) CancelAll(ctx context.Context) error {
	return g.next.CancelAll(ctx)
}

// Breaker 返回内部熔断器，用于查询状态。
func (g *BreakerGateway) Breaker() *Breaker { return g.breaker }
