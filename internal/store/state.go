package store

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/metrics"
)

// EventSink 接收状态变化事件，通常接到结构化日志。
type EventSink func(string, map[string]interface{})

// State 维护交易所侧的账户与行情状态（钱包余额、最优买卖价、最新成交价），
// 供储备初始化和指标使用。
type State struct {
	Symbol string

	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	bestBid  decimal.Decimal
	bestAsk  decimal.Decimal
	last     decimal.Decimal
	tickerTs time.Time

	sink EventSink
}

func NewState(symbol string, sink EventSink) *State {
	return &State{
		Symbol:   symbol,
		balances: make(map[string]decimal.Decimal),
		sink:     sink,
	}
}

// HandleWalletUpdate 更新某币种的可用余额，币种名不区分大小写。
func (s *State) HandleWalletUpdate(currency string, balance decimal.Decimal) {
	cur := strings.ToUpper(currency)
	s.mu.Lock()
	s.balances[cur] = balance
	s.mu.Unlock()
	metrics.UpdateWallet(cur, balance.InexactFloat64())
	s.logEvent("wallet_update", map[string]interface{}{
		"currency": cur,
		"balance":  balance.String(),
	})
}

// Balance 返回币种余额，未收到过更新时第二个返回值为 false。
func (s *State) Balance(currency string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[strings.ToUpper(currency)]
	return b, ok
}

// HandleTicker 更新最优买卖价与最新成交价，零值表示该字段缺失。
func (s *State) HandleTicker(bid, ask, last decimal.Decimal, ts time.Time) {
	s.mu.Lock()
	s.bestBid = bid
	s.bestAsk = ask
	if last.IsPositive() {
		s.last = last
	}
	s.tickerTs = ts
	mid := s.midLocked()
	s.mu.Unlock()
	metrics.UpdateMarketData(s.Symbol, bid.InexactFloat64(), ask.InexactFloat64(), last.InexactFloat64(), mid.InexactFloat64())
}

// ReferencePrice 优先返回买一卖一的中间价，否则退回最新成交价。
func (s *State) ReferencePrice() (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if mid := s.midLocked(); mid.IsPositive() {
		return mid, true
	}
	if s.last.IsPositive() {
		return s.last, true
	}
	return decimal.Zero, false
}

// TickerAge 返回距最近一次行情更新的时间。
func (s *State) TickerAge(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tickerTs.IsZero() {
		return -1
	}
	return now.Sub(s.tickerTs)
}

func (s *State) midLocked() decimal.Decimal {
	if !s.bestBid.IsPositive() || !s.bestAsk.IsPositive() {
		return decimal.Zero
	}
	return s.bestBid.Add(s.bestAsk).Div(decimal.NewFromInt(2))
}

func (s *State) logEvent(event string, fields map[string]interface{}) {
	if s == nil || s.sink == nil {
		return
	}
	s.sink(event, fields)
}
