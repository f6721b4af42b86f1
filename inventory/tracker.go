package inventory

import (
	"sync"

	"github.com/shopspring/decimal"
)

// CheckFunc 在成交应用前校验新旧储备，返回错误则放弃本次更新。
type CheckFunc func(before, after Reserve) error

// Tracker 维护当前储备，并发安全。
type Tracker struct {
	mu      sync.RWMutex
	reserve Reserve
	initial Reserve
	fills   int
}

// NewTracker 以初始储备创建 Tracker。
func NewTracker(r Reserve) *Tracker {
	return &Tracker{reserve: r, initial: r}
}

// Snapshot 返回当前储备的拷贝。
func (t *Tracker) Snapshot() Reserve {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reserve
}

// Set 覆盖当前储备（例如从持久化恢复），首次设置时同时记录初始储备。
func (t *Tracker) Set(r Reserve) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initial.IsZero() {
		t.initial = r
	}
	t.reserve = r
}

// Apply 应用一笔成交。check 失败时储备保持不变并返回该错误。
func (t *Tracker) Apply(f Fill, check CheckFunc) (before, after Reserve, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	before = t.reserve
	after, err = before.ApplyFill(f)
	if err != nil {
		return before, before, err
	}
	if check != nil {
		if err = check(before, after); err != nil {
			return before, after, err
		}
	}
	t.reserve = after
	t.fills++
	return before, after, nil
}

// Fills 返回已应用的成交笔数。
func (t *Tracker) Fills() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fills
}

// Initial 返回启动时的储备。
func (t *Tracker) Initial() Reserve {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.initial
}

// Valuation 以 mark 价格计算当前储备价值，以及相对于持有初始储备不动的盈亏。
func (t *Tracker) Valuation(mark decimal.Decimal) (value decimal.Decimal, pnl decimal.Decimal) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	value = t.reserve.Value(mark)
	pnl = value.Sub(t.initial.Value(mark))
	return
}
