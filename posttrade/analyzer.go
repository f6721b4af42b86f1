package posttrade

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/inventory"
)

// DefaultHorizons 是成交后取标记价格的时间点。
var DefaultHorizons = []time.Duration{time.Second, 5 * time.Second}

// FillRecord 记录一笔成交以及之后各个时间点的标记价格。
type FillRecord struct {
	Fill  inventory.Fill
	Marks []decimal.Decimal // 与 Horizons 一一对应，未到期为零
}

// Markout 返回第 i 个时间点相对成交价的收益率，对做市方有利为正。
func (r FillRecord) Markout(i int) (decimal.Decimal, bool) {
	if i >= len(r.Marks) || r.Marks[i].IsZero() || !r.Fill.Price.IsPositive() {
		return decimal.Zero, false
	}
	move := r.Marks[i].Sub(r.Fill.Price).DivRound(r.Fill.Price, inventory.DivisionPrecision)
	if r.Fill.BaseAmount.IsNegative() {
		move = move.Neg()
	}
	return move, true
}

// Stats 汇总已到期的成交。
type Stats struct {
	TotalFills    int
	AnalyzedFills int // 所有时间点都已取到标记价格
	// AdverseSelectionRate 是第一个时间点 markout 为负的比例
	AdverseSelectionRate decimal.Decimal
	AvgMarkout           []decimal.Decimal
}

// Analyzer 统计成交后的价格走势，用于衡量逆向选择。
// 标记价格由调用方按时间推送，Analyzer 自身不启动 goroutine。
type Analyzer struct {
	Horizons []time.Duration

	mu      sync.Mutex
	records []*FillRecord
}

func NewAnalyzer(horizons ...time.Duration) *Analyzer {
	if len(horizons) == 0 {
		horizons = DefaultHorizons
	}
	return &Analyzer{Horizons: horizons}
}

// OnFill 记录一笔成交，成交时间为零时不记录。
func (a *Analyzer) OnFill(f inventory.Fill) {
	if f.Time.IsZero() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, &FillRecord{Fill: f, Marks: make([]decimal.Decimal, len(a.Horizons))})
}

// OnMark 用 ts 时刻的价格填充所有已到期、尚未取价的时间点。
func (a *Analyzer) OnMark(price decimal.Decimal, ts time.Time) {
	if !price.IsPositive() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.records {
		for i, h := range a.Horizons {
			if r.Marks[i].IsZero() && !ts.Before(r.Fill.Time.Add(h)) {
				r.Marks[i] = price
			}
		}
	}
}

// Stats 计算统计值。
func (a *Analyzer) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Stats{TotalFills: len(a.records), AvgMarkout: make([]decimal.Decimal, len(a.Horizons))}
	sums := make([]decimal.Decimal, len(a.Horizons))
	adverse := 0
	for _, r := range a.records {
		complete := true
		for i := range a.Horizons {
			if _, ok := r.Markout(i); !ok {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		st.AnalyzedFills++
		for i := range a.Horizons {
			m, _ := r.Markout(i)
			sums[i] = sums[i].Add(m)
			if i == 0 && m.IsNegative() {
				adverse++
			}
		}
	}
	if st.AnalyzedFills == 0 {
		return st
	}
	n := decimal.NewFromInt(int64(st.AnalyzedFills))
	for i := range sums {
		st.AvgMarkout[i] = sums[i].DivRound(n, inventory.DivisionPrecision)
	}
	st.AdverseSelectionRate = decimal.NewFromInt(int64(adverse)).DivRound(n, inventory.DivisionPrecision)
	return st
}

// CleanOldRecords 删除成交时间早于 now-maxAge 的记录。
func (a *Analyzer) CleanOldRecords(now time.Time, maxAge time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.records[:0]
	for _, r := range a.records {
		if now.Sub(r.Fill.Time) <= maxAge {
			kept = append(kept, r)
		}
	}
	a.records = kept
}
