package inventory

import "github.com/shopspring/decimal"

// Snapshot 是某一时刻储备状态的只读视图，供指标和日志使用。
type Snapshot struct {
	Reserve          Reserve
	Invariant        decimal.Decimal
	EquilibriumPrice decimal.Decimal
	Value            decimal.Decimal
	PnL              decimal.Decimal
	Fills            int
}

// Sync 懒实现：外部可定期调用以获取当前储备快照。
type Sync struct {
	Tracker *Tracker
}

func (s *Sync) Snapshot(mark decimal.Decimal) Snapshot {
	if s.Tracker == nil {
		return Snapshot{}
	}
	r := s.Tracker.Snapshot()
	value, pnl := s.Tracker.Valuation(mark)
	return Snapshot{
		Reserve:          r,
		Invariant:        r.Invariant(),
		EquilibriumPrice: r.EquilibriumPrice(),
		Value:            value,
		PnL:              pnl,
		Fills:            s.Tracker.Fills(),
	}
}
