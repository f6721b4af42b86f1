package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// OpenOrderSource 查询交易所当前挂单
type OpenOrderSource interface {
	OpenOrders(ctx context.Context, symbol string) ([]RemoteOrder, error)
}

// RemoteOrder 是交易所返回的挂单。
type RemoteOrder struct {
	ID       string
	ClientID int64
	Symbol   string
	Amount   decimal.Decimal
	Price    decimal.Decimal
}

// Report 是一次对账的结果。
type Report struct {
	// Missing 是本地认为仍在盘口、交易所已不存在的订单（已成交或被撤）
	Missing []int64
	// Orphans 是交易所上存在、本地没有记录的订单（例如上次进程遗留）
	Orphans []RemoteOrder
	Time    time.Time
}

// Clean 表示本地与交易所一致。
func (r Report) Clean() bool { return len(r.Missing) == 0 && len(r.Orphans) == 0 }

// ReconcileStats 累计对账结果
type ReconcileStats struct {
	Runs     int64
	Failures int64
	Missing  int64
	Orphans  int64
	Last     time.Time
}

// Reconciler 以交易所挂单为准修正 Manager 的本地状态。调度由调用方负责。
type Reconciler struct {
	source OpenOrderSource
	orders *Manager
	symbol string
	now    func() time.Time

	mu    sync.Mutex
	stats ReconcileStats
}

func NewReconciler(source OpenOrderSource, orders *Manager, symbol string) *Reconciler {
	return &Reconciler{source: source, orders: orders, symbol: symbol, now: time.Now}
}

// Reconcile 拉取远端挂单并比对。本地有而远端没有的订单标记为 CANCELED；
// 远端有而本地从未见过的 cid 作为孤儿返回，不做处理。查询失败时本地状态不变。
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	remote, err := r.source.OpenOrders(ctx, r.symbol)
	if err != nil {
		r.mu.Lock()
		r.stats.Runs++
		r.stats.Failures++
		r.mu.Unlock()
		return Report{}, fmt.Errorf("reconcile %s: %w", r.symbol, err)
	}

	rep := Report{Time: r.now()}
	onExchange := make(map[int64]bool, len(remote))
	for _, ro := range remote {
		onExchange[ro.ClientID] = true
	}
	for _, local := range r.orders.Active() {
		if onExchange[local.ClientID] {
			continue
		}
		if r.orders.Update(local.ClientID, StatusCanceled) == nil {
			rep.Missing = append(rep.Missing, local.ClientID)
		}
	}
	for _, ro := range remote {
		if _, known := r.orders.Lookup(ro.ClientID); !known {
			rep.Orphans = append(rep.Orphans, ro)
		}
	}

	r.mu.Lock()
	r.stats.Runs++
	r.stats.Missing += int64(len(rep.Missing))
	r.stats.Orphans += int64(len(rep.Orphans))
	r.stats.Last = rep.Time
	r.mu.Unlock()
	return rep, nil
}

// Stats 返回累计结果的副本。
func (r *Reconciler) Stats() ReconcileStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
