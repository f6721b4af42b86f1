package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Gateway 提供批量下单/全部撤单抽象；与 gateway 包的交易所会话对接。
type Gateway interface {
	Submit(ctx context.Context, orders []Order) error
	CancelAll(ctx context.Context) error
}

var ErrUnknownOrder = errors.New("unknown order")

// Manager 维护当前挂出的阶梯并通过 Gateway 下发。
type Manager struct {
	gw          Gateway
	session     *Session
	mu          sync.RWMutex
	orders      map[string]*Order
	byClientID  map[int64]string
	constraints map[string]SymbolConstraints
}

func NewManager(gw Gateway, session *Session) *Manager {
	if session == nil {
		session = NewSession()
	}
	return &Manager{
		gw:         gw,
		session:    session,
		orders:     make(map[string]*Order),
		byClientID: make(map[int64]string),
	}
}

// Session 返回管理器使用的会话。
func (m *Manager) Session() *Session { return m.session }

// Constrain 为交易对登记精度/名义限制，Replace 时逐单检查。
func (m *Manager) Constrain(symbol string, c SymbolConstraints) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.constraints == nil {
		m.constraints = make(map[string]SymbolConstraints)
	}
	m.constraints[symbol] = c
}

// Replace 撤掉当前全部挂单并挂出新阶梯。
// 下单前校验每个订单相对均衡价的方向以及交易对限制，任何一个不满足都不会撤单。
func (m *Manager) Replace(ctx context.Context, orders []Order, equilibrium decimal.Decimal) ([]Order, error) {
	if err := CheckAgainstEquilibrium(orders, equilibrium); err != nil {
		return nil, err
	}
	if err := m.checkConstraints(orders); err != nil {
		return nil, err
	}
	// 上一轮被撤的订单保留到本轮，以便识别撤单途中到达的成交
	m.mu.Lock()
	m.pruneLocked()
	m.mu.Unlock()
	if err := m.CancelAll(ctx); err != nil {
		return nil, err
	}

	placed := make([]Order, len(orders))
	m.mu.Lock()
	for i := range orders {
		o := orders[i]
		m.session.Assign(&o)
		o.Status = StatusNew
		m.orders[o.ID] = &o
		m.byClientID[o.ClientID] = o.ID
		placed[i] = o
	}
	m.mu.Unlock()

	if m.gw != nil {
		if err := m.gw.Submit(ctx, placed); err != nil {
			m.mu.Lock()
			for _, o := range placed {
				if cur, ok := m.orders[o.ID]; ok {
					cur.Status = StatusRejected
					cur.LastError = err.Error()
				}
			}
			m.mu.Unlock()
			return nil, err
		}
	}
	return placed, nil
}

// CancelAll 撤销全部挂单并把活跃订单标记为已撤。
func (m *Manager) CancelAll(ctx context.Context) error {
	if m.gw != nil {
		if err := m.gw.CancelAll(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if IsActive(o.Status) {
			o.Status = StatusCanceled
		}
	}
	return nil
}

// Update 收到回报后按客户端订单号更新状态。
func (m *Manager) Update(clientID int64, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byClientID[clientID]
	if !ok {
		return ErrUnknownOrder
	}
	o := m.orders[id]
	if err := ValidateTransition(o.Status, st); err != nil {
		return err
	}
	o.Status = st
	return nil
}

// Lookup 按客户端订单号查询订单。
func (m *Manager) Lookup(clientID int64) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byClientID[clientID]
	if !ok {
		return Order{}, false
	}
	return *m.orders[id], true
}

// Active 返回仍在盘口上的订单，按客户端订单号排序。
func (m *Manager) Active() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		if IsActive(o.Status) {
			res = append(res, *o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ClientID < res[j].ClientID })
	return res
}

// pruneLocked 丢弃终态订单，避免长期运行时内存增长。
func (m *Manager) pruneLocked() {
	for id, o := range m.orders {
		if IsFinal(o.Status) {
			delete(m.byClientID, o.ClientID)
			delete(m.orders, id)
		}
	}
}

func (m *Manager) checkConstraints(orders []Order) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, o := range orders {
		c, ok := m.constraints[o.Symbol]
		if !ok {
			continue
		}
		if err := c.Validate(o.Price, o.Quantity()); err != nil {
			return fmt.Errorf("order #%d %s@%s: %w", i, o.Amount, o.Price, err)
		}
	}
	return nil
}
