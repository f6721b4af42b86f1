package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// ExchangeLimit 是现货限价单类型。
	ExchangeLimit = "EXCHANGE LIMIT"
	// MaxBatchSize 是 ox_multi 单批允许的最大操作数。
	MaxBatchSize = 15
)

// ErrCrossedEquilibrium 表示买单不低于或卖单不高于均衡价。
var ErrCrossedEquilibrium = errors.New("order crosses equilibrium price")

// NewOrderPayload 是 "on" 操作的下单参数，字段顺序与交易所文档一致。
type NewOrderPayload struct {
	Amount string `json:"amount"`
	CID    int64  `json:"cid"`
	Price  string `json:"price"`
	Symbol string `json:"symbol"`
	Type   string `json:"type"`
}

// NewOrderOp 返回单个下单操作 ["on", {...}]。
func NewOrderOp(o Order) []interface{} {
	return []interface{}{"on", NewOrderPayload{
		Amount: o.Amount.String(),
		CID:    o.ClientID,
		Price:  o.Price.String(),
		Symbol: o.Symbol,
		Type:   ExchangeLimit,
	}}
}

// BatchCommands 把下单操作按 size 分批，每批封装为 [0, "ox_multi", null, ops]。
func BatchCommands(orders []Order, size int) [][]interface{} {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	var out [][]interface{}
	for start := 0; start < len(orders); start += size {
		end := start + size
		if end > len(orders) {
			end = len(orders)
		}
		ops := make([]interface{}, 0, end-start)
		for _, o := range orders[start:end] {
			ops = append(ops, NewOrderOp(o))
		}
		out = append(out, []interface{}{0, "ox_multi", nil, ops})
	}
	return out
}

// CancelAllCommand 撤销账户下全部挂单。
func CancelAllCommand() []interface{} {
	return []interface{}{0, "oc_multi", nil, map[string]int{"all": 1}}
}

// CheckAgainstEquilibrium 确认买单价格低于均衡价、卖单价格高于均衡价。
func CheckAgainstEquilibrium(orders []Order, equilibrium decimal.Decimal) error {
	for i, o := range orders {
		if o.Amount.IsPositive() && !o.Price.LessThan(equilibrium) {
			return fmt.Errorf("%w: buy #%d at %s >= %s", ErrCrossedEquilibrium, i, o.Price, equilibrium)
		}
		if o.Amount.IsNegative() && !o.Price.GreaterThan(equilibrium) {
			return fmt.Errorf("%w: sell #%d at %s <= %s", ErrCrossedEquilibrium, i, o.Price, equilibrium)
		}
	}
	return nil
}
