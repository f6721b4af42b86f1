package gateway

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/kleros/market-maker/inventory"
)

// EventKind 是解析后的 WebSocket 消息类型。
type EventKind string

const (
	EventInfo         EventKind = "info"
	EventAuth         EventKind = "auth"
	EventHeartbeat    EventKind = "hb"
	EventWallet       EventKind = "wallet"       // wu / ws
	EventTrade        EventKind = "trade"        // te
	EventTradeUpdate  EventKind = "trade_update" // tu，带手续费
	EventOrder        EventKind = "order"        // on / ou / oc / os
	EventNotification EventKind = "notification" // n
	EventUnknown      EventKind = "unknown"
)

// Wallet 是钱包余额更新。
type Wallet struct {
	Type     string
	Currency string
	Balance  decimal.Decimal
}

// Trade 是账户成交。Amount 带符号：正数买入。
type Trade struct {
	ID          int64
	Symbol      string
	Time        time.Time
	OrderID     int64
	Amount      decimal.Decimal
	Price       decimal.Decimal
	Fee         decimal.Decimal
	FeeCurrency string
	ClientID    int64
}

// Fill 把成交转换为储备更新。手续费币种与 base/quote 不符时忽略手续费。
func (t Trade) Fill(baseCurrency, quoteCurrency string) inventory.Fill {
	f := inventory.Fill{
		ID:         strconv.FormatInt(t.ID, 10),
		OrderID:    strconv.FormatInt(t.OrderID, 10),
		Symbol:     t.Symbol,
		BaseAmount: t.Amount,
		Price:      t.Price,
		Time:       t.Time,
	}
	switch t.FeeCurrency {
	case "":
	case baseCurrency:
		f.Fee, f.FeeAsset = t.Fee, inventory.FeeBase
	case quoteCurrency:
		f.Fee, f.FeeAsset = t.Fee, inventory.FeeQuote
	}
	return f
}

// OrderUpdate 是订单回报。
type OrderUpdate struct {
	Op       string // on / ou / oc / os
	ID       int64
	ClientID int64
	Symbol   string
	Amount   decimal.Decimal
	Price    decimal.Decimal
	Status   string
}

// Notification 是 "n" 消息，下单/撤单请求的结果。
type Notification struct {
	Type   string
	Status string
	Text   string
}

// Event 是解析后的消息，只有与 Kind 对应的字段有值。
type Event struct {
	Kind    EventKind
	Channel int64
	Type    string

	AuthOK  bool
	Message string

	Wallets []Wallet
	Trade   *Trade
	Orders  []OrderUpdate
	Notice  *Notification
}

// ParseMessage 解析交易所 v2 WebSocket 消息。
// 对象消息为事件（info/auth/error），数组消息为 [chanId, type, payload]。
func ParseMessage(raw []byte) (Event, error) {
	if !gjson.ValidBytes(raw) {
		return Event{}, fmt.Errorf("%w: invalid json", ErrBadResponse)
	}
	msg := gjson.ParseBytes(raw)
	if msg.IsObject() {
		return parseEvent(msg)
	}
	if !msg.IsArray() {
		return Event{}, fmt.Errorf("%w: %s", ErrBadResponse, raw)
	}

	ev := Event{Channel: msg.Get("0").Int(), Type: msg.Get("1").String()}
	payload := msg.Get("2")
	switch ev.Type {
	case "hb":
		ev.Kind = EventHeartbeat
	case "wu":
		ev.Kind = EventWallet
		ev.Wallets = []Wallet{parseWallet(payload)}
	case "ws":
		ev.Kind = EventWallet
		payload.ForEach(func(_, w gjson.Result) bool {
			ev.Wallets = append(ev.Wallets, parseWallet(w))
			return true
		})
	case "te", "tu":
		ev.Kind = EventTrade
		if ev.Type == "tu" {
			ev.Kind = EventTradeUpdate
		}
		tr, err := parseTrade(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Trade = &tr
	case "on", "ou", "oc":
		ev.Kind = EventOrder
		ev.Orders = []OrderUpdate{parseOrder(ev.Type, payload)}
	case "os":
		ev.Kind = EventOrder
		payload.ForEach(func(_, o gjson.Result) bool {
			ev.Orders = append(ev.Orders, parseOrder("os", o))
			return true
		})
	case "n":
		ev.Kind = EventNotification
		ev.Notice = &Notification{
			Type:   payload.Get("1").String(),
			Status: payload.Get("6").String(),
			Text:   payload.Get("7").String(),
		}
	default:
		ev.Kind = EventUnknown
	}
	return ev, nil
}

func parseEvent(msg gjson.Result) (Event, error) {
	switch msg.Get("event").String() {
	case "info":
		return Event{Kind: EventInfo, Message: msg.Get("version").String()}, nil
	case "auth":
		return Event{
			Kind:    EventAuth,
			AuthOK:  msg.Get("status").String() == "OK",
			Message: msg.Get("msg").String(),
		}, nil
	case "error":
		return Event{}, fmt.Errorf("%w: code %d %s", ErrBadResponse, msg.Get("code").Int(), msg.Get("msg").String())
	}
	return Event{Kind: EventUnknown, Type: msg.Get("event").String()}, nil
}

// [WALLET_TYPE, CURRENCY, BALANCE, UNSETTLED_INTEREST, BALANCE_AVAILABLE, ...]
func parseWallet(w gjson.Result) Wallet {
	return Wallet{
		Type:     w.Get("0").String(),
		Currency: w.Get("1").String(),
		Balance:  decimalOf(w.Get("2")),
	}
}

// [ID, SYMBOL, MTS_CREATE, ORDER_ID, EXEC_AMOUNT, EXEC_PRICE, ORDER_TYPE, ORDER_PRICE, MAKER, FEE, FEE_CURRENCY, CID]
func parseTrade(p gjson.Result) (Trade, error) {
	if !p.IsArray() || len(p.Array()) < 6 {
		return Trade{}, fmt.Errorf("%w: trade payload %s", ErrBadResponse, p.Raw)
	}
	amount, price := decimalOf(p.Get("4")), decimalOf(p.Get("5"))
	if amount.IsZero() || !price.IsPositive() {
		return Trade{}, fmt.Errorf("%w: trade amount %s price %s", ErrBadResponse, amount, price)
	}
	return Trade{
		ID:          p.Get("0").Int(),
		Symbol:      p.Get("1").String(),
		Time:        time.UnixMilli(p.Get("2").Int()).UTC(),
		OrderID:     p.Get("3").Int(),
		Amount:      amount,
		Price:       price,
		Fee:         decimalOf(p.Get("9")),
		FeeCurrency: p.Get("10").String(),
		ClientID:    p.Get("11").Int(),
	}, nil
}

// [ID, GID, CID, SYMBOL, MTS_CREATE, MTS_UPDATE, AMOUNT, AMOUNT_ORIG, TYPE, TYPE_PREV, MTS_TIF, _, FLAGS, STATUS, _, _, PRICE, ...]
func parseOrder(op string, p gjson.Result) OrderUpdate {
	return OrderUpdate{
		Op:       op,
		ID:       p.Get("0").Int(),
		ClientID: p.Get("2").Int(),
		Symbol:   p.Get("3").String(),
		Amount:   decimalOf(p.Get("6")),
		Status:   p.Get("13").String(),
		Price:    decimalOf(p.Get("16")),
	}
}

// decimalOf 保留 JSON 数字的原始文本，避免经 float64 丢失精度。
func decimalOf(r gjson.Result) decimal.Decimal {
	var s string
	switch r.Type {
	case gjson.Number:
		s = r.Raw
	case gjson.String:
		s = r.Str
	default:
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
