package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kleros/market-maker/infrastructure/logger"
	"github.com/kleros/market-maker/inventory"
	"github.com/kleros/market-maker/metrics"
	"github.com/kleros/market-maker/order"
)

const (
	IdexWSURL         = "wss://datastream.idex.market"
	idexStreamVersion = "1.0.0"
	// IdexHeartbeatTimeout 内没有任何消息或 ping 视为连接失效。
	IdexHeartbeatTimeout = 60 * time.Second
)

// IdexWS 订阅账户成交流。握手与订阅成功后发出 EventInfo，
// 每笔 account_trades 成交发出 EventTrade。
type IdexWS struct {
	URL              string
	APIKey           string
	Address          string // 校验和格式的账户地址
	Symbol           string // 写入 Trade.Symbol，与引擎配置一致
	Tokens           order.IdexTokens
	Dialer           *websocket.Dialer
	HeartbeatTimeout time.Duration
	PingInterval     time.Duration
	Log              *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewIdexWS(apiKey, address, symbol string, log *logger.Logger) *IdexWS {
	if log == nil {
		log = logger.NewNop()
	}
	return &IdexWS{
		URL:              IdexWSURL,
		APIKey:           apiKey,
		Address:          address,
		Symbol:           symbol,
		Tokens:           order.DefaultIdexTokens,
		Dialer:           &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		HeartbeatTimeout: IdexHeartbeatTimeout,
		PingInterval:     15 * time.Second,
		Log:              log.Named("idex_ws"),
	}
}

type idexRequest struct {
	SID     string `json:"sid,omitempty"`
	Request string `json:"request"`
	Payload string `json:"payload"`
}

// Run 连接并读取消息直到出错或 ctx 结束（此时返回 nil）。
func (w *IdexWS) Run(ctx context.Context, h Handler) error {
	conn, _, err := w.Dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return fmt.Errorf("idex ws dial: %w", err)
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		conn.Close()
	}()

	timeout := w.HeartbeatTimeout
	if timeout <= 0 {
		timeout = IdexHeartbeatTimeout
	}
	// 服务端 ping 也算心跳
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})

	hello := fmt.Sprintf(`{"version": "%s", "key": "%s"}`, idexStreamVersion, w.APIKey)
	if err := w.send(idexRequest{Request: "handshake", Payload: hello}); err != nil {
		return fmt.Errorf("idex handshake: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go w.keepalive(ctx, conn, done)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return classifyReadError(err)
		}
		res := gjson.ParseBytes(msg)
		switch {
		case res.Get("request").String() == "handshake":
			if res.Get("result").String() != "success" {
				return fmt.Errorf("%w: %s", ErrAuthFailed, msg)
			}
			sub := fmt.Sprintf(`{"topics": ["%s"], "events": ["account_trades"]}`, w.Address)
			if err := w.send(idexRequest{SID: res.Get("sid").String(), Request: "subscribeToAccounts", Payload: sub}); err != nil {
				return fmt.Errorf("idex subscribe: %w", err)
			}
		case res.Get("request").String() == "subscribeToAccounts":
			if res.Get("result").String() != "success" {
				return fmt.Errorf("%w: %s", ErrAuthFailed, msg)
			}
			w.Log.Info("idex ws subscribed", zap.String("address", w.Address))
			w.dispatch(ctx, h, Event{Kind: EventInfo, Message: "subscribed"})
		case res.Get("event").String() == "account_trades":
			trades, err := ParseIdexTrades(res.Get("payload").String(), w.Tokens, w.Symbol)
			if err != nil {
				w.Log.Warn("idex trade dropped", zap.Error(err), zap.ByteString("raw", msg))
				continue
			}
			for i := range trades {
				w.dispatch(ctx, h, Event{Kind: EventTrade, Trade: &trades[i]})
			}
		default:
			metrics.WsMessages.WithLabelValues(string(EventUnknown)).Inc()
		}
	}
}

func (w *IdexWS) dispatch(ctx context.Context, h Handler, ev Event) {
	metrics.WsMessages.WithLabelValues(string(ev.Kind)).Inc()
	if h != nil {
		h.OnEvent(ctx, ev)
	}
}

func (w *IdexWS) send(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return ErrNotConnected
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(v)
}

func (w *IdexWS) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	interval := w.PingInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-t.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		}
	}
}

// ParseIdexTrades 解析 account_trades 的 payload（本身是 JSON 字符串）。
// amount 为 base 数量，total 为 quote 数量；卖出 quote 的成交即买入 base。
func ParseIdexTrades(payload string, tokens order.IdexTokens, symbol string) ([]Trade, error) {
	if !gjson.Valid(payload) {
		return nil, fmt.Errorf("%w: invalid trade payload", ErrBadResponse)
	}
	list := gjson.Get(payload, "trades").Array()
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no trades", ErrBadResponse)
	}
	out := make([]Trade, 0, len(list))
	for _, t := range list {
		amount := decimalOf(t.Get("amount"))
		total := decimalOf(t.Get("total"))
		if !amount.IsPositive() || !total.IsPositive() {
			return nil, fmt.Errorf("%w: trade amount=%s total=%s", ErrBadResponse, amount, total)
		}
		if strings.EqualFold(t.Get("tokenSell").String(), tokens.Base) {
			amount = amount.Neg()
		}
		tr := Trade{
			ID:     t.Get("tid").Int(),
			Symbol: symbol,
			Amount: amount,
			Price:  total.DivRound(amount.Abs(), inventory.DivisionPrecision),
		}
		if ts := t.Get("timestamp"); ts.Exists() {
			tr.Time = time.Unix(ts.Int(), 0).UTC()
		}
		out = append(out, tr)
	}
	return out, nil
}
