package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kleros/market-maker/infrastructure/logger"
	"github.com/kleros/market-maker/metrics"
	"github.com/kleros/market-maker/order"
)

const (
	BitfinexWSURL = "wss://api.bitfinex.com/ws/2"
	// DefaultHeartbeatTimeout 内没有收到任何消息（交易所每 15s 发一次 hb）视为连接失效。
	DefaultHeartbeatTimeout = 50 * time.Second
	writeTimeout            = 5 * time.Second
)

// Handler 接收解析后的消息，在读循环中同步调用。
type Handler interface {
	OnEvent(ctx context.Context, ev Event)
}

// HandlerFunc 适配普通函数。
type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// BitfinexWS 是认证后的账户 WebSocket 会话，同时实现 order.Gateway。
type BitfinexWS struct {
	URL              string
	Creds            Credentials
	Dialer           *websocket.Dialer
	HeartbeatTimeout time.Duration
	PingInterval     time.Duration
	Log              *logger.Logger

	nonce *NonceSource

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewBitfinexWS(creds Credentials, log *logger.Logger) *BitfinexWS {
	if log == nil {
		log = logger.NewNop()
	}
	return &BitfinexWS{
		URL:              BitfinexWSURL,
		Creds:            creds,
		Dialer:           &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		PingInterval:     15 * time.Second,
		Log:              log.Named("ws"),
		nonce:            NewNonceSource(),
	}
}

// Run 连接、认证并读取消息直到出错或 ctx 结束（此时返回 nil）。
func (w *BitfinexWS) Run(ctx context.Context, h Handler) error {
	conn, _, err := w.Dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
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

	if err := w.Send(w.Creds.AuthMessage(w.nonce.Next())); err != nil {
		return fmt.Errorf("ws auth: %w", err)
	}
	w.Log.Info("ws connected", zap.String("url", w.URL))

	done := make(chan struct{})
	defer close(done)
	go w.keepalive(ctx, conn, done)

	timeout := w.HeartbeatTimeout
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return classifyReadError(err)
		}
		ev, err := ParseMessage(msg)
		if err != nil {
			w.Log.Warn("ws message dropped", zap.Error(err), zap.ByteString("raw", msg))
			continue
		}
		metrics.WsMessages.WithLabelValues(string(ev.Kind)).Inc()
		if ev.Kind == EventAuth && !ev.AuthOK {
			return fmt.Errorf("%w: %s", ErrAuthFailed, ev.Message)
		}
		if h != nil {
			h.OnEvent(ctx, ev)
		}
	}
}

// keepalive 定时发送 ping，ctx 结束时关闭连接以打断读循环。
func (w *BitfinexWS) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
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
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
			return
		case <-t.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
		}
	}
}

func classifyReadError(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrHeartbeatTimeout
	}
	if websocket.IsCloseError(err, websocket.CloseGoingAway) {
		return ErrGoingAway
	}
	return fmt.Errorf("ws read: %w", err)
}

// Connected 表示当前有可写的连接。
func (w *BitfinexWS) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

// Send 以 JSON 写出一条消息。
func (w *BitfinexWS) Send(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return ErrNotConnected
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(v)
}

// Submit 按每批 15 个发送 ox_multi。
func (w *BitfinexWS) Submit(ctx context.Context, orders []order.Order) error {
	for i, batch := range order.BatchCommands(orders, order.MaxBatchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Send(batch); err != nil {
			return fmt.Errorf("submit batch %d: %w", i, err)
		}
	}
	metrics.OrdersSubmitted.Add(float64(len(orders)))
	return nil
}

// CancelAll 发送 oc_multi {"all":1}。
func (w *BitfinexWS) CancelAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.Send(order.CancelAllCommand())
}

// OrderStatus 把订单回报映射为本地状态。
func OrderStatus(u OrderUpdate) order.Status {
	switch {
	case strings.HasPrefix(u.Status, "EXECUTED"):
		return order.StatusFilled
	case strings.Contains(u.Status, "PARTIALLY FILLED"):
		if u.Op == "oc" {
			return order.StatusCanceled
		}
		return order.StatusPartial
	case u.Op == "oc" || strings.HasPrefix(u.Status, "CANCELED"):
		return order.StatusCanceled
	}
	return order.StatusAck
}
