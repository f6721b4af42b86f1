package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleros/market-maker/order"
)

var upgrader = websocket.Upgrader{}

// fakeExchange 接受一个连接，校验认证后依次推送 script 中的消息，并把收到的消息转发到 received。
func fakeExchange(t *testing.T, script []string, received chan<- []byte) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_, auth, err := c.ReadMessage()
		if err != nil {
			return
		}
		var am AuthMessage
		if json.Unmarshal(auth, &am) != nil || am.Event != "auth" {
			t.Errorf("first message is not auth: %s", auth)
			return
		}
		for _, m := range script {
			if err := c.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			if received != nil {
				received <- msg
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestBitfinexWSSessionFlow(t *testing.T) {
	received := make(chan []byte, 8)
	url := fakeExchange(t, []string{
		`{"event":"info","version":2}`,
		`{"event":"auth","status":"OK"}`,
		`[0,"wu",["exchange","ETH",12,0,12]]`,
		`[0,"te",[1,"tPNKETH",1574694475039,2,-3000,0.000041,"EXCHANGE LIMIT",0.000041,1,null,null,100]]`,
	}, received)

	ws := NewBitfinexWS(Credentials{Key: "k", Secret: "s"}, nil)
	ws.URL = url
	assert.False(t, ws.Connected())
	assert.ErrorIs(t, ws.CancelAll(context.Background()), ErrNotConnected)

	events := make(chan Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ws.Run(ctx, HandlerFunc(func(_ context.Context, ev Event) { events <- ev }))
	}()

	var kinds []EventKind
	for len(kinds) < 4 {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", kinds)
		}
	}
	assert.Equal(t, []EventKind{EventInfo, EventAuth, EventWallet, EventTrade}, kinds)
	require.True(t, ws.Connected())

	require.NoError(t, ws.CancelAll(ctx))
	orders := []order.Order{{ClientID: 1, Symbol: "tPNKETH", Amount: d("-3000"), Price: d("0.000041")}}
	require.NoError(t, ws.Submit(ctx, orders))

	select {
	case msg := <-received:
		assert.JSONEq(t, `[0,"oc_multi",null,{"all":1}]`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("cancel not received")
	}
	select {
	case msg := <-received:
		assert.Contains(t, string(msg), `"ox_multi"`)
		assert.Contains(t, string(msg), `"EXCHANGE LIMIT"`)
	case <-time.After(2 * time.Second):
		t.Fatal("batch not received")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestBitfinexWSHeartbeatTimeout(t *testing.T) {
	url := fakeExchange(t, []string{`{"event":"info","version":2}`}, nil)
	ws := NewBitfinexWS(Credentials{Key: "k", Secret: "s"}, nil)
	ws.URL = url
	ws.HeartbeatTimeout = 100 * time.Millisecond

	err := ws.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrHeartbeatTimeout)
	assert.True(t, IsPermanent(err))
}

func TestBitfinexWSAuthFailed(t *testing.T) {
	url := fakeExchange(t, []string{`{"event":"auth","status":"FAILED","msg":"nonce: small"}`}, nil)
	ws := NewBitfinexWS(Credentials{Key: "k", Secret: "s"}, nil)
	ws.URL = url

	err := ws.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAuthFailed)
}
