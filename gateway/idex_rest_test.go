package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleros/market-maker/order"
	"github.com/kleros/market-maker/strategy"
)

const idexTestKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fakeIdex struct {
	mu      sync.Mutex
	nonce   uint64
	open    []string
	orders  []order.IdexOrder
	cancels []order.IdexCancel
	failAll bool
}

func (f *fakeIdex) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("API-Key") != "api-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, _ := io.ReadAll(r.Body)
	switch strings.TrimPrefix(r.URL.Path, "/") {
	case "returnTicker":
		io.WriteString(w, `{"last":"0.00004","highestBid":"0.0000399","lowestAsk":"0.0000401"}`)
	case "returnBalances":
		io.WriteString(w, `{"ETH":"12.5","PNK":"400000"}`)
	case "returnNextNonce":
		f.nonce++
		fmt.Fprintf(w, `{"nonce":%d}`, f.nonce)
	case "returnOpenOrders":
		out := make([]map[string]string, 0, len(f.open))
		for _, h := range f.open {
			out = append(out, map[string]string{"orderHash": h})
		}
		json.NewEncoder(w).Encode(out)
	case "order":
		if f.failAll {
			io.WriteString(w, `{"error":"Invalid order signature"}`)
			return
		}
		var o order.IdexOrder
		json.Unmarshal(body, &o)
		f.orders = append(f.orders, o)
		io.WriteString(w, `{"orderNumber":1}`)
	case "cancel":
		var c order.IdexCancel
		json.Unmarshal(body, &c)
		f.cancels = append(f.cancels, c)
		for i, h := range f.open {
			if h == c.OrderHash {
				f.open = append(f.open[:i], f.open[i+1:]...)
				break
			}
		}
		io.WriteString(w, `{"success":1}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func testIdex(t *testing.T, f *fakeIdex) *IdexREST {
	t.Helper()
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	signer, err := order.NewIdexSigner(idexTestKey)
	require.NoError(t, err)
	c := NewIdexREST("api-key", "ETH_PNK", signer, nil)
	c.BaseURL = ts.URL
	c.HTTPClient = ts.Client()
	c.Limiter = nil
	return c
}

func TestIdexTickerAndBalances(t *testing.T) {
	c := testIdex(t, &fakeIdex{})
	ctx := context.Background()

	tk, err := c.Ticker(ctx)
	require.NoError(t, err)
	assert.True(t, tk.Mid().Equal(d("0.00004")))

	ws, err := c.Balances(ctx)
	require.NoError(t, err)
	eth, ok := ExchangeBalance(ws, "ETH")
	require.True(t, ok)
	assert.True(t, eth.Equal(d("12.5")))
}

func TestIdexSubmitSignsEachOrder(t *testing.T) {
	f := &fakeIdex{}
	c := testIdex(t, f)
	orders := []order.Order{
		order.FromDelta(strategyDelta("-3740.64254887383280262967", "0.15"), "ETH_PNK"),
		order.FromDelta(strategyDelta("3759.39260746772013201734", "-0.15"), "ETH_PNK"),
	}
	require.NoError(t, c.Submit(context.Background(), orders))

	require.Len(t, f.orders, 2)
	assert.Equal(t, uint64(1), f.orders[0].Nonce)
	assert.Equal(t, uint64(2), f.orders[1].Nonce)
	assert.Equal(t, "3740642548873832802629", f.orders[0].AmountSell)
	assert.Equal(t, c.Signer.Address().Hex(), f.orders[0].Address)
	assert.Contains(t, []byte{27, 28}, f.orders[0].V)
	assert.Equal(t, uint64(100000), f.orders[0].Expires)
}

func TestIdexSubmitAllRejected(t *testing.T) {
	c := testIdex(t, &fakeIdex{failAll: true})
	orders := []order.Order{order.FromDelta(strategyDelta("3000", "-0.12"), "ETH_PNK")}
	err := c.Submit(context.Background(), orders)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestIdexCancelAll(t *testing.T) {
	f := &fakeIdex{open: []string{
		"0x1111111111111111111111111111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222222222222222222222222222",
	}}
	c := testIdex(t, f)
	require.NoError(t, c.CancelAll(context.Background()))
	assert.Len(t, f.cancels, 2)
	assert.Empty(t, f.open)
	assert.Equal(t, c.Signer.Address().Hex(), f.cancels[0].Address)
}

func strategyDelta(base, quote string) strategy.OrderDelta {
	return strategy.OrderDelta{Base: d(base), Quote: d(quote)}
}
