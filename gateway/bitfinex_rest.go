package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/kleros/market-maker/metrics"
	"github.com/kleros/market-maker/order"
)

const (
	BitfinexAuthURL   = "https://api.bitfinex.com"
	BitfinexPublicURL = "https://api-pub.bitfinex.com"
)

// Ticker 是交易对的最优买卖价和最新成交价。
type Ticker struct {
	Bid  decimal.Decimal
	Ask  decimal.Decimal
	Last decimal.Decimal
}

// Mid 返回买一卖一中间价，任一侧缺失时返回最新成交价。
func (t Ticker) Mid() decimal.Decimal {
	if t.Bid.IsPositive() && t.Ask.IsPositive() {
		return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
	}
	return t.Last
}

// BitfinexREST 是签名 REST 客户端；HTTPClient 可注入 httptest。
type BitfinexREST struct {
	AuthURL    string
	PublicURL  string
	Creds      Credentials
	HTTPClient *http.Client
	Limiter    RateLimiter
	Retry      RetryPolicy
	Nonce      *NonceSource
}

func NewBitfinexREST(creds Credentials, httpCli *http.Client) *BitfinexREST {
	if httpCli == nil {
		httpCli = NewDefaultHTTPClient()
	}
	return &BitfinexREST{
		AuthURL:    BitfinexAuthURL,
		PublicURL:  BitfinexPublicURL,
		Creds:      creds,
		HTTPClient: httpCli,
		Limiter:    NewTokenBucketLimiter(1, 5),
		Retry:      DefaultRetry,
		Nonce:      NewNonceSource(),
	}
}

// Ticker 查询 /v2/ticker/{symbol}：[BID, BID_SIZE, ASK, ASK_SIZE, CHANGE, CHANGE_REL, LAST_PRICE, ...]
func (c *BitfinexREST) Ticker(ctx context.Context, symbol string) (Ticker, error) {
	var t Ticker
	err := Retry(ctx, c.Retry, func(ctx context.Context) error {
		body, err := c.do(ctx, "ticker", http.MethodGet, c.PublicURL+"/v2/ticker/"+url.PathEscape(symbol), nil, nil)
		if err != nil {
			return err
		}
		res := gjson.ParseBytes(body)
		if !res.IsArray() || len(res.Array()) < 7 {
			return fmt.Errorf("%w: ticker %s", ErrBadResponse, body)
		}
		t = Ticker{Bid: decimalOf(res.Get("0")), Ask: decimalOf(res.Get("2")), Last: decimalOf(res.Get("6"))}
		return nil
	})
	return t, err
}

// Wallets 查询 /v2/auth/r/wallets。
func (c *BitfinexREST) Wallets(ctx context.Context) ([]Wallet, error) {
	var out []Wallet
	err := Retry(ctx, c.Retry, func(ctx context.Context) error {
		body, err := c.signed(ctx, "wallets", "v2/auth/r/wallets")
		if err != nil {
			return err
		}
		res := gjson.ParseBytes(body)
		if !res.IsArray() {
			return fmt.Errorf("%w: wallets %s", ErrBadResponse, body)
		}
		out = out[:0]
		res.ForEach(func(_, w gjson.Result) bool {
			out = append(out, parseWallet(w))
			return true
		})
		return nil
	})
	return out, err
}

// ExchangeBalance 返回 exchange 钱包中某币种的余额。
func ExchangeBalance(wallets []Wallet, currency string) (decimal.Decimal, bool) {
	for _, w := range wallets {
		if w.Type == "exchange" && w.Currency == currency {
			return w.Balance, true
		}
	}
	return decimal.Zero, false
}

// OpenOrders 查询 /v2/auth/r/orders，并按交易对过滤；实现 order.OpenOrderSource。
func (c *BitfinexREST) OpenOrders(ctx context.Context, symbol string) ([]order.RemoteOrder, error) {
	var out []order.RemoteOrder
	err := Retry(ctx, c.Retry, func(ctx context.Context) error {
		body, err := c.signed(ctx, "orders", "v2/auth/r/orders")
		if err != nil {
			return err
		}
		res := gjson.ParseBytes(body)
		if !res.IsArray() {
			return fmt.Errorf("%w: orders %s", ErrBadResponse, body)
		}
		out = out[:0]
		res.ForEach(func(_, o gjson.Result) bool {
			u := parseOrder("os", o)
			if symbol == "" || u.Symbol == symbol {
				out = append(out, order.RemoteOrder{
					ID:       strconv.FormatInt(u.ID, 10),
					ClientID: u.ClientID,
					Symbol:   u.Symbol,
					Amount:   u.Amount,
					Price:    u.Price,
				})
			}
			return true
		})
		return nil
	})
	return out, err
}

// CancelAll 通过 /v2/auth/w/order/cancel/multi 撤掉账户下全部挂单，WS 断开时使用。
func (c *BitfinexREST) CancelAll(ctx context.Context) error {
	return Retry(ctx, c.Retry, func(ctx context.Context) error {
		body, err := c.signedBody(ctx, "cancel_all", "v2/auth/w/order/cancel/multi", `{"all":1}`)
		if err != nil {
			return err
		}
		res := gjson.ParseBytes(body)
		if !res.IsArray() {
			return fmt.Errorf("%w: cancel all %s", ErrBadResponse, body)
		}
		// 通知格式 [MTS, TYPE, MSG_ID, null, DATA, CODE, STATUS, TEXT]
		if st := res.Get("6").String(); st == "ERROR" || st == "FAILURE" {
			return Permanent{Err: fmt.Errorf("cancel all: %s", res.Get("7").String())}
		}
		return nil
	})
}

func (c *BitfinexREST) signed(ctx context.Context, endpoint, path string) ([]byte, error) {
	return c.signedBody(ctx, endpoint, path, "{}")
}

func (c *BitfinexREST) signedBody(ctx context.Context, endpoint, path, body string) ([]byte, error) {
	if !c.Creds.Valid() {
		return nil, Permanent{Err: fmt.Errorf("%s: missing credentials", endpoint)}
	}
	nonce := strconv.FormatInt(c.Nonce.Next(), 10)
	headers := map[string]string{
		"Content-Type":  "application/json",
		"bfx-nonce":     nonce,
		"bfx-apikey":    c.Creds.Key,
		"bfx-signature": c.Creds.RESTSignature(path, nonce, body),
	}
	return c.do(ctx, endpoint, http.MethodPost, c.AuthURL+"/"+path, []byte(body), headers)
}

func (c *BitfinexREST) do(ctx context.Context, endpoint, method, u string, body []byte, headers map[string]string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	out, err := doHTTP(ctx, c.HTTPClient, method, u, body, headers)
	metrics.ObserveRest(endpoint, time.Since(start), err)
	return out, err
}

// doHTTP 发起请求并读取响应，除 429 外的 4xx 视为不可重试。
func doHTTP(ctx context.Context, cli *http.Client, method, u string, body []byte, headers map[string]string) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, Permanent{Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return nil, Permanent{Err: fmt.Errorf("%w: %s status %d: %s", ErrBadResponse, req.URL.Path, resp.StatusCode, raw)}
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s status %d", ErrBadResponse, req.URL.Path, resp.StatusCode)
	}
	return raw, nil
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
