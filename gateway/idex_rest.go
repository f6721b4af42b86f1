package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kleros/market-maker/infrastructure/logger"
	"github.com/kleros/market-maker/metrics"
	"github.com/kleros/market-maker/order"
)

const IdexURL = "https://api.idex.market"

// IdexREST 是 IDEX HTTPS API 客户端，每个订单单独签名提交。实现 order.Gateway。
type IdexREST struct {
	BaseURL    string
	APIKey     string
	Market     string // 例如 ETH_PNK
	Tokens     order.IdexTokens
	Signer     *order.IdexSigner
	HTTPClient *http.Client
	Limiter    RateLimiter
	Log        *logger.Logger
	// MaxCancelRounds 限制 CancelAll 轮询次数
	MaxCancelRounds int
}

func NewIdexREST(apiKey, market string, signer *order.IdexSigner, log *logger.Logger) *IdexREST {
	if log == nil {
		log = logger.NewNop()
	}
	return &IdexREST{
		BaseURL:         IdexURL,
		APIKey:          apiKey,
		Market:          market,
		Tokens:          order.DefaultIdexTokens,
		Signer:          signer,
		HTTPClient:      NewDefaultHTTPClient(),
		Limiter:         NewTokenBucketLimiter(5, 5),
		Log:             log.Named("idex"),
		MaxCancelRounds: 10,
	}
}

func (c *IdexREST) post(ctx context.Context, endpoint string, body interface{}) (gjson.Result, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return gjson.Result{}, Permanent{Err: err}
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return gjson.Result{}, err
		}
	}
	start := time.Now()
	out, err := doHTTP(ctx, c.HTTPClient, http.MethodPost, c.BaseURL+"/"+endpoint, raw, map[string]string{
		"Content-Type": "application/json",
		"API-Key":      c.APIKey,
	})
	metrics.ObserveRest("idex_"+endpoint, time.Since(start), err)
	if err != nil {
		return gjson.Result{}, err
	}
	res := gjson.ParseBytes(out)
	if e := res.Get("error"); e.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s: %s", ErrBadResponse, endpoint, e.String())
	}
	return res, nil
}

// Ticker 返回 highestBid/lowestAsk/last。
func (c *IdexREST) Ticker(ctx context.Context) (Ticker, error) {
	res, err := c.post(ctx, "returnTicker", map[string]string{"market": c.Market})
	if err != nil {
		return Ticker{}, err
	}
	return Ticker{
		Bid:  decimalOf(res.Get("highestBid")),
		Ask:  decimalOf(res.Get("lowestAsk")),
		Last: decimalOf(res.Get("last")),
	}, nil
}

// Balances 返回账户各币种余额。
func (c *IdexREST) Balances(ctx context.Context) ([]Wallet, error) {
	res, err := c.post(ctx, "returnBalances", map[string]string{"address": c.address()})
	if err != nil {
		return nil, err
	}
	var out []Wallet
	res.ForEach(func(k, v gjson.Result) bool {
		out = append(out, Wallet{Type: "exchange", Currency: k.String(), Balance: decimalOf(v)})
		return true
	})
	return out, nil
}

// NextNonce 返回账户下一个可用 nonce。
func (c *IdexREST) NextNonce(ctx context.Context) (uint64, error) {
	res, err := c.post(ctx, "returnNextNonce", map[string]string{"address": c.address()})
	if err != nil {
		return 0, err
	}
	n := res.Get("nonce")
	if n.Type != gjson.Number {
		return 0, fmt.Errorf("%w: nonce %s", ErrBadResponse, res.Raw)
	}
	return n.Uint(), nil
}

// OpenOrderHashes 返回当前挂单的哈希。
func (c *IdexREST) OpenOrderHashes(ctx context.Context) ([]string, error) {
	res, err := c.post(ctx, "returnOpenOrders", map[string]interface{}{
		"address": c.address(),
		"market":  c.Market,
		"count":   100,
	})
	if err != nil {
		return nil, err
	}
	if !res.IsArray() {
		return nil, fmt.Errorf("%w: open orders %s", ErrBadResponse, res.Raw)
	}
	var hashes []string
	res.ForEach(func(_, o gjson.Result) bool {
		if h := o.Get("orderHash").String(); h != "" {
			hashes = append(hashes, h)
		}
		return true
	})
	return hashes, nil
}

// Submit 逐个取 nonce、签名并提交。单个订单失败只记录日志，全部失败时返回错误。
func (c *IdexREST) Submit(ctx context.Context, orders []order.Order) error {
	if c.Signer == nil {
		return Permanent{Err: fmt.Errorf("idex: no signer")}
	}
	var sent int
	var lastErr error
	for _, o := range orders {
		if err := c.submitOne(ctx, o); err != nil {
			lastErr = err
			c.Log.Warn("idex order skipped", zap.Int64("cid", o.ClientID), zap.Error(err))
			continue
		}
		sent++
	}
	metrics.OrdersSubmitted.Add(float64(sent))
	if sent == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (c *IdexREST) submitOne(ctx context.Context, o order.Order) error {
	nonce, err := c.NextNonce(ctx)
	if err != nil {
		return err
	}
	signed, err := c.Signer.SignOrder(order.IdexOrderFrom(o, c.Tokens), nonce)
	if err != nil {
		return err
	}
	_, err = c.post(ctx, "order", signed)
	return err
}

// CancelAll 反复拉取挂单并逐个撤销，直到没有挂单或超过轮数。
func (c *IdexREST) CancelAll(ctx context.Context) error {
	if c.Signer == nil {
		return Permanent{Err: fmt.Errorf("idex: no signer")}
	}
	rounds := c.MaxCancelRounds
	if rounds <= 0 {
		rounds = 1
	}
	for i := 0; i < rounds; i++ {
		hashes, err := c.OpenOrderHashes(ctx)
		if err != nil {
			return err
		}
		if len(hashes) == 0 {
			return nil
		}
		for _, h := range hashes {
			nonce, err := c.NextNonce(ctx)
			if err != nil {
				return err
			}
			req, err := c.Signer.SignCancel(h, nonce)
			if err != nil {
				return err
			}
			if _, err := c.post(ctx, "cancel", req); err != nil {
				c.Log.Warn("idex cancel failed", zap.String("hash", h), zap.Error(err))
			}
		}
	}
	return fmt.Errorf("idex: open orders remain after %d cancel rounds", rounds)
}

func (c *IdexREST) address() string {
	if c.Signer == nil {
		return ""
	}
	return c.Signer.Address().Hex()
}
