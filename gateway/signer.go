package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"sync"
	"time"
)

// Credentials 是交易所 API key/secret。
type Credentials struct {
	Key    string
	Secret string
}

// Valid 表示两个字段都已配置。
func (c Credentials) Valid() bool { return c.Key != "" && c.Secret != "" }

// Sign 返回 HMAC-SHA384 十六进制签名。
func (c Credentials) Sign(payload string) string {
	mac := hmac.New(sha512.New384, []byte(c.Secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// RESTSignature 对 "/api/" + path + nonce + body 签名。
func (c Credentials) RESTSignature(path, nonce, body string) string {
	return c.Sign("/api/" + path + nonce + body)
}

// AuthMessage 是 WebSocket 认证事件，dms=4 表示断线时交易所自动撤掉全部挂单。
type AuthMessage struct {
	APIKey      string `json:"apiKey"`
	AuthNonce   int64  `json:"authNonce"`
	AuthPayload string `json:"authPayload"`
	AuthSig     string `json:"authSig"`
	DMS         int    `json:"dms"`
	Event       string `json:"event"`
}

// AuthMessage 用给定 nonce 构造认证消息。
func (c Credentials) AuthMessage(nonce int64) AuthMessage {
	payload := "AUTH" + strconv.FormatInt(nonce, 10)
	return AuthMessage{
		APIKey:      c.Key,
		AuthNonce:   nonce,
		AuthPayload: payload,
		AuthSig:     c.Sign(payload),
		DMS:         4,
		Event:       "auth",
	}
}

// NonceSource 生成严格递增的微秒级 nonce。
type NonceSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewNonceSource() *NonceSource {
	return &NonceSource{now: time.Now}
}

func (n *NonceSource) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	v := n.now().UnixMicro()
	if v <= n.last {
		v = n.last + 1
	}
	n.last = v
	return v
}
