package order

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/strategy"
)

const (
	EtherAddress    = "0x0000000000000000000000000000000000000000"
	PinakionAddress = "0x93ED3FBe21207Ec2E8f2d3c3de6e058Cb73Bc04d"
	IdexContract    = "0x2a0c0dbecc7e4d658f48e01e3fa353f44050c208"

	// tokenDecimals 是两种资产链上的精度。
	tokenDecimals = 18
)

// IdexOrder 是 IDEX /order 接口的请求体。
type IdexOrder struct {
	TokenBuy   string `json:"tokenBuy"`
	AmountBuy  string `json:"amountBuy"`
	TokenSell  string `json:"tokenSell"`
	AmountSell string `json:"amountSell"`
	Address    string `json:"address,omitempty"`
	Nonce      uint64 `json:"nonce,omitempty"`
	Expires    uint64 `json:"expires,omitempty"`
	V          byte   `json:"v,omitempty"`
	R          string `json:"r,omitempty"`
	S          string `json:"s,omitempty"`
}

// IdexCancel 是 IDEX /cancel 接口的请求体。
type IdexCancel struct {
	OrderHash string `json:"orderHash"`
	Address   string `json:"address"`
	Nonce     uint64 `json:"nonce"`
	V         byte   `json:"v"`
	R         string `json:"r"`
	S         string `json:"s"`
}

// IdexTokens 指定 base/quote 对应的合约地址。
type IdexTokens struct {
	Base  string
	Quote string
}

// DefaultIdexTokens 是 PNK/ETH。
var DefaultIdexTokens = IdexTokens{Base: PinakionAddress, Quote: EtherAddress}

// IdexOrders 把阶梯转换为链上整数金额的订单：收到的一侧向上取整，付出的一侧向下取整。
func IdexOrders(ladder []strategy.OrderDelta, tokens IdexTokens) []IdexOrder {
	out := make([]IdexOrder, 0, len(ladder))
	for _, d := range ladder {
		out = append(out, toIdex(d.Base, d.Quote, tokens))
	}
	return out
}

// IdexOrderFrom 转换单个订单，需要订单带有 Quote。
func IdexOrderFrom(o Order, tokens IdexTokens) IdexOrder {
	quote := o.Quote
	if quote.IsZero() {
		quote = o.Amount.Mul(o.Price).Neg()
	}
	return toIdex(o.Amount, quote, tokens)
}

func toIdex(base, quote decimal.Decimal, tokens IdexTokens) IdexOrder {
	if base.IsNegative() {
		return IdexOrder{
			TokenBuy:   tokens.Quote,
			AmountBuy:  toUnits(quote, true),
			TokenSell:  tokens.Base,
			AmountSell: toUnits(base, false),
		}
	}
	return IdexOrder{
		TokenBuy:   tokens.Base,
		AmountBuy:  toUnits(base, true),
		TokenSell:  tokens.Quote,
		AmountSell: toUnits(quote, false),
	}
}

func toUnits(v decimal.Decimal, up bool) string {
	scaled := v.Abs().Shift(tokenDecimals)
	if up {
		return scaled.RoundUp(0).String()
	}
	return scaled.RoundDown(0).String()
}

// IdexSigner 用账户私钥对订单和撤单签名。
type IdexSigner struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	contract common.Address
}

// NewIdexSigner 从十六进制私钥创建签名器。
func NewIdexSigner(privateKeyHex string) (*IdexSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &IdexSigner{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		contract: common.HexToAddress(IdexContract),
	}, nil
}

// Address 返回签名账户地址。
func (s *IdexSigner) Address() common.Address { return s.address }

// OrderHash 按合约的 tightly packed 编码计算订单哈希。
func (s *IdexSigner) OrderHash(o IdexOrder) ([]byte, error) {
	amountBuy, ok := new(big.Int).SetString(o.AmountBuy, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amountBuy %q", o.AmountBuy)
	}
	amountSell, ok := new(big.Int).SetString(o.AmountSell, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amountSell %q", o.AmountSell)
	}
	return crypto.Keccak256(
		s.contract.Bytes(),
		common.HexToAddress(o.TokenBuy).Bytes(),
		uint256(amountBuy),
		common.HexToAddress(o.TokenSell).Bytes(),
		uint256(amountSell),
		uint256(new(big.Int).SetUint64(o.Expires)),
		uint256(new(big.Int).SetUint64(o.Nonce)),
		common.HexToAddress(o.Address).Bytes(),
	), nil
}

// SignOrder 填充地址、nonce 与签名。
func (s *IdexSigner) SignOrder(o IdexOrder, nonce uint64) (IdexOrder, error) {
	o.Address = s.address.Hex()
	o.Nonce = nonce
	if o.Expires == 0 {
		o.Expires = 100000
	}
	hash, err := s.OrderHash(o)
	if err != nil {
		return IdexOrder{}, err
	}
	v, r, sig, err := s.sign(hash)
	if err != nil {
		return IdexOrder{}, err
	}
	o.V, o.R, o.S = v, r, sig
	return o, nil
}

// SignCancel 对撤单请求签名。
func (s *IdexSigner) SignCancel(orderHash string, nonce uint64) (IdexCancel, error) {
	raw := crypto.Keccak256(
		common.HexToHash(orderHash).Bytes(),
		uint256(new(big.Int).SetUint64(nonce)),
	)
	v, r, sig, err := s.sign(raw)
	if err != nil {
		return IdexCancel{}, err
	}
	return IdexCancel{
		OrderHash: orderHash,
		Address:   s.address.Hex(),
		Nonce:     nonce,
		V:         v,
		R:         r,
		S:         sig,
	}, nil
}

// sign 先加 personal message 前缀再签名，v 取 27/28。
func (s *IdexSigner) sign(raw []byte) (byte, string, string, error) {
	sig, err := crypto.Sign(accounts.TextHash(raw), s.key)
	if err != nil {
		return 0, "", "", err
	}
	return sig[64] + 27, hexutil.Encode(sig[:32]), hexutil.Encode(sig[32:64]), nil
}

func uint256(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}
