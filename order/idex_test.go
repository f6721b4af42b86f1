package order

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleros/market-maker/strategy"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestIdexOrdersRounding(t *testing.T) {
	ladder := []strategy.OrderDelta{
		{Quote: d("0.15"), Base: d("-3740.64254887383280262967")},
		{Quote: d("-0.15"), Base: d("3759.39260746772013201734")},
	}
	got := IdexOrders(ladder, DefaultIdexTokens)
	require.Len(t, got, 2)

	assert.Equal(t, EtherAddress, got[0].TokenBuy)
	assert.Equal(t, "150000000000000000", got[0].AmountBuy)
	assert.Equal(t, PinakionAddress, got[0].TokenSell)
	assert.Equal(t, "3740642548873832802629", got[0].AmountSell)

	assert.Equal(t, PinakionAddress, got[1].TokenBuy)
	assert.Equal(t, "3759392607467720132018", got[1].AmountBuy)
	assert.Equal(t, EtherAddress, got[1].TokenSell)
	assert.Equal(t, "150000000000000000", got[1].AmountSell)

	fromOrder := IdexOrderFrom(FromDelta(ladder[1], "PNK_ETH"), DefaultIdexTokens)
	assert.Equal(t, got[1], fromOrder)
}

func TestIdexSignerRecoversAddress(t *testing.T) {
	signer, err := NewIdexSigner(testKey)
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", signer.Address().Hex())

	o := IdexOrders([]strategy.OrderDelta{{Quote: d("0.15"), Base: d("-3740.64254887383280262967")}}, DefaultIdexTokens)[0]
	signed, err := signer.SignOrder(o, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), signed.Nonce)
	assert.Equal(t, uint64(100000), signed.Expires)
	assert.Contains(t, []byte{27, 28}, signed.V)

	hash, err := signer.OrderHash(signed)
	require.NoError(t, err)
	sig := append(append(hexutil.MustDecode(signed.R), hexutil.MustDecode(signed.S)...), signed.V-27)
	pub, err := crypto.SigToPub(accounts.TextHash(hash), sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), crypto.PubkeyToAddress(*pub))

	cancel, err := signer.SignCancel(hexutil.Encode(hash), 8)
	require.NoError(t, err)
	assert.Equal(t, signer.Address().Hex(), cancel.Address)
	assert.Equal(t, uint64(8), cancel.Nonce)
}

func TestIdexSignerRejectsBadInput(t *testing.T) {
	_, err := NewIdexSigner("not-hex")
	assert.Error(t, err)

	signer, err := NewIdexSigner(testKey)
	require.NoError(t, err)
	_, err = signer.OrderHash(IdexOrder{AmountBuy: "1.5", AmountSell: "1"})
	assert.Error(t, err)
}
