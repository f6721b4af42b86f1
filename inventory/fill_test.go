package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillDeltas(t *testing.T) {
	tests := []struct {
		name                string
		fill                Fill
		wantBase, wantQuote string
	}{
		{
			name:      "buy without fee",
			fill:      Fill{BaseAmount: d("10"), Price: d("0.0099")},
			wantBase:  "10",
			wantQuote: "-0.099",
		},
		{
			name:      "sell with quote fee",
			fill:      Fill{BaseAmount: d("-10"), Price: d("0.0101"), Fee: d("-0.0001"), FeeAsset: FeeQuote},
			wantBase:  "-10",
			wantQuote: "0.1009",
		},
		{
			name:      "buy with base fee",
			fill:      Fill{BaseAmount: d("10"), Price: d("0.0099"), Fee: d("0.02"), FeeAsset: FeeBase},
			wantBase:  "9.98",
			wantQuote: "-0.099",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, q := tt.fill.Deltas()
			assert.True(t, b.Equal(d(tt.wantBase)), "base delta %s", b)
			assert.True(t, q.Equal(d(tt.wantQuote)), "quote delta %s", q)
		})
	}
}

func TestApplyFill(t *testing.T) {
	r := Reserve{Base: d("1000"), Quote: d("10")}

	next, err := r.ApplyFill(Fill{ID: "1", BaseAmount: d("10"), Price: d("0.0099")})
	require.NoError(t, err)
	assert.True(t, next.Base.Equal(d("1010")))
	assert.True(t, next.Quote.Equal(d("9.901")))
	assert.True(t, next.Invariant().GreaterThan(r.Invariant()))
	assert.True(t, r.Base.Equal(d("1000")), "receiver must not change")

	_, err = r.ApplyFill(Fill{ID: "2", BaseAmount: d("-1000"), Price: d("0.01")})
	assert.ErrorIs(t, err, ErrReserveDepleted)

	_, err = r.ApplyFill(Fill{ID: "3", BaseAmount: d("0"), Price: d("0.01")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = r.ApplyFill(Fill{ID: "4", BaseAmount: d("1"), Price: d("0.01"), FeeAsset: "ETH"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFillSide(t *testing.T) {
	assert.Equal(t, "buy", Fill{BaseAmount: d("1")}.Side())
	assert.Equal(t, "sell", Fill{BaseAmount: d("-1")}.Side())
}
