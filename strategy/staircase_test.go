package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleros/market-maker/inventory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSimpleStaircase(t *testing.T) {
	got, err := SimpleStaircase(3, d("0.15"), d("0.005"), d("0.00025"), d("0.00004"))
	require.NoError(t, err)

	want := []OrderDelta{
		{Quote: d("0.15"), Base: d("-3740.64837905236907730673")},
		{Quote: d("-0.15"), Base: d("3759.3984962406015037594")},
		{Quote: d("0.15"), Base: d("-3739.71578160059835452506")},
		{Quote: d("-0.15"), Base: d("3760.34093757834043619955")},
		{Quote: d("0.15"), Base: d("-3738.78364905284147557328")},
		{Quote: d("-0.15"), Base: d("3761.28385155466399197593")},
	}
	assertSameLadder(t, want, got)
}

func TestSimpleStaircaseNeverCrossesCenter(t *testing.T) {
	center := d("0.0000371")
	got, err := SimpleStaircase(40, d("0.5"), d("0.02"), d("0.003"), center)
	require.NoError(t, err)
	require.Len(t, got, 80)
	for i, o := range got {
		if i%2 == 0 {
			assert.True(t, o.IsSell())
			assert.True(t, o.Price().GreaterThan(center), "rung %d", i)
		} else {
			assert.False(t, o.IsSell())
			assert.True(t, o.Price().LessThan(center), "rung %d", i)
		}
	}
}

func TestSimpleStaircaseRejects(t *testing.T) {
	tests := []struct {
		name                           string
		steps                          int
		size, spread, interval, center string
		wantErr                        error
	}{
		{"zero steps", 0, "0.15", "0.005", "0.00025", "0.00004", ErrInvalidParams},
		{"size too large", 3, "100", "0.005", "0.00025", "0.00004", ErrInvalidParams},
		{"zero size", 3, "0", "0.005", "0.00025", "0.00004", ErrInvalidParams},
		{"spread too tight", 3, "0.15", "0.001", "0.0001", "0.00004", ErrInvalidParams},
		{"spread too wide", 3, "0.15", "1", "0.1", "0.00004", ErrInvalidParams},
		{"interval equals spread", 3, "0.15", "0.005", "0.005", "0.00004", ErrInvalidParams},
		{"zero interval", 3, "0.15", "0.005", "0", "0.00004", ErrInvalidParams},
		{"zero center", 3, "0.15", "0.005", "0.00025", "0", ErrInvalidParams},
		{"buy side goes negative", 128, "0.15", "0.5", "0.4", "0.00004", ErrCrossedLadder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SimpleStaircase(tt.steps, d(tt.size), d(tt.spread), d(tt.interval), d(tt.center))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReserveStaircase(t *testing.T) {
	reserve := inventory.Reserve{Base: d("3000000"), Quote: d("120")}
	got, err := ReserveStaircase(3, d("0.15"), d("0.005"), d("0.00025"), reserve)
	require.NoError(t, err)
	want, err := SimpleStaircase(3, d("0.15"), d("0.005"), d("0.00025"), d("0.00004"))
	require.NoError(t, err)
	assertSameLadder(t, want, got)

	_, err = ReserveStaircase(5, d("0.15"), d("0.5"), d("0.2"), reserve)
	assert.ErrorIs(t, err, ErrInvalidParams, "steps × interval >= 1")

	_, err = ReserveStaircase(3, d("0.15"), d("0.005"), d("0.00025"), inventory.Reserve{})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestPriceStepStaircase(t *testing.T) {
	got, err := PriceStepStaircase(2, d("10000"), d("0.01"), d("0.00004"))
	require.NoError(t, err)
	require.Len(t, got, 4)

	prices := []string{"0.0000404", "0.0000396", "0.0000408", "0.0000392"}
	for i, p := range prices {
		assert.True(t, got[i].Price().Equal(d(p)), "rung %d price %s", i, got[i].Price())
		assert.True(t, got[i].Base.Abs().Equal(d("10000")))
	}
	assert.True(t, got[0].IsSell())
	assert.False(t, got[1].IsSell())

	_, err = PriceStepStaircase(100, d("10000"), d("0.01"), d("0.00004"))
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestOrderDeltaAccessors(t *testing.T) {
	o := OrderDelta{Base: d("-2000"), Quote: d("0.1")}
	assert.Equal(t, "sell", o.Side())
	assert.True(t, o.Price().Equal(d("0.00005")))
	assert.True(t, OrderDelta{}.Price().IsZero())
}

func TestStepCap(t *testing.T) {
	ladder, err := SimpleStaircase(200, d("0.1"), d("0.01"), d("0.0001"), d("0.00004"))
	require.NoError(t, err, "default limits do not cap the number of steps")
	assert.Len(t, ladder, 400)

	curve, err := BondingCurveStaircase(200, d("0.1"), inventory.Reserve{Base: d("3000000"), Quote: d("120")})
	require.NoError(t, err)
	assert.Len(t, curve, 400)

	capped := DefaultLimits
	capped.MaxSteps = 128
	_, err = capped.SimpleStaircase(200, d("0.1"), d("0.01"), d("0.0001"), d("0.00004"))
	assert.ErrorIs(t, err, ErrInvalidParams)
	_, err = capped.SimpleStaircase(128, d("0.1"), d("0.01"), d("0.0001"), d("0.00004"))
	assert.NoError(t, err)
}

func TestLimitsValidate(t *testing.T) {
	assert.NoError(t, DefaultLimits.Validate())
	bad := DefaultLimits
	bad.MaxSpread = d("1.5")
	assert.ErrorIs(t, bad.Validate(), ErrInvalidParams)
	bad = DefaultLimits
	bad.MaxSizePerStep = decimal.Zero
	assert.ErrorIs(t, bad.Validate(), ErrInvalidParams)
}
