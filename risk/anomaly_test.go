package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/kleros/market-maker/inventory"
)

func decimalZero() decimal.Decimal { return decimal.Zero }

func TestDetectors(t *testing.T) {
	before := inventory.Reserve{Base: d("1000"), Quote: d("10")} // eq = 0.01
	ds := Detectors{InvariantDrift{}, AdverseFill{}, nil}

	maker := inventory.Fill{BaseAmount: d("10"), Price: d("0.0099")}
	after, _ := before.ApplyFill(maker)
	hit, reasons := ds.Check(maker, before, after)
	assert.False(t, hit)
	assert.Empty(t, reasons)

	adverse := inventory.Fill{BaseAmount: d("10"), Price: d("0.0101")}
	after, _ = before.ApplyFill(adverse)
	hit, reasons = ds.Check(adverse, before, after)
	assert.True(t, hit)
	assert.Equal(t, []string{"invariant_drift", "adverse_buy"}, reasons)

	sell := inventory.Fill{BaseAmount: d("-10"), Price: d("0.0098")}
	after, _ = before.ApplyFill(sell)
	_, reasons = ds.Check(sell, before, after)
	assert.Contains(t, reasons, "adverse_sell")
}
