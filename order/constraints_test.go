package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolConstraintsValidate(t *testing.T) {
	c := SymbolConstraints{
		TickSize:    d("0.00000001"),
		StepSize:    d("0.001"),
		MinQty:      d("1"),
		MaxQty:      d("100000"),
		MinNotional: d("0.05"),
	}
	tests := []struct {
		name       string
		price, qty string
		ok         bool
	}{
		{"valid", "0.00004", "3000", true},
		{"tick misaligned", "0.000040005", "3000", false},
		{"step misaligned", "0.00004", "3000.0005", false},
		{"below min qty", "0.01", "0.5", false},
		{"above max qty", "0.00004", "100001", false},
		{"below min notional", "0.00004", "1000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(d(tt.price), d(tt.qty))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConstraint)
			}
		})
	}
	assert.NoError(t, SymbolConstraints{}.Validate(d("0.123456789"), d("1.23456789")))
}
