package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLinePaidQuantity(t *testing.T) {
	tests := []struct {
		name string
		line Line
		want int
	}{
		{
			name: "no free units",
			line: Line{Quantity: 5},
			want: 5,
		},
		{
			name: "some units free",
			line: Line{Quantity: 5, FreeQuantity: 2},
			want: 3,
		},
		{
			name: "all units free",
			line: Line{Quantity: 3, FreeQuantity: 3},
			want: 0,
		},
		{
			name: "free exceeds quantity clamps to zero",
			line: Line{Quantity: 2, FreeQuantity: 5},
			want: 0,
		},
		{
			name: "granted free-item line pays nothing",
			line: Line{Quantity: 4, FreeItem: true},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.line.PaidQuantity())
		})
	}
}

func TestLineChargeableAmount(t *testing.T) {
	l := Line{Quantity: 5, FreeQuantity: 2, UnitPrice: decimal.NewFromFloat(9.99)}
	assert.True(t, decimal.NewFromFloat(29.97).Equal(l.ChargeableAmount()),
		"got %s", l.ChargeableAmount())

	free := Line{Quantity: 2, UnitPrice: decimal.NewFromInt(10), FreeItem: true}
	assert.True(t, free.ChargeableAmount().IsZero())
}

func TestCartSubtotal(t *testing.T) {
	c := Cart{Lines: []Line{
		{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: "p2", Quantity: 3, FreeQuantity: 1, UnitPrice: decimal.NewFromInt(5)},
		{ProductID: "p3", Quantity: 1, UnitPrice: decimal.NewFromInt(7), FreeItem: true},
	}}
	assert.True(t, decimal.NewFromInt(30).Equal(c.Subtotal()), "got %s", c.Subtotal())
}

func TestCartClone(t *testing.T) {
	orig := Cart{Lines: []Line{{ProductID: "p1", Quantity: 2}}}
	clone := orig.Clone()
	clone.Lines[0].FreeQuantity = 2

	assert.Equal(t, 0, orig.Lines[0].FreeQuantity, "clone must not share backing array")
	assert.Equal(t, 2, clone.Lines[0].FreeQuantity)
}
