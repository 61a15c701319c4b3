// Package cart defines the immutable cart snapshot consumed by the
// promotion engine. A snapshot carries resolved product and category
// identifiers; it knows nothing about storage or transport.
package cart

import "github.com/shopspring/decimal"

// Line is a single cart line with its product and category resolved.
//
// FreeQuantity counts units already granted free by a previously applied
// promotion. FreeItem marks lines that exist only because a promotion
// granted them; such lines are never charged.
type Line struct {
	ProductID    string
	CategoryCode string
	Quantity     int
	UnitPrice    decimal.Decimal
	FreeQuantity int
	FreeItem     bool
}

// PaidQuantity returns the number of units on the line the customer still
// pays for. It is zero for granted free-item lines and never negative.
func (l Line) PaidQuantity() int {
	if l.FreeItem {
		return 0
	}
	paid := l.Quantity - l.FreeQuantity
	if paid < 0 {
		return 0
	}
	return paid
}

// ChargeableAmount returns unit price times paid quantity for the line.
func (l Line) ChargeableAmount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.PaidQuantity())))
}

// Cart is an ordered snapshot of cart lines.
type Cart struct {
	Lines []Line
}

// Subtotal returns the chargeable total over all lines.
func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.ChargeableAmount())
	}
	return sum
}

// Clone returns a deep copy of the cart. Engine transformations operate on
// clones so the caller's snapshot is never mutated.
func (c Cart) Clone() Cart {
	lines := make([]Line, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}
