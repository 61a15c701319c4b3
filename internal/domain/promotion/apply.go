package promotion

import (
	"github.com/shopspring/decimal"

	"github.com/retailpoint/promo/internal/domain/cart"
)

// ApplyOutcomes folds granted free quantities into a new cart snapshot.
// The input cart is never mutated, so callers can stack promotions by
// threading the returned snapshot into the next evaluation, or run
// what-if evaluations against the original in parallel.
//
// Each grant folds into the line it was computed from (Outcome.LineIndex),
// so carts carrying the same product on several lines keep their grants
// separate. Units beyond that line's capacity spill into later lines of
// the same product; a line never carries more free units than its total
// quantity. Monetary outcomes leave the snapshot untouched.
func ApplyOutcomes(c cart.Cart, outcomes []Outcome) cart.Cart {
	next := c.Clone()
	for _, o := range outcomes {
		if o.RuleType != RuleBuyXGetY || o.FreeQuantity == 0 {
			continue
		}

		remaining := o.FreeQuantity
		if i := o.LineIndex; i >= 0 && i < len(next.Lines) && next.Lines[i].ProductID == o.ProductID {
			remaining = grantFree(&next.Lines[i], remaining)
		}
		for i := range next.Lines {
			if remaining == 0 {
				break
			}
			if i == o.LineIndex || next.Lines[i].ProductID != o.ProductID {
				continue
			}
			remaining = grantFree(&next.Lines[i], remaining)
		}
	}
	return next
}

// grantFree marks up to n units of the line as free, bounded by the units
// not already free, and returns how many units did not fit.
func grantFree(l *cart.Line, n int) int {
	capacity := l.Quantity - l.FreeQuantity
	if capacity <= 0 {
		return n
	}
	if capacity > n {
		capacity = n
	}
	l.FreeQuantity += capacity
	return n - capacity
}

// Summary aggregates a promotion's outcomes into cart totals.
type Summary struct {
	Outcomes      []Outcome
	TotalDiscount decimal.Decimal
	OriginalTotal decimal.Decimal
	FinalTotal    decimal.Decimal
}

// Summarize evaluates the promotion against the cart and shapes the result
// into totals. The final total is floored at zero even when the discount
// exceeds the original total. An empty outcome list is a valid summary
// with a zero discount.
func Summarize(p *Promotion, c cart.Cart) (Summary, error) {
	outcomes, err := Evaluate(p, c)
	if err != nil {
		return Summary{}, err
	}

	total := decimal.Zero
	for _, o := range outcomes {
		total = total.Add(o.DiscountAmount)
	}

	original := c.Subtotal()
	final := original.Sub(total)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return Summary{
		Outcomes:      outcomes,
		TotalDiscount: total.Round(2),
		OriginalTotal: original.Round(2),
		FinalTotal:    final.Round(2),
	}, nil
}
