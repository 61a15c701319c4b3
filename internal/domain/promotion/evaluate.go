package promotion

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/retailpoint/promo/internal/domain/cart"
)

var hundred = decimal.NewFromInt(100)

// Outcome is a single discount grant computed for a promotion against a
// cart. Buy-X-get-Y outcomes carry free units for a specific product and a
// zero monetary amount; the other rule types carry a monetary amount only.
type Outcome struct {
	PromotionID string
	RuleType    RuleType

	// ProductID, LineIndex and the quantities are set for buy-X-get-Y
	// grants. LineIndex is the cart line the grant was computed from, so
	// carts holding the same product on several lines fold each grant back
	// into its own line.
	ProductID        string
	LineIndex        int
	OriginalQuantity int
	FreeQuantity     int

	DiscountAmount decimal.Decimal

	// CartTotal is the applicable subtotal a cart-total rule was measured
	// against. FreeItemID and FreeShipping are advisory for the caller.
	CartTotal    decimal.Decimal
	FreeItemID   string
	FreeShipping bool
}

// Evaluate computes the discount outcomes the promotion grants for the
// cart. An eligible promotion yielding nothing returns an empty slice, not
// an error. Evaluation assumes the rule passed authoring validation and
// silently grants nothing when thresholds or fields are non-positive.
func Evaluate(p *Promotion, c cart.Cart) ([]Outcome, error) {
	lines := applicableLines(p, c)

	switch rule := p.Rule.(type) {
	case BuyXGetYRule:
		return evaluateBuyXGetY(p, rule, lines), nil
	case QuantityDiscountRule:
		return evaluateQuantityDiscount(p, rule, lines), nil
	case CartTotalRule:
		return evaluateCartTotal(p, rule, lines), nil
	default:
		return nil, errors.Errorf("unsupported rule type: %q", p.RuleType)
	}
}

// scopedLine is a cart line paired with its index in the original cart.
type scopedLine struct {
	cart.Line
	index int
}

// applicableLines filters the cart to lines in the promotion's scope that
// still carry paid units, keeping each line's original index.
func applicableLines(p *Promotion, c cart.Cart) []scopedLine {
	lines := make([]scopedLine, 0, len(c.Lines))
	for i, l := range c.Lines {
		if l.PaidQuantity() == 0 {
			continue
		}
		if !p.AppliesTo(l.ProductID, l.CategoryCode) {
			continue
		}
		lines = append(lines, scopedLine{Line: l, index: i})
	}
	return lines
}

// evaluateBuyXGetY grants free units per line: floor(paid/buy) * get.
// The grant changes what is free, not the price, so the monetary amount is
// always zero and aggregation must fold FreeQuantity back into the line.
func evaluateBuyXGetY(p *Promotion, rule BuyXGetYRule, lines []scopedLine) []Outcome {
	if rule.BuyQuantity <= 0 || rule.GetQuantity <= 0 {
		return nil
	}

	var outcomes []Outcome
	for _, l := range lines {
		// A cross-item grant only triggers on lines of the granted product.
		if !rule.SameItem && rule.FreeItemID != "" && l.ProductID != rule.FreeItemID {
			continue
		}

		sets := l.PaidQuantity() / rule.BuyQuantity
		free := sets * rule.GetQuantity
		if free == 0 {
			continue
		}

		outcomes = append(outcomes, Outcome{
			PromotionID:      p.ID,
			RuleType:         RuleBuyXGetY,
			ProductID:        l.ProductID,
			LineIndex:        l.index,
			OriginalQuantity: l.Quantity,
			FreeQuantity:     free,
			DiscountAmount:   decimal.Zero,
		})
	}
	return outcomes
}

// evaluateQuantityDiscount emits one aggregate outcome when the applicable
// lines' combined paid quantity reaches the rule's minimum.
func evaluateQuantityDiscount(p *Promotion, rule QuantityDiscountRule, lines []scopedLine) []Outcome {
	if rule.MinQuantity <= 0 {
		return nil
	}

	totalPaid := 0
	subtotal := decimal.Zero
	for _, l := range lines {
		totalPaid += l.PaidQuantity()
		subtotal = subtotal.Add(l.ChargeableAmount())
	}
	if totalPaid < rule.MinQuantity {
		return nil
	}

	amount := discountFor(rule.DiscountAmount, rule.DiscountPercent, subtotal)
	if !amount.IsPositive() {
		return nil
	}

	return []Outcome{{
		PromotionID:    p.ID,
		RuleType:       RuleQuantityDiscount,
		DiscountAmount: amount,
	}}
}

// evaluateCartTotal emits one outcome when the applicable subtotal reaches
// the rule's minimum amount.
func evaluateCartTotal(p *Promotion, rule CartTotalRule, lines []scopedLine) []Outcome {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.ChargeableAmount())
	}
	if subtotal.LessThan(rule.MinAmount) {
		return nil
	}

	amount := discountFor(rule.DiscountAmount, rule.DiscountPercent, subtotal)
	if !amount.IsPositive() && rule.FreeItemID == "" && !rule.FreeShipping {
		return nil
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return []Outcome{{
		PromotionID:    p.ID,
		RuleType:       RuleCartTotal,
		DiscountAmount: amount,
		CartTotal:      subtotal,
		FreeItemID:     rule.FreeItemID,
		FreeShipping:   rule.FreeShipping,
	}}
}

// discountFor resolves the fixed-or-percentage pair: a positive fixed
// amount wins, otherwise a positive percentage of the base applies.
func discountFor(fixed, percent, base decimal.Decimal) decimal.Decimal {
	if fixed.IsPositive() {
		return fixed.Round(2)
	}
	if percent.IsPositive() {
		return base.Mul(percent).Div(hundred).Round(2)
	}
	return decimal.Zero
}
