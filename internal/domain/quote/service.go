// Package quote orchestrates the promotion engine against stored
// promotions: resolving candidates for a store, stacking auto-applied
// promotions over a cart, and redeeming promotion codes.
package quote

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/retailpoint/promo/internal/domain/cart"
	"github.com/retailpoint/promo/internal/domain/promotion"
)

// Applied describes one promotion's contribution to a quote.
type Applied struct {
	PromotionID string
	Name        string
	Code        string
	Outcomes    []promotion.Outcome
	Discount    decimal.Decimal
}

// Quote is the priced result of running promotions over a cart snapshot.
// Cart is the final snapshot with granted free quantities folded in.
type Quote struct {
	Cart          cart.Cart
	Applied       []Applied
	OriginalTotal decimal.Decimal
	TotalDiscount decimal.Decimal
	FinalTotal    decimal.Decimal

	// Advisory grants from cart-total rules, realized by the caller.
	FreeShipping bool
	FreeItemID   string
}

// Service runs the promotion engine against the promotion store.
type Service struct {
	promotions promotion.Repository
	gate       *promotion.Gate
	selector   *promotion.Selector
	now        func() time.Time
}

// NewService creates a quote Service backed by the given promotion store.
func NewService(promotions promotion.Repository) *Service {
	gate := promotion.NewGate()
	return &Service{
		promotions: promotions,
		gate:       gate,
		selector:   promotion.NewSelector(promotions, gate),
		now:        time.Now,
	}
}

// ResolveApplicable returns the store's promotions that pass the
// eligibility gate for the cart/user pair, priority-ordered.
func (s *Service) ResolveApplicable(ctx context.Context, storeID string, c cart.Cart, userID string) ([]promotion.Promotion, error) {
	return s.selector.Applicable(ctx, storeID, c, userID)
}

// ActivePromotions returns the store's currently active promotions.
func (s *Service) ActivePromotions(ctx context.Context, storeID string) ([]promotion.Promotion, error) {
	return s.selector.Active(ctx, storeID)
}

// QuoteCart applies the store's auto-applicable promotions to the cart in
// priority order. Stacking is strictly sequential: each promotion's free
// grants are folded into the snapshot before the next promotion evaluates,
// so later rules compute against the remaining paid quantity and units
// made free are never discounted twice.
func (s *Service) QuoteCart(ctx context.Context, storeID string, c cart.Cart, userID string) (*Quote, error) {
	candidates, err := s.selector.AutoApplicable(ctx, storeID)
	if err != nil {
		return nil, errors.Wrap(err, "select auto-applicable promotions")
	}

	q := &Quote{
		Cart:          c.Clone(),
		OriginalTotal: c.Subtotal().Round(2),
		TotalDiscount: decimal.Zero,
	}

	for i := range candidates {
		p := &candidates[i]
		if !s.gate.CanApply(p, q.Cart, userID) {
			continue
		}

		outcomes, err := promotion.Evaluate(p, q.Cart)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluate promotion %q", p.ID)
		}
		if len(outcomes) == 0 {
			continue
		}

		discount := decimal.Zero
		for _, o := range outcomes {
			discount = discount.Add(o.DiscountAmount)
		}

		q.Cart = promotion.ApplyOutcomes(q.Cart, outcomes)
		q.TotalDiscount = q.TotalDiscount.Add(discount)
		q.Applied = append(q.Applied, Applied{
			PromotionID: p.ID,
			Name:        p.Name,
			Outcomes:    outcomes,
			Discount:    discount.Round(2),
		})
	}

	s.finalize(q)
	return q, nil
}

// RedeemCode resolves a promotion code for the store, gates it against the
// cart/user pair, and prices its outcomes. A missing code surfaces as
// promotion.ErrNotFound and a gated-out promotion as
// promotion.ErrNotEligible; an eligible code granting nothing is a valid
// zero-discount quote. A granting redemption is recorded in the
// promotion's usage history.
func (s *Service) RedeemCode(ctx context.Context, storeID, code string, c cart.Cart, userID string) (*Quote, error) {
	p, err := s.promotions.FindByCode(ctx, storeID, code)
	if err != nil {
		if errors.Is(err, promotion.ErrNotFound) {
			return nil, promotion.ErrNotFound
		}
		return nil, errors.Wrap(err, "find promotion by code")
	}

	if !s.gate.CanApply(p, c, userID) {
		return nil, promotion.ErrNotEligible
	}

	summary, err := promotion.Summarize(p, c)
	if err != nil {
		return nil, errors.Wrapf(err, "evaluate promotion %q", p.ID)
	}

	q := &Quote{
		Cart:          promotion.ApplyOutcomes(c, summary.Outcomes),
		OriginalTotal: summary.OriginalTotal,
		TotalDiscount: summary.TotalDiscount,
	}
	if len(summary.Outcomes) > 0 {
		q.Applied = []Applied{{
			PromotionID: p.ID,
			Name:        p.Name,
			Code:        code,
			Outcomes:    summary.Outcomes,
			Discount:    summary.TotalDiscount,
		}}

		if err := s.promotions.RecordUsage(ctx, p.ID, promotion.Usage{
			UserID:         userID,
			Code:           code,
			UsedAt:         s.now(),
			DiscountAmount: summary.TotalDiscount,
		}); err != nil {
			if errors.Is(err, promotion.ErrNotEligible) {
				return nil, promotion.ErrNotEligible
			}
			return nil, errors.Wrap(err, "record promotion usage")
		}
	}

	s.finalize(q)
	return q, nil
}

// finalize prices the quote from its folded snapshot: the chargeable total
// after free grants, minus monetary discounts, floored at zero. Advisory
// cart-total grants are lifted onto the quote.
func (s *Service) finalize(q *Quote) {
	final := q.Cart.Subtotal().Sub(q.TotalDiscount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	q.FinalTotal = final.Round(2)
	q.TotalDiscount = q.TotalDiscount.Round(2)

	for _, a := range q.Applied {
		for _, o := range a.Outcomes {
			if o.FreeShipping {
				q.FreeShipping = true
			}
			if o.FreeItemID != "" {
				q.FreeItemID = o.FreeItemID
			}
		}
	}
}
