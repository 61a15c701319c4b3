package quote

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpoint/promo/internal/domain/cart"
	"github.com/retailpoint/promo/internal/domain/promotion"
)

type mockPromotionRepo struct {
	promotions []promotion.Promotion
	byCode     map[string]*promotion.Promotion

	recordedID    string
	recordedUsage promotion.Usage
	recordErr     error
}

func (m *mockPromotionRepo) ListByStore(_ context.Context, _ string) ([]promotion.Promotion, error) {
	return m.promotions, nil
}

func (m *mockPromotionRepo) FindByCode(_ context.Context, _, code string) (*promotion.Promotion, error) {
	if p, ok := m.byCode[code]; ok {
		return p, nil
	}
	return nil, promotion.ErrNotFound
}

func (m *mockPromotionRepo) Create(_ context.Context, _ *promotion.Promotion) error { return nil }

func (m *mockPromotionRepo) RecordUsage(_ context.Context, id string, u promotion.Usage) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.recordedID = id
	m.recordedUsage = u
	return nil
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(repo *mockPromotionRepo) *Service {
	s := NewService(repo)
	s.now = func() time.Time { return fixedNow }
	gate := promotion.NewGateAt(func() time.Time { return fixedNow })
	s.gate = gate
	s.selector = promotion.NewSelector(repo, gate)
	return s
}

func activePromo(id string, priority int, typ promotion.RuleType, rule promotion.Rule) promotion.Promotion {
	return promotion.Promotion{
		ID:        id,
		Name:      id,
		Active:    true,
		AutoApply: true,
		Priority:  priority,
		RuleType:  typ,
		Rule:      rule,
		StartDate: fixedNow.Add(-24 * time.Hour),
		EndDate:   fixedNow.Add(24 * time.Hour),
	}
}

func TestQuoteCartSequentialStacking(t *testing.T) {
	// Higher priority promotion grants free units first; the quantity
	// discount then computes against the remaining paid units only.
	bxgy := activePromo("bxgy", 10, promotion.RuleBuyXGetY,
		promotion.BuyXGetYRule{BuyQuantity: 2, GetQuantity: 1, SameItem: true})
	qty := activePromo("qty", 5, promotion.RuleQuantityDiscount,
		promotion.QuantityDiscountRule{MinQuantity: 1, DiscountPercent: decimal.NewFromInt(10)})

	repo := &mockPromotionRepo{promotions: []promotion.Promotion{qty, bxgy}}
	svc := newTestService(repo)

	c := cart.Cart{Lines: []cart.Line{
		{ProductID: "p1", Quantity: 6, UnitPrice: decimal.NewFromInt(10)},
	}}

	q, err := svc.QuoteCart(context.Background(), "store-1", c, "u1")
	require.NoError(t, err)

	// 6 paid -> 3 sets -> 3 free units; 3 paid remain.
	require.Len(t, q.Applied, 2)
	assert.Equal(t, "bxgy", q.Applied[0].PromotionID)
	assert.Equal(t, 3, q.Cart.Lines[0].FreeQuantity)

	// 10% of the remaining 30 chargeable, not of the original 60.
	assert.Equal(t, "qty", q.Applied[1].PromotionID)
	assert.True(t, decimal.NewFromInt(3).Equal(q.Applied[1].Discount),
		"got %s", q.Applied[1].Discount)

	assert.True(t, decimal.NewFromInt(60).Equal(q.OriginalTotal))
	assert.True(t, decimal.NewFromInt(3).Equal(q.TotalDiscount))
	// 30 chargeable after grants, minus 3 discount.
	assert.True(t, decimal.NewFromInt(27).Equal(q.FinalTotal), "got %s", q.FinalTotal)

	// Caller's snapshot untouched.
	assert.Equal(t, 0, c.Lines[0].FreeQuantity)
}

func TestQuoteCartSkipsIneligible(t *testing.T) {
	gated := activePromo("gated", 10, promotion.RuleQuantityDiscount,
		promotion.QuantityDiscountRule{MinQuantity: 1, DiscountAmount: decimal.NewFromInt(5)})
	gated.MinOrderAmount = decimal.NewFromInt(1000)

	open := activePromo("open", 5, promotion.RuleQuantityDiscount,
		promotion.QuantityDiscountRule{MinQuantity: 1, DiscountAmount: decimal.NewFromInt(2)})

	repo := &mockPromotionRepo{promotions: []promotion.Promotion{gated, open}}
	svc := newTestService(repo)

	c := cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(20)}}}
	q, err := svc.QuoteCart(context.Background(), "store-1", c, "u1")
	require.NoError(t, err)

	require.Len(t, q.Applied, 1)
	assert.Equal(t, "open", q.Applied[0].PromotionID)
}

func TestQuoteCartExcludesCartTotalPromotions(t *testing.T) {
	ct := activePromo("cart-total", 10, promotion.RuleCartTotal,
		promotion.CartTotalRule{DiscountAmount: decimal.NewFromInt(5)})

	repo := &mockPromotionRepo{promotions: []promotion.Promotion{ct}}
	svc := newTestService(repo)

	c := cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(20)}}}
	q, err := svc.QuoteCart(context.Background(), "store-1", c, "u1")
	require.NoError(t, err)

	assert.Empty(t, q.Applied)
	assert.True(t, q.TotalDiscount.IsZero())
	assert.True(t, decimal.NewFromInt(20).Equal(q.FinalTotal))
}

func TestRedeemCodeNotFound(t *testing.T) {
	repo := &mockPromotionRepo{byCode: map[string]*promotion.Promotion{}}
	svc := newTestService(repo)

	_, err := svc.RedeemCode(context.Background(), "store-1", "BOGUS", cart.Cart{}, "u1")
	require.ErrorIs(t, err, promotion.ErrNotFound)
}

func TestRedeemCodeNotEligible(t *testing.T) {
	expired := activePromo("expired", 0, promotion.RuleCartTotal,
		promotion.CartTotalRule{DiscountAmount: decimal.NewFromInt(5)})
	expired.EndDate = fixedNow.Add(-time.Hour)

	usedUp := activePromo("used-up", 0, promotion.RuleCartTotal,
		promotion.CartTotalRule{DiscountAmount: decimal.NewFromInt(5)})
	usedUp.UsageHistory = []promotion.Usage{{UserID: "u1"}}

	repo := &mockPromotionRepo{byCode: map[string]*promotion.Promotion{
		"EXPIRED": &expired,
		"USEDUP":  &usedUp,
	}}
	svc := newTestService(repo)

	c := cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(20)}}}

	_, err := svc.RedeemCode(context.Background(), "store-1", "EXPIRED", c, "u1")
	require.ErrorIs(t, err, promotion.ErrNotEligible)

	_, err = svc.RedeemCode(context.Background(), "store-1", "USEDUP", c, "u1")
	require.ErrorIs(t, err, promotion.ErrNotEligible,
		"per-user cap rejects regardless of cart contents")
}

func TestRedeemCodeSuccessRecordsUsage(t *testing.T) {
	p := activePromo("ct", 0, promotion.RuleCartTotal,
		promotion.CartTotalRule{
			MinAmount:      decimal.NewFromInt(10),
			DiscountAmount: decimal.NewFromInt(5),
			FreeShipping:   true,
		})

	repo := &mockPromotionRepo{byCode: map[string]*promotion.Promotion{"SAVE5": &p}}
	svc := newTestService(repo)

	c := cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(20)}}}
	q, err := svc.RedeemCode(context.Background(), "store-1", "SAVE5", c, "u1")
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(5).Equal(q.TotalDiscount))
	assert.True(t, decimal.NewFromInt(15).Equal(q.FinalTotal))
	assert.True(t, q.FreeShipping)

	assert.Equal(t, "ct", repo.recordedID)
	assert.Equal(t, "u1", repo.recordedUsage.UserID)
	assert.Equal(t, "SAVE5", repo.recordedUsage.Code)
	assert.Equal(t, fixedNow, repo.recordedUsage.UsedAt)
}

func TestRedeemCodeConsumedByAnotherUser(t *testing.T) {
	// A bulk code consumed between lookup and recording surfaces as
	// not-eligible, not as an internal error.
	p := activePromo("ct", 0, promotion.RuleCartTotal,
		promotion.CartTotalRule{
			MinAmount:      decimal.NewFromInt(10),
			DiscountAmount: decimal.NewFromInt(5),
		})

	repo := &mockPromotionRepo{
		byCode:    map[string]*promotion.Promotion{"BULK001": &p},
		recordErr: errors.Wrap(promotion.ErrNotEligible, `code "BULK001" already used`),
	}
	svc := newTestService(repo)

	c := cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(20)}}}
	_, err := svc.RedeemCode(context.Background(), "store-1", "BULK001", c, "u2")
	require.ErrorIs(t, err, promotion.ErrNotEligible)
}

func TestRedeemCodeZeroOutcomeIsNotAnError(t *testing.T) {
	p := activePromo("ct", 0, promotion.RuleCartTotal,
		promotion.CartTotalRule{
			MinAmount:      decimal.NewFromInt(50),
			DiscountAmount: decimal.NewFromInt(5),
		})

	repo := &mockPromotionRepo{byCode: map[string]*promotion.Promotion{"SAVE5": &p}}
	svc := newTestService(repo)

	c := cart.Cart{Lines: []cart.Line{{ProductID: "p1", Quantity: 4, UnitPrice: decimal.NewFromInt(10)}}}
	q, err := svc.RedeemCode(context.Background(), "store-1", "SAVE5", c, "u1")
	require.NoError(t, err)

	assert.Empty(t, q.Applied)
	assert.True(t, q.TotalDiscount.IsZero())
	assert.Empty(t, repo.recordedID, "no usage recorded for a granting-nothing redemption")
}
