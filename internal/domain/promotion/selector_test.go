package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailpoint/promo/internal/domain/cart"
)

type mockRepo struct {
	promotions []Promotion
	byCode     map[string]*Promotion
	err        error
}

func (m *mockRepo) ListByStore(_ context.Context, _ string) ([]Promotion, error) {
	return m.promotions, m.err
}

func (m *mockRepo) FindByCode(_ context.Context, _, code string) (*Promotion, error) {
	if p, ok := m.byCode[code]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Create(_ context.Context, _ *Promotion) error { return nil }

func (m *mockRepo) RecordUsage(_ context.Context, _ string, _ Usage) error { return nil }

func TestSelectorActive(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	window := func(p *Promotion) {
		p.StartDate = now.Add(-time.Hour)
		p.EndDate = now.Add(time.Hour)
	}

	low := Promotion{ID: "low", Active: true, Priority: 1}
	window(&low)
	high := Promotion{ID: "high", Active: true, Priority: 10}
	window(&high)
	inactive := Promotion{ID: "inactive", Priority: 99}
	window(&inactive)
	expired := Promotion{ID: "expired", Active: true, Priority: 99,
		StartDate: now.Add(-48 * time.Hour), EndDate: now.Add(-24 * time.Hour)}
	exhausted := Promotion{ID: "exhausted", Active: true, Priority: 99, MaxUses: 1, Uses: 1}
	window(&exhausted)

	repo := &mockRepo{promotions: []Promotion{low, inactive, expired, exhausted, high}}
	sel := NewSelector(repo, testGate(now))

	got, err := sel.Active(context.Background(), "store-1")
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"high", "low"}, ids, "priority descending, invalid filtered")
}

func TestSelectorActiveStableTies(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mk := func(id string) Promotion {
		return Promotion{
			ID: id, Active: true, Priority: 5,
			StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
		}
	}

	repo := &mockRepo{promotions: []Promotion{mk("a"), mk("b"), mk("c")}}
	sel := NewSelector(repo, testGate(now))

	got, err := sel.Active(context.Background(), "store-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestSelectorApplicable(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	open := Promotion{ID: "open", Active: true,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)}
	bigSpend := Promotion{ID: "big-spend", Active: true,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
		MinOrderAmount: decimal.NewFromInt(500)}
	used := Promotion{ID: "used", Active: true,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
		UsageHistory: []Usage{{UserID: "u1"}}}

	repo := &mockRepo{promotions: []Promotion{open, bigSpend, used}}
	sel := NewSelector(repo, testGate(now))

	c := cart.Cart{Lines: []cart.Line{line("p1", 1, 50)}}
	got, err := sel.Applicable(context.Background(), "store-1", c, "u1")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "open", got[0].ID)
}

func TestSelectorAutoApplicable(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	base := func(id string, typ RuleType) Promotion {
		return Promotion{
			ID: id, Active: true, RuleType: typ, AutoApply: true,
			StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
		}
	}

	bxgy := base("bxgy", RuleBuyXGetY)
	qty := base("qty", RuleQuantityDiscount)
	cartTotal := base("cart-total", RuleCartTotal)
	coded := base("coded", RuleBuyXGetY)
	coded.RequiresCode = true
	manual := base("manual", RuleQuantityDiscount)
	manual.AutoApply = false

	repo := &mockRepo{promotions: []Promotion{bxgy, qty, cartTotal, coded, manual}}
	sel := NewSelector(repo, testGate(now))

	got, err := sel.AutoApplicable(context.Background(), "store-1")
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.ID
	}
	assert.ElementsMatch(t, []string{"bxgy", "qty"}, ids,
		"cart-total promotions never auto-apply")
}
