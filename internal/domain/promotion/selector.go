package promotion

import (
	"context"
	"sort"

	"github.com/go-faster/errors"

	"github.com/retailpoint/promo/internal/domain/cart"
)

// Selector queries and orders candidate promotions for a store. All
// selections are sorted by priority descending; ties keep their stored
// order (stable sort), which callers must not rely on.
type Selector struct {
	repo Repository
	gate *Gate
}

// NewSelector creates a Selector backed by the given repository and gate.
func NewSelector(repo Repository, gate *Gate) *Selector {
	return &Selector{repo: repo, gate: gate}
}

// Active returns the store's promotions that are active and inside their
// validity window.
func (s *Selector) Active(ctx context.Context, storeID string) ([]Promotion, error) {
	all, err := s.repo.ListByStore(ctx, storeID)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}

	active := make([]Promotion, 0, len(all))
	for _, p := range all {
		if s.gate.IsValid(&p) {
			active = append(active, p)
		}
	}
	sortByPriority(active)
	return active, nil
}

// Applicable returns the store's active promotions that also pass the
// eligibility gate for the given cart and user.
func (s *Selector) Applicable(ctx context.Context, storeID string, c cart.Cart, userID string) ([]Promotion, error) {
	active, err := s.Active(ctx, storeID)
	if err != nil {
		return nil, err
	}

	applicable := make([]Promotion, 0, len(active))
	for _, p := range active {
		if s.gate.CanApply(&p, c, userID) {
			applicable = append(applicable, p)
		}
	}
	return applicable, nil
}

// AutoApplicable returns the store's active promotions that apply without a
// code. Cart-total promotions are excluded: they only activate through
// explicit code redemption, never silently.
func (s *Selector) AutoApplicable(ctx context.Context, storeID string) ([]Promotion, error) {
	active, err := s.Active(ctx, storeID)
	if err != nil {
		return nil, err
	}

	auto := make([]Promotion, 0, len(active))
	for _, p := range active {
		if !p.AutoApply || p.RequiresCode {
			continue
		}
		if p.RuleType != RuleBuyXGetY && p.RuleType != RuleQuantityDiscount {
			continue
		}
		auto = append(auto, p)
	}
	return auto, nil
}

func sortByPriority(ps []Promotion) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Priority > ps[j].Priority
	})
}
