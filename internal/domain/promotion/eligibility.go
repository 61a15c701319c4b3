package promotion

import (
	"time"

	"github.com/retailpoint/promo/internal/domain/cart"
)

// Gate decides whether a promotion as a whole may be applied to a cart/user
// pair. Checks run fail-fast in a fixed order: validity window and global
// usage cap, then the per-user cap, then the minimum order amount.
type Gate struct {
	now func() time.Time
}

// NewGate returns a Gate using wall-clock time.
func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// NewGateAt returns a Gate that evaluates validity windows against the
// given clock. Used by tests and what-if evaluation.
func NewGateAt(now func() time.Time) *Gate {
	return &Gate{now: now}
}

// CanApply reports whether the promotion may be applied to the cart for the
// given user. Rejection is an expected business outcome, not an error.
func (g *Gate) CanApply(p *Promotion, c cart.Cart, userID string) bool {
	if !g.IsValid(p) {
		return false
	}

	uses := 0
	for _, u := range p.UsageHistory {
		if u.UserID == userID {
			uses++
		}
	}
	if uses >= p.maxUsesPerUser() {
		return false
	}

	// The minimum order gate is checked against the whole cart's
	// chargeable total, not the promotion's applicable subset. Per-rule
	// thresholds (quantity, cart total) use the applicable subset instead.
	return c.Subtotal().GreaterThanOrEqual(p.MinOrderAmount)
}

// IsValid reports whether the promotion is active, inside its validity
// window, and under its global usage cap.
func (g *Gate) IsValid(p *Promotion) bool {
	if !p.Active {
		return false
	}
	now := g.now()
	if now.Before(p.StartDate) || now.After(p.EndDate) {
		return false
	}
	return p.MaxUses == 0 || p.Uses < p.MaxUses
}

// maxUsesPerUser applies the default per-user cap of one.
func (p *Promotion) maxUsesPerUser() int {
	if p.MaxUsesPerUser <= 0 {
		return 1
	}
	return p.MaxUsesPerUser
}
