// Package promotion implements the promotion rule engine: deciding which
// promotions apply to a cart, how much discount (or how many free units)
// each grants, and how overlapping promotions resolve deterministically.
//
// The package is pure computation. All inputs (promotion, cart snapshot,
// user identity, time) are supplied at call time; nothing here touches
// storage or transport, and independent evaluations are safe to run
// concurrently.
package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// RuleType tags the discount behaviour of a promotion. The set is closed:
// each value pairs with exactly one concrete Rule payload type.
type RuleType string

const (
	// RuleBuyXGetY grants free units after a bought-quantity threshold.
	RuleBuyXGetY RuleType = "buy_x_get_y"
	// RuleQuantityDiscount discounts the applicable lines once their
	// combined paid quantity reaches a minimum.
	RuleQuantityDiscount RuleType = "quantity_discount"
	// RuleCartTotal discounts the applicable subtotal once it reaches a
	// minimum amount.
	RuleCartTotal RuleType = "cart_total"
)

var (
	// ErrNotFound is returned when a promotion id or code does not resolve.
	ErrNotFound = errors.New("promotion not found")
	// ErrNotEligible is returned when the eligibility gate rejects a
	// promotion for a cart/user pair. It is an expected business outcome.
	ErrNotEligible = errors.New("promotion not eligible")
	// ErrInvalidRule is returned at authoring time when a rule payload does
	// not match its declared type's required shape.
	ErrInvalidRule = errors.New("invalid promotion rule")
)

// Rule is the sealed union of promotion rule payloads. Evaluate dispatches
// on the concrete type, so adding a rule type is a compile-time-checked
// change rather than a string lookup.
type Rule interface {
	Type() RuleType
}

// BuyXGetYRule grants GetQuantity free units for every BuyQuantity paid
// units on an applicable line. SameItem grants units of the bought product;
// otherwise FreeItemID names the product granted free.
type BuyXGetYRule struct {
	BuyQuantity int
	GetQuantity int
	SameItem    bool
	FreeItemID  string
}

func (BuyXGetYRule) Type() RuleType { return RuleBuyXGetY }

// QuantityDiscountRule discounts the applicable lines once their combined
// paid quantity reaches MinQuantity. A positive DiscountAmount takes
// precedence over DiscountPercent.
type QuantityDiscountRule struct {
	MinQuantity     int
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
}

func (QuantityDiscountRule) Type() RuleType { return RuleQuantityDiscount }

// CartTotalRule discounts the applicable subtotal once it reaches
// MinAmount. A positive DiscountAmount takes precedence over
// DiscountPercent. FreeItemID and FreeShipping are advisory grants the
// caller realizes outside the engine.
type CartTotalRule struct {
	MinAmount       decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	FreeItemID      string
	FreeShipping    bool
}

func (CartTotalRule) Type() RuleType { return RuleCartTotal }

// CategoryRef is a category reference on a promotion's applicability lists.
// Matching is by Code; a ref whose code was never resolved matches nothing.
type CategoryRef struct {
	ID   string
	Code string
}

// Usage records a single redemption of a promotion. Code is the code the
// redemption came in through; empty for auto-applied promotions. A
// bulk-issued code is consumed when its usage is recorded.
type Usage struct {
	UserID         string
	Code           string
	OrderID        string
	UsedAt         time.Time
	DiscountAmount decimal.Decimal
}

// Promotion is an authored promotional rule with its scope, validity and
// usage limits. The engine treats it as immutable input; usage counters are
// owned by the storage collaborator and only read here.
type Promotion struct {
	ID          string
	StoreID     string
	Name        string
	Description string
	Code        string

	RuleType RuleType
	Rule     Rule

	ApplicableProducts   []string
	ApplicableCategories []CategoryRef
	ExcludedProducts     []string
	ExcludedCategories   []CategoryRef

	StartDate time.Time
	EndDate   time.Time
	Active    bool

	// MaxUses caps total redemptions; zero means unlimited.
	MaxUses int
	Uses    int
	// MaxUsesPerUser caps redemptions per user; defaults to one.
	MaxUsesPerUser int

	// Priority orders evaluation; higher runs first.
	Priority     int
	AutoApply    bool
	RequiresCode bool

	MinOrderAmount decimal.Decimal

	UsageHistory []Usage
}

// Repository provides lookup and mutation of stored promotions.
type Repository interface {
	// ListByStore returns all promotions authored for a store.
	ListByStore(ctx context.Context, storeID string) ([]Promotion, error)
	// FindByCode resolves a store's promotion by redemption code.
	// Returns ErrNotFound when no promotion carries the code.
	FindByCode(ctx context.Context, storeID, code string) (*Promotion, error)
	// Create persists a newly authored promotion.
	Create(ctx context.Context, p *Promotion) error
	// RecordUsage appends a usage record and bumps the usage counter.
	RecordUsage(ctx context.Context, promotionID string, u Usage) error
}
