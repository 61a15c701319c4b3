package promotion

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ValidateRule checks that a rule payload matches its declared type's
// required shape. It runs at authoring time; evaluation assumes validated
// rules and grants nothing rather than erroring on malformed fields.
func ValidateRule(typ RuleType, rule Rule) error {
	if rule == nil {
		return errors.Wrap(ErrInvalidRule, "missing rule payload")
	}
	if rule.Type() != typ {
		return errors.Wrapf(ErrInvalidRule, "rule payload is %q, promotion declares %q", rule.Type(), typ)
	}

	switch r := rule.(type) {
	case BuyXGetYRule:
		if r.BuyQuantity <= 0 {
			return errors.Wrap(ErrInvalidRule, "buy quantity must be positive")
		}
		if r.GetQuantity <= 0 {
			return errors.Wrap(ErrInvalidRule, "get quantity must be positive")
		}
		if !r.SameItem && r.FreeItemID == "" {
			return errors.Wrap(ErrInvalidRule, "cross-item grant requires a free item")
		}
	case QuantityDiscountRule:
		if r.MinQuantity <= 0 {
			return errors.Wrap(ErrInvalidRule, "minimum quantity must be positive")
		}
		if err := validateDiscountPair(r.DiscountAmount, r.DiscountPercent); err != nil {
			return err
		}
	case CartTotalRule:
		if r.MinAmount.IsNegative() {
			return errors.Wrap(ErrInvalidRule, "minimum amount must not be negative")
		}
		if !r.DiscountAmount.IsPositive() && !r.DiscountPercent.IsPositive() &&
			r.FreeItemID == "" && !r.FreeShipping {
			return errors.Wrap(ErrInvalidRule, "cart total rule grants nothing")
		}
		if err := validatePercent(r.DiscountPercent); err != nil {
			return err
		}
		if r.DiscountAmount.IsNegative() {
			return errors.Wrap(ErrInvalidRule, "discount amount must not be negative")
		}
	default:
		return errors.Wrapf(ErrInvalidRule, "unknown rule type %q", typ)
	}
	return nil
}

// validateDiscountPair requires exactly the fixed-or-percentage shape: at
// least one positive, percentage within [0,100], neither negative.
func validateDiscountPair(amount, percent decimal.Decimal) error {
	if !amount.IsPositive() && !percent.IsPositive() {
		return errors.Wrap(ErrInvalidRule, "either discount amount or percentage must be positive")
	}
	if amount.IsNegative() {
		return errors.Wrap(ErrInvalidRule, "discount amount must not be negative")
	}
	return validatePercent(percent)
}

func validatePercent(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return errors.Wrap(ErrInvalidRule, "discount percentage must be between 0 and 100")
	}
	return nil
}
