package repository

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/retailpoint/promo/internal/domain/promotion"
)

// ruleJSON is the storage shape of a rule payload. One JSONB column holds
// whichever fields the rule type uses; decoding is keyed by rule_type.
type ruleJSON struct {
	BuyQuantity int    `json:"buy_quantity,omitempty"`
	GetQuantity int    `json:"get_quantity,omitempty"`
	SameItem    bool   `json:"same_item,omitempty"`
	FreeItemID  string `json:"free_item_id,omitempty"`

	MinQuantity     int             `json:"min_quantity,omitempty"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`

	MinAmount    decimal.Decimal `json:"min_amount"`
	FreeShipping bool            `json:"free_shipping,omitempty"`
}

func encodeRule(rule promotion.Rule) ([]byte, error) {
	var dto ruleJSON
	switch r := rule.(type) {
	case promotion.BuyXGetYRule:
		dto = ruleJSON{
			BuyQuantity: r.BuyQuantity,
			GetQuantity: r.GetQuantity,
			SameItem:    r.SameItem,
			FreeItemID:  r.FreeItemID,
		}
	case promotion.QuantityDiscountRule:
		dto = ruleJSON{
			MinQuantity:     r.MinQuantity,
			DiscountPercent: r.DiscountPercent,
			DiscountAmount:  r.DiscountAmount,
		}
	case promotion.CartTotalRule:
		dto = ruleJSON{
			MinAmount:       r.MinAmount,
			DiscountPercent: r.DiscountPercent,
			DiscountAmount:  r.DiscountAmount,
			FreeItemID:      r.FreeItemID,
			FreeShipping:    r.FreeShipping,
		}
	default:
		return nil, errors.Errorf("unsupported rule type %T", rule)
	}
	return json.Marshal(dto)
}

func decodeRule(typ promotion.RuleType, data []byte) (promotion.Rule, error) {
	var dto ruleJSON
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, errors.Wrap(err, "unmarshal rule payload")
	}

	switch typ {
	case promotion.RuleBuyXGetY:
		return promotion.BuyXGetYRule{
			BuyQuantity: dto.BuyQuantity,
			GetQuantity: dto.GetQuantity,
			SameItem:    dto.SameItem,
			FreeItemID:  dto.FreeItemID,
		}, nil
	case promotion.RuleQuantityDiscount:
		return promotion.QuantityDiscountRule{
			MinQuantity:     dto.MinQuantity,
			DiscountPercent: dto.DiscountPercent,
			DiscountAmount:  dto.DiscountAmount,
		}, nil
	case promotion.RuleCartTotal:
		return promotion.CartTotalRule{
			MinAmount:       dto.MinAmount,
			DiscountPercent: dto.DiscountPercent,
			DiscountAmount:  dto.DiscountAmount,
			FreeItemID:      dto.FreeItemID,
			FreeShipping:    dto.FreeShipping,
		}, nil
	default:
		return nil, errors.Errorf("unknown rule type %q", typ)
	}
}

// categoryJSON is the storage shape of a category reference list.
type categoryJSON struct {
	ID   string `json:"id"`
	Code string `json:"code,omitempty"`
}

func encodeCategories(refs []promotion.CategoryRef) ([]byte, error) {
	dto := make([]categoryJSON, len(refs))
	for i, ref := range refs {
		dto[i] = categoryJSON{ID: ref.ID, Code: ref.Code}
	}
	return json.Marshal(dto)
}

func decodeCategories(data []byte) ([]promotion.CategoryRef, error) {
	var dto []categoryJSON
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, errors.Wrap(err, "unmarshal category refs")
	}
	refs := make([]promotion.CategoryRef, len(dto))
	for i, c := range dto {
		refs[i] = promotion.CategoryRef{ID: c.ID, Code: c.Code}
	}
	return refs, nil
}
