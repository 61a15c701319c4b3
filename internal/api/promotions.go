package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retailpoint/promo/internal/domain/promotion"
)

// categoryRefBody is a category reference in request and response bodies.
type categoryRefBody struct {
	ID   string `json:"id,omitempty"`
	Code string `json:"code" validate:"required"`
}

// ruleBody is the wire shape of a rule payload. One object carries
// whichever fields the declared rule type uses.
type ruleBody struct {
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

// toRule materializes the payload for the declared type. An unknown type
// yields nil, which ValidateRule rejects.
func (b ruleBody) toRule(typ promotion.RuleType) promotion.Rule {
	switch typ {
	case promotion.RuleBuyXGetY:
		return promotion.BuyXGetYRule{
			BuyQuantity: b.BuyQuantity,
			GetQuantity: b.GetQuantity,
			SameItem:    b.SameItem,
			FreeItemID:  b.FreeItemID,
		}
	case promotion.RuleQuantityDiscount:
		return promotion.QuantityDiscountRule{
			MinQuantity:     b.MinQuantity,
			DiscountPercent: b.DiscountPercent,
			DiscountAmount:  b.DiscountAmount,
		}
	case promotion.RuleCartTotal:
		return promotion.CartTotalRule{
			MinAmount:       b.MinAmount,
			DiscountPercent: b.DiscountPercent,
			DiscountAmount:  b.DiscountAmount,
			FreeItemID:      b.FreeItemID,
			FreeShipping:    b.FreeShipping,
		}
	default:
		return nil
	}
}

func ruleToBody(rule promotion.Rule) ruleBody {
	switch r := rule.(type) {
	case promotion.BuyXGetYRule:
		return ruleBody{
			BuyQuantity: r.BuyQuantity,
			GetQuantity: r.GetQuantity,
			SameItem:    r.SameItem,
			FreeItemID:  r.FreeItemID,
		}
	case promotion.QuantityDiscountRule:
		return ruleBody{
			MinQuantity:     r.MinQuantity,
			DiscountPercent: r.DiscountPercent,
			DiscountAmount:  r.DiscountAmount,
		}
	case promotion.CartTotalRule:
		return ruleBody{
			MinAmount:       r.MinAmount,
			DiscountPercent: r.DiscountPercent,
			DiscountAmount:  r.DiscountAmount,
			FreeItemID:      r.FreeItemID,
			FreeShipping:    r.FreeShipping,
		}
	default:
		return ruleBody{}
	}
}

// createPromotionRequest is the authoring payload. Rule fields are shape
// checked by the engine's rule validator after struct validation passes.
type createPromotionRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Code        string `json:"code"`

	RuleType string   `json:"rule_type" validate:"required,oneof=buy_x_get_y quantity_discount cart_total"`
	Rule     ruleBody `json:"rule"`

	ApplicableProducts   []string          `json:"applicable_products"`
	ApplicableCategories []categoryRefBody `json:"applicable_categories" validate:"dive"`
	ExcludedProducts     []string          `json:"excluded_products"`
	ExcludedCategories   []categoryRefBody `json:"excluded_categories" validate:"dive"`

	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	Active    bool      `json:"active"`

	MaxUses        int `json:"max_uses" validate:"gte=0"`
	MaxUsesPerUser int `json:"max_uses_per_user" validate:"gte=0"`
	Priority       int `json:"priority"`

	AutoApply    bool `json:"auto_apply"`
	RequiresCode bool `json:"requires_code"`

	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
}

// promotionResponse is the wire shape of a stored promotion.
type promotionResponse struct {
	ID          string `json:"id"`
	StoreID     string `json:"store_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code,omitempty"`

	RuleType string   `json:"rule_type"`
	Rule     ruleBody `json:"rule"`

	ApplicableProducts   []string          `json:"applicable_products,omitempty"`
	ApplicableCategories []categoryRefBody `json:"applicable_categories,omitempty"`
	ExcludedProducts     []string          `json:"excluded_products,omitempty"`
	ExcludedCategories   []categoryRefBody `json:"excluded_categories,omitempty"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Active    bool      `json:"active"`

	MaxUses        int `json:"max_uses"`
	Uses           int `json:"uses"`
	MaxUsesPerUser int `json:"max_uses_per_user"`
	Priority       int `json:"priority"`

	AutoApply    bool `json:"auto_apply"`
	RequiresCode bool `json:"requires_code"`

	MinOrderAmount float64 `json:"min_order_amount"`
}

func categoryRefsToBody(refs []promotion.CategoryRef) []categoryRefBody {
	if len(refs) == 0 {
		return nil
	}
	out := make([]categoryRefBody, len(refs))
	for i, ref := range refs {
		out[i] = categoryRefBody{ID: ref.ID, Code: ref.Code}
	}
	return out
}

func categoryRefsFromBody(body []categoryRefBody) []promotion.CategoryRef {
	if len(body) == 0 {
		return nil
	}
	out := make([]promotion.CategoryRef, len(body))
	for i, ref := range body {
		out[i] = promotion.CategoryRef{ID: ref.ID, Code: ref.Code}
	}
	return out
}

func promotionToResponse(p *promotion.Promotion) promotionResponse {
	return promotionResponse{
		ID:                   p.ID,
		StoreID:              p.StoreID,
		Name:                 p.Name,
		Description:          p.Description,
		Code:                 p.Code,
		RuleType:             string(p.RuleType),
		Rule:                 ruleToBody(p.Rule),
		ApplicableProducts:   p.ApplicableProducts,
		ApplicableCategories: categoryRefsToBody(p.ApplicableCategories),
		ExcludedProducts:     p.ExcludedProducts,
		ExcludedCategories:   categoryRefsToBody(p.ExcludedCategories),
		StartDate:            p.StartDate,
		EndDate:              p.EndDate,
		Active:               p.Active,
		MaxUses:              p.MaxUses,
		Uses:                 p.Uses,
		MaxUsesPerUser:       p.MaxUsesPerUser,
		Priority:             p.Priority,
		AutoApply:            p.AutoApply,
		RequiresCode:         p.RequiresCode,
		MinOrderAmount:       p.MinOrderAmount.InexactFloat64(),
	}
}

func promotionsToResponse(promos []promotion.Promotion) []promotionResponse {
	out := make([]promotionResponse, len(promos))
	for i := range promos {
		out[i] = promotionToResponse(&promos[i])
	}
	return out
}

// ListPromotions returns the store's currently active promotions in
// priority order.
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	promos, err := h.quotes.ActivePromotions(r.Context(), storeID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"promotions": promotionsToResponse(promos),
	})
}

// CreatePromotion authors a new promotion for the store. The rule payload
// must match the declared rule type's shape.
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	var req createPromotionRequest
	if err := h.decodeBody(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	typ := promotion.RuleType(req.RuleType)
	rule := req.Rule.toRule(typ)
	if err := promotion.ValidateRule(typ, rule); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, codeInvalidRule, err.Error())
		return
	}

	p := &promotion.Promotion{
		ID:                   uuid.New().String(),
		StoreID:              storeID,
		Name:                 req.Name,
		Description:          req.Description,
		Code:                 req.Code,
		RuleType:             typ,
		Rule:                 rule,
		ApplicableProducts:   req.ApplicableProducts,
		ApplicableCategories: categoryRefsFromBody(req.ApplicableCategories),
		ExcludedProducts:     req.ExcludedProducts,
		ExcludedCategories:   categoryRefsFromBody(req.ExcludedCategories),
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		Active:               req.Active,
		MaxUses:              req.MaxUses,
		MaxUsesPerUser:       req.MaxUsesPerUser,
		Priority:             req.Priority,
		AutoApply:            req.AutoApply,
		RequiresCode:         req.RequiresCode || req.Code != "",
		MinOrderAmount:       req.MinOrderAmount,
	}

	if err := h.promotions.Create(r.Context(), p); err != nil {
		writeInternalError(w, r, errors.Wrap(err, "create promotion"))
		return
	}

	writeJSON(w, r, http.StatusCreated, promotionToResponse(p))
}

// ApplicablePromotions returns the promotions that pass the eligibility
// gate for the requested cart/user pair, priority-ordered.
func (h *Handler) ApplicablePromotions(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	var req cartRequest
	if err := h.decodeBody(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	c, err := h.resolveCart(r.Context(), storeID, req.Items)
	if err != nil {
		writeCartError(w, r, err)
		return
	}

	promos, err := h.quotes.ResolveApplicable(r.Context(), storeID, c, req.UserID)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"promotions": promotionsToResponse(promos),
	})
}

// writeDecodeError maps body decode failures to 400s, distinguishing
// malformed JSON from failed struct validation.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeError(w, r, http.StatusBadRequest, codeValidation, verrs.Error())
		return
	}
	writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
}

// writeCartError maps cart resolution failures. Unknown products are a
// client error; anything else is a storage failure.
func writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	var pnf *productNotFoundError
	if errors.As(err, &pnf) {
		writeError(w, r, http.StatusUnprocessableEntity, codeProductMissing, pnf.Error())
		return
	}
	writeInternalError(w, r, err)
}
