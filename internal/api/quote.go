package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/retailpoint/promo/internal/domain/promotion"
	"github.com/retailpoint/promo/internal/domain/quote"
)

// quoteLineResponse is one priced cart line in a quote, with granted free
// units folded in.
type quoteLineResponse struct {
	ProductID    string  `json:"product_id"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	FreeQuantity int     `json:"free_quantity,omitempty"`
	FreeItem     bool    `json:"free_item,omitempty"`
	LineTotal    float64 `json:"line_total"`
}

// outcomeResponse is one discount grant inside an applied promotion.
type outcomeResponse struct {
	RuleType       string  `json:"rule_type"`
	ProductID      string  `json:"product_id,omitempty"`
	FreeQuantity   int     `json:"free_quantity,omitempty"`
	DiscountAmount float64 `json:"discount_amount"`
	FreeItemID     string  `json:"free_item_id,omitempty"`
	FreeShipping   bool    `json:"free_shipping,omitempty"`
}

// appliedResponse is one promotion's contribution to a quote.
type appliedResponse struct {
	PromotionID string            `json:"promotion_id"`
	Name        string            `json:"name"`
	Code        string            `json:"code,omitempty"`
	Discount    float64           `json:"discount"`
	Outcomes    []outcomeResponse `json:"outcomes"`
}

// quoteResponse is the priced result of running promotions over a cart.
type quoteResponse struct {
	Lines         []quoteLineResponse `json:"lines"`
	Applied       []appliedResponse   `json:"applied"`
	OriginalTotal float64             `json:"original_total"`
	TotalDiscount float64             `json:"total_discount"`
	FinalTotal    float64             `json:"final_total"`
	FreeShipping  bool                `json:"free_shipping,omitempty"`
	FreeItemID    string              `json:"free_item_id,omitempty"`
}

func quoteToResponse(q *quote.Quote) quoteResponse {
	lines := make([]quoteLineResponse, len(q.Cart.Lines))
	for i, l := range q.Cart.Lines {
		lines[i] = quoteLineResponse{
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice.InexactFloat64(),
			FreeQuantity: l.FreeQuantity,
			FreeItem:     l.FreeItem,
			LineTotal:    l.ChargeableAmount().InexactFloat64(),
		}
	}

	applied := make([]appliedResponse, len(q.Applied))
	for i, a := range q.Applied {
		outcomes := make([]outcomeResponse, len(a.Outcomes))
		for j, o := range a.Outcomes {
			outcomes[j] = outcomeResponse{
				RuleType:       string(o.RuleType),
				ProductID:      o.ProductID,
				FreeQuantity:   o.FreeQuantity,
				DiscountAmount: o.DiscountAmount.InexactFloat64(),
				FreeItemID:     o.FreeItemID,
				FreeShipping:   o.FreeShipping,
			}
		}
		applied[i] = appliedResponse{
			PromotionID: a.PromotionID,
			Name:        a.Name,
			Code:        a.Code,
			Discount:    a.Discount.InexactFloat64(),
			Outcomes:    outcomes,
		}
	}

	return quoteResponse{
		Lines:         lines,
		Applied:       applied,
		OriginalTotal: q.OriginalTotal.InexactFloat64(),
		TotalDiscount: q.TotalDiscount.InexactFloat64(),
		FinalTotal:    q.FinalTotal.InexactFloat64(),
		FreeShipping:  q.FreeShipping,
		FreeItemID:    q.FreeItemID,
	}
}

// QuoteCart prices the cart with the store's auto-applied promotions
// stacked in priority order.
func (h *Handler) QuoteCart(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	ctx, span := h.tracer.Start(r.Context(), "QuoteCart")
	defer span.End()
	span.SetAttributes(attribute.String("store.id", storeID))

	var req cartRequest
	if err := h.decodeBody(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	c, err := h.resolveCart(ctx, storeID, req.Items)
	if err != nil {
		writeCartError(w, r, err)
		return
	}

	q, err := h.quotes.QuoteCart(ctx, storeID, c, req.UserID)
	if err != nil {
		span.RecordError(err)
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, quoteToResponse(q))
}

// RedeemCode redeems a promotion code against the cart. A code that does
// not resolve is a 404; a resolved but gated-out promotion is a 422.
func (h *Handler) RedeemCode(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	ctx, span := h.tracer.Start(r.Context(), "RedeemCode")
	defer span.End()
	span.SetAttributes(attribute.String("store.id", storeID))

	var req redeemRequest
	if err := h.decodeBody(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	c, err := h.resolveCart(ctx, storeID, req.Items)
	if err != nil {
		writeCartError(w, r, err)
		return
	}

	q, err := h.quotes.RedeemCode(ctx, storeID, req.Code, c, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, promotion.ErrNotFound):
			writeError(w, r, http.StatusNotFound, codePromoMissing, "promotion code not found")
		case errors.Is(err, promotion.ErrNotEligible):
			writeError(w, r, http.StatusUnprocessableEntity, codeNotEligible, "promotion not eligible for this cart")
		default:
			span.RecordError(err)
			writeInternalError(w, r, err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, quoteToResponse(q))
}
