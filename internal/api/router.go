package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retailpoint/promo/pkg/httpmiddleware"
)

// NewRouter builds the HTTP router: health probes at the root and the
// promotion API under /api, scoped per store. Authoring is gated by the
// API key middleware; engine reads are public.
func NewRouter(h *Handler, requireKey httpmiddleware.Middleware, live, ready http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(httpmiddleware.RouteLabel())

	r.Get("/livez", live)
	r.Get("/readyz", ready)

	r.Route("/api/stores/{storeID}", func(r chi.Router) {
		r.Get("/promotions", h.ListPromotions)
		r.With(requireKey).Post("/promotions", h.CreatePromotion)
		r.Post("/promotions/applicable", h.ApplicablePromotions)
		r.Post("/promotions/redeem", h.RedeemCode)
		r.Post("/cart/quote", h.QuoteCart)
	})

	return r
}
