// Package api exposes the promotion engine over HTTP. Handlers translate
// JSON requests into domain calls and map domain errors onto stable error
// codes; all business decisions live in the domain packages.
package api

import (
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
	noop "go.opentelemetry.io/otel/trace/noop"

	"github.com/retailpoint/promo/internal/domain/product"
	"github.com/retailpoint/promo/internal/domain/promotion"
	"github.com/retailpoint/promo/internal/domain/quote"
)

// Handler serves the promotion API. It delegates to the quote service for
// engine operations and to the repositories for catalog and authoring.
type Handler struct {
	products   product.Repository
	promotions promotion.Repository
	quotes     *quote.Service
	validate   *validator.Validate
	tracer     trace.Tracer
}

// NewHandler constructs a Handler with the required domain dependencies.
// A nil tracer disables span creation.
func NewHandler(
	products product.Repository,
	promotions promotion.Repository,
	quotes *quote.Service,
	tracer trace.Tracer,
) *Handler {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("promo-api")
	}
	return &Handler{
		products:   products,
		promotions: promotions,
		quotes:     quotes,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		tracer:     tracer,
	}
}
