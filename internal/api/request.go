package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/retailpoint/promo/internal/domain/cart"
)

// cartItemRequest is one requested cart line. Prices and categories are
// resolved from the catalog server-side so clients cannot supply them.
type cartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// cartRequest is the cart+user payload shared by the applicable, quote and
// redeem endpoints.
type cartRequest struct {
	UserID string            `json:"user_id"`
	Items  []cartItemRequest `json:"items" validate:"required,min=1,dive"`
}

// redeemRequest adds the promotion code to the cart payload.
type redeemRequest struct {
	cartRequest
	Code string `json:"code" validate:"required"`
}

// productNotFoundError reports a cart item whose product id is not in the
// store's catalog.
type productNotFoundError struct {
	ProductID string
}

func (e *productNotFoundError) Error() string {
	return fmt.Sprintf("product %q not found", e.ProductID)
}

// decodeBody decodes a JSON request body into dst and runs struct
// validation. Unknown fields are rejected.
func (h *Handler) decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return h.validate.Struct(dst)
}

// resolveCart builds a priced cart snapshot from requested items, looking
// up unit prices and category codes in the store catalog. Duplicate product
// ids stay as separate lines. An unknown product id yields a
// productNotFoundError.
func (h *Handler) resolveCart(ctx context.Context, storeID string, items []cartItemRequest) (cart.Cart, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}

	products, err := h.products.GetByIDs(ctx, storeID, ids)
	if err != nil {
		return cart.Cart{}, errors.Wrap(err, "load products")
	}

	byID := make(map[string]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
	}

	c := cart.Cart{Lines: make([]cart.Line, 0, len(items))}
	for _, it := range items {
		i, ok := byID[it.ProductID]
		if !ok {
			return cart.Cart{}, &productNotFoundError{ProductID: it.ProductID}
		}
		p := products[i]
		c.Lines = append(c.Lines, cart.Line{
			ProductID:    p.ID,
			CategoryCode: p.CategoryCode,
			Quantity:     it.Quantity,
			UnitPrice:    p.Price,
		})
	}
	return c, nil
}
