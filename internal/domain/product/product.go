// Package product holds the store catalog entries the promotion engine
// prices against.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item scoped to a store. CategoryCode is the
// resolved category identifier promotions match against.
type Product struct {
	ID           string
	StoreID      string
	Name         string
	Price        decimal.Decimal
	CategoryCode string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	ListByStore(ctx context.Context, storeID string) ([]Product, error)
	GetByIDs(ctx context.Context, storeID string, ids []string) ([]Product, error)
}
