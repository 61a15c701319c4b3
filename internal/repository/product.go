package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/retailpoint/promo/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, store_id, name, price, category_code
		FROM products WHERE store_id = $1 ORDER BY id`

	getProductsByIDsSQL = `SELECT id, store_id, name, price, category_code
		FROM products WHERE store_id = $1 AND id = ANY($2)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// ListByStore returns the store's catalog ordered by product ID.
func (r *ProductRepository) ListByStore(ctx context.Context, storeID string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing products for store %q: %w", storeID, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByIDs returns the store's products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, storeID string, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, storeID, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.StoreID, &p.Name, &price, &p.CategoryCode)
	p.Price = price
	return p, err
}
