package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailpoint/promo/internal/domain/promotion"
)

const (
	promotionColumns = `id, store_id, name, description, code, rule_type, rule,
		applicable_products, applicable_categories, excluded_products, excluded_categories,
		start_date, end_date, active, max_uses, uses, max_uses_per_user,
		priority, auto_apply, requires_code, min_order_amount`

	listPromotionsSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE store_id = $1 ORDER BY priority DESC, created_at`

	findPromotionByCodeSQL = `SELECT ` + promotionColumns + `
		FROM promotions p
		WHERE p.store_id = $1
		  AND (UPPER(p.code) = UPPER($2)
		       OR EXISTS (SELECT 1 FROM promotion_codes c
		                  WHERE c.promotion_id = p.id AND UPPER(c.code) = UPPER($2)
		                    AND c.used_at IS NULL))`

	createPromotionSQL = `INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		        $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	listUsagesSQL = `SELECT promotion_id, user_id, code, order_id, used_at, discount_amount
		FROM promotion_usages WHERE promotion_id = ANY($1) ORDER BY used_at`

	insertUsageSQL = `INSERT INTO promotion_usages (promotion_id, user_id, code, order_id, used_at, discount_amount)
		VALUES ($1, $2, $3, $4, $5, $6)`

	incrementUsesSQL = `UPDATE promotions SET uses = uses + 1 WHERE id = $1`

	consumeCodeSQL = `UPDATE promotion_codes SET used_at = $3
		WHERE promotion_id = $1 AND UPPER(code) = UPPER($2) AND used_at IS NULL`

	bulkCodeExistsSQL = `SELECT EXISTS (SELECT 1 FROM promotion_codes
		WHERE promotion_id = $1 AND UPPER(code) = UPPER($2))`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// ListByStore returns all promotions authored for the store with their
// usage history attached.
func (r *PromotionRepository) ListByStore(ctx context.Context, storeID string) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listPromotionsSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing promotions for store %q: %w", storeID, err)
	}

	promos, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, fmt.Errorf("listing promotions for store %q: %w", storeID, err)
	}

	if err := r.attachUsageHistory(ctx, promos); err != nil {
		return nil, err
	}
	return promos, nil
}

// FindByCode resolves a store's promotion by redemption code. Bulk-issued
// single-use codes resolve through promotion_codes to their template
// promotion. Returns promotion.ErrNotFound when nothing matches.
func (r *PromotionRepository) FindByCode(ctx context.Context, storeID, code string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, findPromotionByCodeSQL, storeID, code)
	if err != nil {
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}

	promos := []promotion.Promotion{p}
	if err := r.attachUsageHistory(ctx, promos); err != nil {
		return nil, err
	}
	return &promos[0], nil
}

// Create persists a newly authored promotion.
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	ruleData, err := encodeRule(p.Rule)
	if err != nil {
		return fmt.Errorf("encoding rule for promotion %q: %w", p.ID, err)
	}
	applicableCats, err := encodeCategories(p.ApplicableCategories)
	if err != nil {
		return fmt.Errorf("encoding categories for promotion %q: %w", p.ID, err)
	}
	excludedCats, err := encodeCategories(p.ExcludedCategories)
	if err != nil {
		return fmt.Errorf("encoding categories for promotion %q: %w", p.ID, err)
	}

	_, err = r.pool.Exec(ctx, createPromotionSQL,
		p.ID, p.StoreID, p.Name, p.Description, p.Code, string(p.RuleType), ruleData,
		p.ApplicableProducts, applicableCats, p.ExcludedProducts, excludedCats,
		p.StartDate, p.EndDate, p.Active, p.MaxUses, p.Uses, p.MaxUsesPerUser,
		p.Priority, p.AutoApply, p.RequiresCode, p.MinOrderAmount,
	)
	if err != nil {
		return fmt.Errorf("creating promotion %q: %w", p.ID, err)
	}
	return nil
}

// RecordUsage appends a usage record, bumps the usage counter, and
// consumes the bulk-issued code the redemption came through, all in one
// transaction. A bulk code that was consumed between lookup and recording
// fails with promotion.ErrNotEligible.
func (r *PromotionRepository) RecordUsage(ctx context.Context, promotionID string, u promotion.Usage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("recording usage for promotion %q: %w", promotionID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if u.Code != "" {
		tag, err := tx.Exec(ctx, consumeCodeSQL, promotionID, u.Code, u.UsedAt)
		if err != nil {
			return fmt.Errorf("consuming code %q: %w", u.Code, err)
		}
		// Zero rows either means the redemption used the template's own
		// shared code, or a bulk code lost a race to another redemption.
		if tag.RowsAffected() == 0 {
			var bulk bool
			if err := tx.QueryRow(ctx, bulkCodeExistsSQL, promotionID, u.Code).Scan(&bulk); err != nil {
				return fmt.Errorf("consuming code %q: %w", u.Code, err)
			}
			if bulk {
				return fmt.Errorf("code %q already used: %w", u.Code, promotion.ErrNotEligible)
			}
		}
	}

	if _, err := tx.Exec(ctx, insertUsageSQL,
		promotionID, u.UserID, u.Code, u.OrderID, u.UsedAt, u.DiscountAmount,
	); err != nil {
		return fmt.Errorf("recording usage for promotion %q: %w", promotionID, err)
	}
	if _, err := tx.Exec(ctx, incrementUsesSQL, promotionID); err != nil {
		return fmt.Errorf("incrementing uses for promotion %q: %w", promotionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("recording usage for promotion %q: %w", promotionID, err)
	}
	return nil
}

// attachUsageHistory loads usage records for the given promotions in one
// query and attaches them in order.
func (r *PromotionRepository) attachUsageHistory(ctx context.Context, promos []promotion.Promotion) error {
	if len(promos) == 0 {
		return nil
	}

	ids := make([]string, len(promos))
	index := make(map[string]int, len(promos))
	for i, p := range promos {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := r.pool.Query(ctx, listUsagesSQL, ids)
	if err != nil {
		return fmt.Errorf("listing promotion usages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			promotionID string
			u           promotion.Usage
		)
		if err := rows.Scan(&promotionID, &u.UserID, &u.Code, &u.OrderID, &u.UsedAt, &u.DiscountAmount); err != nil {
			return fmt.Errorf("scanning promotion usage: %w", err)
		}
		if i, ok := index[promotionID]; ok {
			promos[i].UsageHistory = append(promos[i].UsageHistory, u)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing promotion usages: %w", err)
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p              promotion.Promotion
		ruleType       string
		ruleData       []byte
		applicableCats []byte
		excludedCats   []byte
	)
	err := row.Scan(
		&p.ID, &p.StoreID, &p.Name, &p.Description, &p.Code, &ruleType, &ruleData,
		&p.ApplicableProducts, &applicableCats, &p.ExcludedProducts, &excludedCats,
		&p.StartDate, &p.EndDate, &p.Active, &p.MaxUses, &p.Uses, &p.MaxUsesPerUser,
		&p.Priority, &p.AutoApply, &p.RequiresCode, &p.MinOrderAmount,
	)
	if err != nil {
		return p, err
	}

	p.RuleType = promotion.RuleType(ruleType)
	if p.Rule, err = decodeRule(p.RuleType, ruleData); err != nil {
		return p, err
	}
	if p.ApplicableCategories, err = decodeCategories(applicableCats); err != nil {
		return p, err
	}
	if p.ExcludedCategories, err = decodeCategories(excludedCats); err != nil {
		return p, err
	}
	return p, nil
}
