// Command seed-db provisions a development database: products from a JSON
// file, a set of demo promotions, and an API key for authoring.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/retailpoint/promo/internal/domain/promotion"
	"github.com/retailpoint/promo/internal/repository"
)

type productRow struct {
	ID           string
	StoreID      string
	Name         string
	Price        decimal.Decimal
	CategoryCode string
}

func main() {
	var (
		databaseURL  string
		productsFile string
		storeID      string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&storeID, "store-id", "demo-store", "store the demo promotions are seeded into")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PROMO_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PROMO_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PROMO_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PROMO_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PROMO_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, storeID, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, storeID, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile, storeID); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedPromotions(ctx, pool, storeID); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

// seedProducts streams the products JSON array and upserts each entry.
// Entries without a store_id fall back to the seed target store.
func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile, storeID string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	count := 0
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		p := productRow{StoreID: storeID}
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "id":
				v, err := d.Str()
				p.ID = v
				return err
			case "store_id":
				v, err := d.Str()
				if v != "" {
					p.StoreID = v
				}
				return err
			case "name":
				v, err := d.Str()
				p.Name = v
				return err
			case "price":
				n, err := d.Num()
				if err != nil {
					return err
				}
				p.Price, err = decimal.NewFromString(n.String())
				return err
			case "category":
				v, err := d.Str()
				p.CategoryCode = v
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}

		if err := upsertProduct(ctx, pool, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		count++
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
		return nil
	}); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("products seeded", slog.Int("count", count))
	return nil
}

func upsertProduct(ctx context.Context, pool *pgxpool.Pool, p productRow) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO products (id, store_id, name, price, category_code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			store_id = EXCLUDED.store_id,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category_code = EXCLUDED.category_code`,
		p.ID, p.StoreID, p.Name, p.Price, p.CategoryCode,
	)
	return err
}

// seedPromotions creates a small set of demo promotions covering each rule
// type. Existing ones (matched by id) are left untouched.
func seedPromotions(ctx context.Context, pool *pgxpool.Pool, storeID string) error {
	slog.Info("seeding demo promotions", slog.String("store", storeID))

	repo := repository.NewPromotionRepository(pool)

	existing, err := repo.ListByStore(ctx, storeID)
	if err != nil {
		return errors.Wrap(err, "list existing promotions")
	}
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.ID] = true
	}

	now := time.Now()
	demos := []promotion.Promotion{
		{
			ID:        "seed-buy-two-get-one",
			Name:      "Buy 2 Get 1 Free",
			RuleType:  promotion.RuleBuyXGetY,
			Rule:      promotion.BuyXGetYRule{BuyQuantity: 2, GetQuantity: 1, SameItem: true},
			Priority:  20,
			AutoApply: true,
		},
		{
			ID:       "seed-bulk-ten-off",
			Name:     "Bulk order: 10% off 5+ items",
			RuleType: promotion.RuleQuantityDiscount,
			Rule: promotion.QuantityDiscountRule{
				MinQuantity:     5,
				DiscountPercent: decimal.NewFromInt(10),
			},
			Priority:  10,
			AutoApply: true,
		},
		{
			ID:       "seed-happy-hours",
			Name:     "Happy Hours: 18% off orders over $30",
			Code:     "HAPPYHOURS",
			RuleType: promotion.RuleCartTotal,
			Rule: promotion.CartTotalRule{
				MinAmount:       decimal.NewFromInt(30),
				DiscountPercent: decimal.NewFromInt(18),
			},
			RequiresCode: true,
		},
	}

	for i := range demos {
		p := &demos[i]
		if seen[p.ID] {
			slog.Info("promotion exists, skipping", slog.String("id", p.ID))
			continue
		}

		p.StoreID = storeID
		p.StartDate = now.Add(-time.Hour)
		p.EndDate = now.AddDate(1, 0, 0)
		p.Active = true

		if err := repo.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "create promotion %s", p.ID)
		}
		slog.Info("created promotion", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	_, err := pool.Exec(ctx, `
		INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes,
			active = TRUE`,
		"default", keyHash, "Default authoring key", []string{"author_promotions"},
	)
	if err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))
	return nil
}
