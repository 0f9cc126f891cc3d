// Command seed-db loads the catalog from a JSON file, installs the default
// discount rules, and registers API keys for a customer and an admin user.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meerkatlabs/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	StockQuantity int             `json:"stock_quantity"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		adminKey     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "customer API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or SHOP_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("SHOP_SEED_ADMIN_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, adminKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, adminKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedRules(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discount rules")
	}

	if err := seedAPIKey(ctx, pool, apiKey, "customer-1", false, pepper); err != nil {
		return errors.Wrap(err, "seed customer api key")
	}
	if adminKey != "" {
		if err := seedAPIKey(ctx, pool, adminKey, "admin-1", true, pepper); err != nil {
			return errors.Wrap(err, "seed admin api key")
		}
	}

	return nil
}

const upsertCategorySQL = `
INSERT INTO categories (name)
VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

const upsertProductSQL = `
INSERT INTO products (id, name, description, price, category_id, stock_quantity, active)
VALUES ($1, $2, $3, $4, $5, $6, TRUE)
ON CONFLICT (id) DO UPDATE SET
    name           = EXCLUDED.name,
    description    = EXCLUDED.description,
    price          = EXCLUDED.price,
    category_id    = EXCLUDED.category_id,
    stock_quantity = EXCLUDED.stock_quantity,
    updated_at     = now()`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	categoryIDs := make(map[string]int64)
	for _, p := range products {
		categoryID, ok := categoryIDs[p.Category]
		if !ok {
			if err := pool.QueryRow(ctx, upsertCategorySQL, p.Category).Scan(&categoryID); err != nil {
				return errors.Wrapf(err, "upsert category %s", p.Category)
			}
			categoryIDs[p.Category] = categoryID
		}

		_, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Description, p.Price, categoryID, p.StockQuantity)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const insertPercentageRuleSQL = `
INSERT INTO discount_rules (name, description, kind, min_order_value, percentage, priority, active)
SELECT $1, $2, 'percentage', $3, $4, $5, TRUE
WHERE NOT EXISTS (SELECT 1 FROM discount_rules WHERE name = $1)`

const insertFlatRuleSQL = `
INSERT INTO discount_rules (name, description, kind, min_previous_orders, flat_amount, priority, active)
SELECT $1, $2, 'flat', $3, $4, $5, TRUE
WHERE NOT EXISTS (SELECT 1 FROM discount_rules WHERE name = $1)`

func seedRules(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding default discount rules")

	_, err := pool.Exec(ctx, insertPercentageRuleSQL,
		"Big Order Discount", "10% off orders of 500 or more",
		decimal.NewFromInt(500), decimal.NewFromInt(10), 1)
	if err != nil {
		return errors.Wrap(err, "insert percentage rule")
	}

	_, err = pool.Exec(ctx, insertFlatRuleSQL,
		"Returning Customer", "Flat 50 off for customers with 3 previous orders",
		3, decimal.NewFromInt(50), 2)
	if err != nil {
		return errors.Wrap(err, "insert flat rule")
	}

	return nil
}

const upsertAPIKeySQL = `
INSERT INTO api_keys (key_hash, user_id, is_admin)
VALUES ($1, $2, $3)
ON CONFLICT (key_hash) DO UPDATE SET user_id = EXCLUDED.user_id, is_admin = EXCLUDED.is_admin`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, key, userID string, admin bool, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL, keyHash, userID, admin); err != nil {
		return errors.Wrapf(err, "upsert api key for %s", userID)
	}

	slog.Info("upserted API key", slog.String("user_id", userID), slog.Bool("admin", admin))
	return nil
}
