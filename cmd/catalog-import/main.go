// Command catalog-import loads gzipped JSONL product feeds into the catalog.
// Feeds are parsed concurrently; a bloom filter suppresses duplicate product
// IDs across feeds so the first feed listing a product wins.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meerkatlabs/storefront/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.0001
	progressEvery = 100_000
)

// feedProduct is one JSONL record in a supplier feed.
type feedProduct struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	StockQuantity int             `json:"stock_quantity"`
}

func main() {
	var (
		feedDir     string
		databaseURL string
	)

	flag.StringVar(&feedDir, "feed-dir", "feeds", "directory containing *.jsonl.gz product feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, feedDir, databaseURL); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, feedDir, databaseURL string) error {
	feeds, err := filepath.Glob(filepath.Join(feedDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	if len(feeds) == 0 {
		return errors.Errorf("no *.jsonl.gz feeds found in %s", feedDir)
	}

	slog.Info("parsing feeds", slog.Int("count", len(feeds)))

	products, err := parseFeeds(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "parse feeds")
	}

	slog.Info("products parsed", slog.Int("count", len(products)))

	if len(products) == 0 {
		slog.Info("nothing to import")
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writeProducts(ctx, pool, products); err != nil {
		return errors.Wrap(err, "write products")
	}

	return nil
}

// dedup tracks product IDs already accepted from earlier feed lines. The
// bloom filter answers the common "never seen" case without touching the
// exact set; positives are confirmed against the map to rule out false hits.
type dedup struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	seen   map[string]struct{}
}

func newDedup() *dedup {
	return &dedup{
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		seen:   make(map[string]struct{}),
	}
}

// add reports whether id was newly added.
func (d *dedup) add(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.filter.TestString(id) {
		if _, ok := d.seen[id]; ok {
			return false
		}
	}
	d.filter.AddString(id)
	d.seen[id] = struct{}{}
	return true
}

// parseFeeds streams every feed concurrently and collects unique products.
func parseFeeds(ctx context.Context, feeds []string) ([]feedProduct, error) {
	var (
		mu       sync.Mutex
		products []feedProduct
	)
	dd := newDedup()

	g, ctx := errgroup.WithContext(ctx)
	for _, feed := range feeds {
		g.Go(func() error {
			var count uint64
			err := streamFeed(ctx, feed, func(p feedProduct) error {
				if p.ID == "" || p.Name == "" {
					return errors.Errorf("feed record missing id or name")
				}
				if p.Price.IsNegative() || p.StockQuantity < 0 {
					return errors.Errorf("feed record %s has negative price or stock", p.ID)
				}
				count++
				if count%progressEvery == 0 {
					slog.Info("feed progress", slog.String("feed", feed), slog.Uint64("records", count))
				}
				if !dd.add(p.ID) {
					return nil
				}
				mu.Lock()
				products = append(products, p)
				mu.Unlock()
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "stream feed %s", feed)
			}
			slog.Info("feed complete", slog.String("feed", feed), slog.Uint64("records", count))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}

// streamFeed opens a gzip-compressed JSONL file and calls fn per record.
func streamFeed(ctx context.Context, path string, fn func(feedProduct) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var p feedProduct
		if err := json.Unmarshal(line, &p); err != nil {
			return errors.Wrap(err, "parse feed record")
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return errors.Wrapf(scanner.Err(), "scan %s", path)
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

func writeProducts(ctx context.Context, pool *pgxpool.Pool, products []feedProduct) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	categoryIDs := make(map[string]int64)
	for i, p := range products {
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

		if (i+1)%1000 == 0 || i+1 == len(products) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(products)))
		}
	}

	return nil
}
