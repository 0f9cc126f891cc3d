package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Category groups products for catalog browsing and category-scoped discounts.
type Category struct {
	ID          int64
	Name        string
	Description string
}

// Product represents a catalog item available for purchase. Price is the
// current catalog price; orders snapshot it at creation time and never read
// it back afterwards.
type Product struct {
	ID            string
	Name          string
	Description   string
	Price         decimal.Decimal
	CategoryID    int64
	CategoryName  string
	StockQuantity int
	Active        bool
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}
