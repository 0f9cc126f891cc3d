package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/meerkatlabs/storefront/internal/domain/discount"
)

// Sentinel errors for cart operations.
var (
	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrProductInactive = errors.New("the selected product is no longer available")
)

// NotEnoughStockError indicates the requested quantity exceeds the product's
// available stock at cart-edit time.
type NotEnoughStockError struct {
	ProductID string
	Available int
}

func (e *NotEnoughStockError) Error() string {
	return fmt.Sprintf("only %d items left in stock for product %s", e.Available, e.ProductID)
}

// Line is a cart row joined with its product's current catalog data. It is
// the priced line-item shape shared by cart preview and order creation.
type Line struct {
	ProductID     string
	Name          string
	CategoryID    int64
	CategoryName  string
	UnitPrice     decimal.Decimal
	Quantity      int
	StockQuantity int
	Active        bool
}

// LineItem converts the cart line into the evaluator's input shape.
func (l Line) LineItem() discount.LineItem {
	return discount.LineItem{
		ProductID:    l.ProductID,
		Name:         l.Name,
		CategoryID:   l.CategoryID,
		CategoryName: l.CategoryName,
		UnitPrice:    l.UnitPrice,
		Quantity:     l.Quantity,
	}
}

// LineItems converts a slice of cart lines for discount evaluation.
func LineItems(lines []Line) []discount.LineItem {
	items := make([]discount.LineItem, len(lines))
	for i, l := range lines {
		items[i] = l.LineItem()
	}
	return items
}

// Repository defines persistence operations for a user's cart.
type Repository interface {
	// Lines returns the user's cart joined with current product data,
	// ordered by product ID.
	Lines(ctx context.Context, userID string) ([]Line, error)
	// Add inserts a cart row or increases the quantity of an existing one.
	Add(ctx context.Context, userID, productID string, quantity int) error
	// SetQuantity replaces the quantity of an existing cart row.
	// Returns ErrItemNotFound when the row does not exist.
	SetQuantity(ctx context.Context, userID, productID string, quantity int) error
	// Remove deletes a single cart row.
	// Returns ErrItemNotFound when the row does not exist.
	Remove(ctx context.Context, userID, productID string) error
}
