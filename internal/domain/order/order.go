package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/meerkatlabs/storefront/internal/domain/cart"
	"github.com/meerkatlabs/storefront/internal/domain/discount"
)

// Sentinel errors for order placement and lookup.
var (
	ErrEmptyCart = errors.New("cart is empty")
	ErrNotFound  = errors.New("order not found")
)

// InsufficientStockError indicates a cart line's quantity exceeds the
// product's available stock. It always reflects pre-transaction state: every
// line is checked before any mutation.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %s, available: %d", e.Name, e.Available)
}

// Status of an order. Orders created by this core commit as completed;
// the flat discount rule counts completed orders only.
type Status string

const StatusCompleted Status = "completed"

// Order is a placed customer order. TotalAmount is the pre-discount sum of
// unit price * quantity; DiscountedAmount is the post-discount total. Both
// are frozen once the creation transaction commits.
type Order struct {
	ID               string
	UserID           string
	Status           Status
	TotalAmount      decimal.Decimal
	DiscountedAmount decimal.Decimal
	Items            []Item
	Discounts        []AppliedDiscount
	CreatedAt        time.Time
}

// Item is a single order line. UnitPrice is snapshotted from the catalog at
// creation; DiscountedPrice starts equal to UnitPrice and is only changed by
// category rule application.
type Item struct {
	ID              int64
	ProductID       string
	Name            string
	CategoryID      int64
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountedPrice decimal.Decimal
}

// AppliedDiscount is one entry of an order's persisted discount breakdown.
type AppliedDiscount struct {
	ID          int64
	RuleID      *int64
	Name        string
	Description string
	Amount      decimal.Decimal
}

// Repository defines read operations for placed orders.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListAll returns every user's orders, newest first.
	ListAll(ctx context.Context) ([]Order, error)
	// Get returns the order with items and discount breakdown loaded.
	// Returns ErrNotFound when no such order exists.
	Get(ctx context.Context, id string) (*Order, error)
}

// Tx exposes the persistence operations available inside one order-creation
// transaction. All writes share the transaction and commit or roll back
// together.
type Tx interface {
	// CartLines returns the user's cart joined with product data, with the
	// product rows locked for update in stable order. The locks hold
	// through stock decrement until commit.
	CartLines(ctx context.Context, userID string) ([]cart.Line, error)
	CreateOrder(ctx context.Context, o *Order) error
	// AddItems persists order lines and returns them with assigned IDs.
	AddItems(ctx context.Context, orderID string, items []Item) ([]Item, error)
	DecrementStock(ctx context.Context, productID string, quantity int) error
	SetItemDiscountedPrice(ctx context.Context, itemID int64, price decimal.Decimal) error
	SaveDiscounts(ctx context.Context, orderID string, discounts []AppliedDiscount) error
	UpdateTotals(ctx context.Context, orderID string, total, discounted decimal.Decimal) error
	ClearCart(ctx context.Context, userID string) error
	// History reads the user's order history through this transaction,
	// excluding the in-flight order.
	History(excludeOrderID string) discount.History
}

// TxRunner opens a transaction, runs fn, and commits on nil error or rolls
// back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
