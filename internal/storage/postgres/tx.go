package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meerkatlabs/storefront/internal/domain/cart"
	"github.com/meerkatlabs/storefront/internal/domain/discount"
	"github.com/meerkatlabs/storefront/internal/domain/order"
)

const (
	// Product rows are locked in stable (product_id) order; the locks hold
	// through stock decrement until commit, so concurrent orders for the
	// same product serialize at the stock check.
	lockedCartLinesSQL = `SELECT ci.product_id, p.name, p.category_id, c.name, p.price, ci.quantity, p.stock_quantity, p.active
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		JOIN categories c ON c.id = p.category_id
		WHERE ci.user_id = $1
		ORDER BY ci.product_id
		FOR UPDATE OF p`

	insertOrderSQL = `INSERT INTO orders (id, user_id, status, total_amount, discounted_amount)
		VALUES ($1, $2, $3, $4, $5)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price, discounted_price)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	decrementStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2`

	setItemPriceSQL = `UPDATE order_items SET discounted_price = $2 WHERE id = $1`

	insertDiscountSQL = `INSERT INTO applied_discounts (order_id, rule_id, name, description, amount)
		VALUES ($1, $2, $3, $4, $5)`

	updateTotalsSQL = `UPDATE orders SET total_amount = $2, discounted_amount = $3 WHERE id = $1`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`
)

var _ order.TxRunner = (*DB)(nil)

// DB wraps a pool with the explicit transaction boundary used by order
// placement.
type DB struct {
	pool *pgxpool.Pool
}

// NewDB returns a DB over the given pool.
func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// InTx runs fn inside a single transaction, committing on nil error and
// rolling back otherwise. Rollback on failure is unconditional; no partial
// writes survive.
func (d *DB) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	pgtx, err := d.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(&orderTx{tx: pgtx}); err != nil {
		return err
	}

	if err := pgtx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

var _ order.Tx = (*orderTx)(nil)

// orderTx implements order.Tx over a live pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) CartLines(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := t.tx.Query(ctx, lockedCartLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("locking cart lines for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCartLine)
}

func (t *orderTx) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.Exec(ctx, insertOrderSQL, o.ID, o.UserID, o.Status, o.TotalAmount, o.DiscountedAmount)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (t *orderTx) AddItems(ctx context.Context, orderID string, items []order.Item) ([]order.Item, error) {
	for i := range items {
		err := t.tx.QueryRow(ctx, insertOrderItemSQL,
			orderID, items[i].ProductID, items[i].Quantity, items[i].UnitPrice, items[i].DiscountedPrice,
		).Scan(&items[i].ID)
		if err != nil {
			return nil, fmt.Errorf("creating order item for product %q: %w", items[i].ProductID, err)
		}
	}
	return items, nil
}

func (t *orderTx) DecrementStock(ctx context.Context, productID string, quantity int) error {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, productID, quantity)
	if err != nil {
		return fmt.Errorf("decrementing stock for product %q: %w", productID, err)
	}
	// Backstop: the row lock taken at CartLines should make this
	// unreachable, but stock must never go negative.
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock underflow for product %q", productID)
	}
	return nil
}

func (t *orderTx) SetItemDiscountedPrice(ctx context.Context, itemID int64, price decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, setItemPriceSQL, itemID, price)
	if err != nil {
		return fmt.Errorf("setting discounted price for item %d: %w", itemID, err)
	}
	return nil
}

func (t *orderTx) SaveDiscounts(ctx context.Context, orderID string, discounts []order.AppliedDiscount) error {
	for _, d := range discounts {
		_, err := t.tx.Exec(ctx, insertDiscountSQL, orderID, d.RuleID, d.Name, d.Description, d.Amount)
		if err != nil {
			return fmt.Errorf("saving discount %q for order %q: %w", d.Name, orderID, err)
		}
	}
	return nil
}

func (t *orderTx) UpdateTotals(ctx context.Context, orderID string, total, discounted decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, updateTotalsSQL, orderID, total, discounted)
	if err != nil {
		return fmt.Errorf("updating totals for order %q: %w", orderID, err)
	}
	return nil
}

func (t *orderTx) ClearCart(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx, clearCartSQL, userID)
	if err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	return nil
}

// History returns order-history reads bound to this transaction, excluding
// the in-flight order.
func (t *orderTx) History(excludeOrderID string) discount.History {
	return &txHistory{tx: t.tx, exclude: excludeOrderID}
}

type txHistory struct {
	tx      pgx.Tx
	exclude string
}

func (h *txHistory) CompletedOrders(ctx context.Context, userID string) (int, error) {
	return countCompletedOrders(ctx, h.tx, userID, h.exclude)
}

func (h *txHistory) CategoryQuantity(ctx context.Context, userID string, categoryID int64) (int, error) {
	return sumCategoryQuantity(ctx, h.tx, userID, categoryID, h.exclude)
}
