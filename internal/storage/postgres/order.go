package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meerkatlabs/storefront/internal/domain/order"
)

const (
	listOrdersSQL = `SELECT id, user_id, status, total_amount, discounted_amount, created_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	listAllOrdersSQL = `SELECT id, user_id, status, total_amount, discounted_amount, created_at
		FROM orders ORDER BY created_at DESC`

	getOrderSQL = `SELECT id, user_id, status, total_amount, discounted_amount, created_at
		FROM orders WHERE id = $1`

	orderItemsSQL = `SELECT oi.id, oi.product_id, p.name, p.category_id, oi.quantity, oi.unit_price, oi.discounted_price
		FROM order_items oi JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1 ORDER BY oi.id`

	orderDiscountsSQL = `SELECT id, rule_id, name, description, amount
		FROM applied_discounts WHERE order_id = $1 ORDER BY id`

	// History queries exclude one order ID so that in-flight evaluation
	// never counts the order being created; callers outside a transaction
	// pass an empty string, which matches no row.
	completedOrdersSQL = `SELECT COUNT(*) FROM orders
		WHERE user_id = $1 AND status = 'completed' AND id <> $2`

	categoryQuantitySQL = `SELECT COALESCE(SUM(oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE o.user_id = $1 AND p.category_id = $2 AND o.id <> $3`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository and the discount history reads
// backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// ListByUser returns the user's orders, newest first, with items and
// discount breakdowns loaded.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}

	for i := range orders {
		if err := r.loadOrderDetails(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// ListAll returns every user's orders, newest first, with items and
// discount breakdowns loaded.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listAllOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	for i := range orders {
		if err := r.loadOrderDetails(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Get returns the order with items and discount breakdown loaded.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	if err := r.loadOrderDetails(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// CompletedOrders counts the user's completed orders.
func (r *OrderRepository) CompletedOrders(ctx context.Context, userID string) (int, error) {
	return countCompletedOrders(ctx, r.pool, userID, "")
}

// CategoryQuantity sums item quantities across the user's orders for
// products in the given category.
func (r *OrderRepository) CategoryQuantity(ctx context.Context, userID string, categoryID int64) (int, error) {
	return sumCategoryQuantity(ctx, r.pool, userID, categoryID, "")
}

func (r *OrderRepository) loadOrderDetails(ctx context.Context, o *order.Order) error {
	itemRows, err := r.pool.Query(ctx, orderItemsSQL, o.ID)
	if err != nil {
		return fmt.Errorf("loading items for order %q: %w", o.ID, err)
	}
	if o.Items, err = pgx.CollectRows(itemRows, scanOrderItem); err != nil {
		return fmt.Errorf("loading items for order %q: %w", o.ID, err)
	}

	discountRows, err := r.pool.Query(ctx, orderDiscountsSQL, o.ID)
	if err != nil {
		return fmt.Errorf("loading discounts for order %q: %w", o.ID, err)
	}
	if o.Discounts, err = pgx.CollectRows(discountRows, scanAppliedDiscount); err != nil {
		return fmt.Errorf("loading discounts for order %q: %w", o.ID, err)
	}
	return nil
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx, letting history
// reads run either standalone or inside the order transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func countCompletedOrders(ctx context.Context, q querier, userID, excludeOrderID string) (int, error) {
	var n int
	if err := q.QueryRow(ctx, completedOrdersSQL, userID, excludeOrderID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting completed orders for user %q: %w", userID, err)
	}
	return n, nil
}

func sumCategoryQuantity(ctx context.Context, q querier, userID string, categoryID int64, excludeOrderID string) (int, error) {
	var n int
	if err := q.QueryRow(ctx, categoryQuantitySQL, userID, categoryID, excludeOrderID).Scan(&n); err != nil {
		return 0, fmt.Errorf("summing category %d quantity for user %q: %w", categoryID, userID, err)
	}
	return n, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.DiscountedAmount, &o.CreatedAt)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.ProductID, &it.Name, &it.CategoryID, &it.Quantity, &it.UnitPrice, &it.DiscountedPrice)
	return it, err
}

func scanAppliedDiscount(row pgx.CollectableRow) (order.AppliedDiscount, error) {
	var d order.AppliedDiscount
	err := row.Scan(&d.ID, &d.RuleID, &d.Name, &d.Description, &d.Amount)
	return d, err
}
