package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meerkatlabs/storefront/internal/domain/cart"
	"github.com/meerkatlabs/storefront/internal/domain/discount"
)

// Service converts a cart into an order atomically: stock validation, order
// and line persistence, stock decrement, discount application, and cart
// clearing happen in one transaction.
type Service struct {
	db     TxRunner
	carts  cart.Repository
	orders Repository
	engine *discount.Engine
}

// NewService creates an order Service.
func NewService(db TxRunner, carts cart.Repository, orders Repository, engine *discount.Engine) *Service {
	return &Service{
		db:     db,
		carts:  carts,
		orders: orders,
		engine: engine,
	}
}

// CreateOrder places an order from the user's cart.
//
// An empty cart fails with ErrEmptyCart before any transaction is opened.
// Inside the transaction the cart's product rows are locked, stock is
// validated for every line before any mutation, and the first under-stocked
// product aborts with InsufficientStockError. On success the returned order
// carries snapshotted unit prices, the applied discount breakdown, and final
// totals; the cart is cleared. Any failure rolls the whole transaction back.
func (s *Service) CreateOrder(ctx context.Context, userID string) (*Order, error) {
	lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "read cart")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	var placed *Order
	err = s.db.InTx(ctx, func(tx Tx) error {
		var txErr error
		placed, txErr = s.placeOrder(ctx, tx, userID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func (s *Service) placeOrder(ctx context.Context, tx Tx, userID string) (*Order, error) {
	// Re-read under lock: the pre-transaction read only served the fast
	// empty-cart exit.
	lines, err := tx.CartLines(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "lock cart lines")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	// Validate every line before any mutation so the error reflects
	// pre-transaction state.
	for _, l := range lines {
		if l.StockQuantity < l.Quantity {
			return nil, &InsufficientStockError{
				ProductID: l.ProductID,
				Name:      l.Name,
				Available: l.StockQuantity,
			}
		}
	}

	items := make([]Item, len(lines))
	lineItems := cart.LineItems(lines)
	total := grossTotal(lineItems)

	o := &Order{
		ID:               uuid.New().String(),
		UserID:           userID,
		Status:           StatusCompleted,
		TotalAmount:      total,
		DiscountedAmount: total, // provisional until discounts apply
	}
	if err := tx.CreateOrder(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	for i, l := range lines {
		items[i] = Item{
			ProductID:       l.ProductID,
			Name:            l.Name,
			CategoryID:      l.CategoryID,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountedPrice: l.UnitPrice,
		}
	}
	if items, err = tx.AddItems(ctx, o.ID, items); err != nil {
		return nil, errors.Wrap(err, "add order items")
	}

	for _, l := range lines {
		if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
			return nil, errors.Wrap(err, "decrement stock")
		}
	}

	dec, err := s.engine.Evaluate(ctx, userID, lineItems, tx.History(o.ID))
	if err != nil {
		return nil, errors.Wrap(err, "evaluate discounts")
	}

	for _, id := range dec.ItemDiscounts {
		price := id.DiscountedUnitPrice.Round(2)
		if err := tx.SetItemDiscountedPrice(ctx, items[id.Index].ID, price); err != nil {
			return nil, errors.Wrap(err, "set item discounted price")
		}
		items[id.Index].DiscountedPrice = price
	}

	discounts := make([]AppliedDiscount, len(dec.Adjustments))
	for i, adj := range dec.Adjustments {
		discounts[i] = AppliedDiscount{
			RuleID:      adj.RuleID,
			Name:        adj.Label,
			Description: adj.Description,
			Amount:      adj.Amount.Round(2),
		}
	}
	if len(discounts) > 0 {
		if err := tx.SaveDiscounts(ctx, o.ID, discounts); err != nil {
			return nil, errors.Wrap(err, "save discounts")
		}
	}

	o.TotalAmount = dec.Total.Round(2)
	o.DiscountedAmount = dec.DiscountedTotal.Round(2)
	if err := tx.UpdateTotals(ctx, o.ID, o.TotalAmount, o.DiscountedAmount); err != nil {
		return nil, errors.Wrap(err, "update totals")
	}

	if err := tx.ClearCart(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}

	o.Items = items
	o.Discounts = discounts
	return o, nil
}

// ListOrders returns the user's orders, newest first. Admin callers see
// every user's orders.
func (s *Service) ListOrders(ctx context.Context, userID string, admin bool) ([]Order, error) {
	if admin {
		return s.orders.ListAll(ctx)
	}
	return s.orders.ListByUser(ctx, userID)
}

// GetOrder returns a single order. Admin callers may fetch any order; for
// everyone else an order belonging to someone other than userID is reported
// as not found rather than forbidden.
func (s *Service) GetOrder(ctx context.Context, userID string, admin bool, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !admin && o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// grossTotal returns the pre-discount sum of unit price * quantity.
func grossTotal(items []discount.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}
