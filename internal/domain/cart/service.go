package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/meerkatlabs/storefront/internal/domain/product"
)

// Service validates cart mutations against the live catalog before
// delegating to the repository.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// Lines returns the user's current cart lines.
func (s *Service) Lines(ctx context.Context, userID string) ([]Line, error) {
	return s.carts.Lines(ctx, userID)
}

// AddItem adds quantity of a product to the user's cart, merging with an
// existing row for the same product. The product must be active and have
// enough stock to cover the requested quantity on its own; the authoritative
// stock check happens again at order time under a row lock.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if !p.Active {
		return ErrProductInactive
	}
	if p.StockQuantity < quantity {
		return &NotEnoughStockError{ProductID: productID, Available: p.StockQuantity}
	}

	if err := s.carts.Add(ctx, userID, productID, quantity); err != nil {
		return errors.Wrap(err, "add cart item")
	}
	return nil
}

// SetQuantity replaces the quantity of an existing cart row.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if !p.Active {
		return ErrProductInactive
	}
	if p.StockQuantity < quantity {
		return &NotEnoughStockError{ProductID: productID, Available: p.StockQuantity}
	}

	return s.carts.SetQuantity(ctx, userID, productID, quantity)
}

// RemoveItem deletes a single cart row.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) error {
	return s.carts.Remove(ctx, userID, productID)
}
