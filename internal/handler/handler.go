// Package handler exposes the HTTP API surface: catalog reads, cart CRUD
// with discount preview, order placement, and the rule admin endpoints.
package handler

import (
	"net/http"

	"github.com/meerkatlabs/storefront/internal/domain/cart"
	"github.com/meerkatlabs/storefront/internal/domain/discount"
	"github.com/meerkatlabs/storefront/internal/domain/order"
	"github.com/meerkatlabs/storefront/internal/domain/product"
)

// RuleCache is the slice of the rule cache the handler needs: admin writes
// invalidate it synchronously before responding.
type RuleCache interface {
	Invalidate()
}

// Handler holds the domain dependencies behind the HTTP routes.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	orders   *order.Service
	rules    discount.Repository
	cache    RuleCache
	engine   *discount.Engine
	history  discount.History
}

// New constructs a Handler with the required domain dependencies.
func New(
	products product.Repository,
	carts *cart.Service,
	orders *order.Service,
	rules discount.Repository,
	cache RuleCache,
	engine *discount.Engine,
	history discount.History,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		orders:   orders,
		rules:    rules,
		cache:    cache,
		engine:   engine,
		history:  history,
	}
}

// Routes registers all API routes on the given mux. Authentication is
// applied by middleware around the mux; admin-only routes check the
// principal themselves.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("POST /api/cart", h.AddCartItem)
	mux.HandleFunc("PATCH /api/cart/{productID}", h.UpdateCartItem)
	mux.HandleFunc("DELETE /api/cart/{productID}", h.RemoveCartItem)

	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)

	mux.HandleFunc("GET /api/admin/rules", h.requireAdmin(h.ListRules))
	mux.HandleFunc("POST /api/admin/rules", h.requireAdmin(h.CreateRule))
	mux.HandleFunc("GET /api/admin/rules/{id}", h.requireAdmin(h.GetRule))
	mux.HandleFunc("PUT /api/admin/rules/{id}", h.requireAdmin(h.UpdateRule))
	mux.HandleFunc("DELETE /api/admin/rules/{id}", h.requireAdmin(h.DeleteRule))
}
