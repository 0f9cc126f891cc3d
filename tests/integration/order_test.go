//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_EmptyCart(t *testing.T) {
	clearCart(t, customerKey)

	resp := do(t, http.MethodPost, "/api/orders", nil, customerKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrder_PlaceAndFetch(t *testing.T) {
	clearCart(t, customerKey)

	resp := do(t, http.MethodPost, "/api/cart",
		map[string]any{"product_id": "prod-hoodie", "quantity": 2}, customerKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var stockBefore productResponse
	resp = do(t, http.MethodGet, "/api/products/prod-hoodie", nil, customerKey)
	decode(t, resp, &stockBefore)

	var placed orderResponse
	resp = do(t, http.MethodPost, "/api/orders", nil, customerKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decode(t, resp, &placed)

	assert.NotEmpty(t, placed.ID)
	assert.Equal(t, "completed", placed.Status)
	assert.InDelta(t, 110.00, placed.TotalAmount, 0.001)
	require.Len(t, placed.Items, 1)
	assert.Equal(t, "prod-hoodie", placed.Items[0].ProductID)
	assert.InDelta(t, 55.00, placed.Items[0].UnitPrice, 0.001)

	// Stock decremented by the ordered quantity.
	var stockAfter productResponse
	resp = do(t, http.MethodGet, "/api/products/prod-hoodie", nil, customerKey)
	decode(t, resp, &stockAfter)
	assert.Equal(t, stockBefore.StockQuantity-2, stockAfter.StockQuantity)

	// Cart cleared after placement.
	var c cartResponse
	resp = do(t, http.MethodGet, "/api/cart", nil, customerKey)
	decode(t, resp, &c)
	assert.Empty(t, c.Items)

	// Order is listed and fetchable.
	var orders []orderResponse
	resp = do(t, http.MethodGet, "/api/orders", nil, customerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &orders)
	require.NotEmpty(t, orders)

	var fetched orderResponse
	resp = do(t, http.MethodGet, "/api/orders/"+placed.ID, nil, customerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &fetched)
	assert.Equal(t, placed.ID, fetched.ID)
	assert.InDelta(t, placed.DiscountedAmount, fetched.DiscountedAmount, 0.001)
}

func TestOrder_DiscountBreakdownPersisted(t *testing.T) {
	clearCart(t, customerKey)

	// One laptop crosses the 500 threshold of the seeded 10% rule.
	resp := do(t, http.MethodPost, "/api/cart",
		map[string]any{"product_id": "prod-laptop", "quantity": 1}, customerKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var placed orderResponse
	resp = do(t, http.MethodPost, "/api/orders", nil, customerKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decode(t, resp, &placed)

	assert.InDelta(t, 899.00, placed.TotalAmount, 0.001)
	assert.InDelta(t, 809.10, placed.DiscountedAmount, 0.01)
	require.Len(t, placed.AppliedDiscounts, 1)
	assert.Equal(t, "10% Discount", placed.AppliedDiscounts[0].Name)
	assert.InDelta(t, 89.90, placed.AppliedDiscounts[0].Amount, 0.01)

	// The breakdown survives a re-read.
	var fetched orderResponse
	resp = do(t, http.MethodGet, "/api/orders/"+placed.ID, nil, customerKey)
	decode(t, resp, &fetched)
	require.Len(t, fetched.AppliedDiscounts, 1)
	assert.InDelta(t, 89.90, fetched.AppliedDiscounts[0].Amount, 0.01)
}

func TestOrder_CrossUserVisibility(t *testing.T) {
	clearCart(t, customerKey)
	clearCart(t, adminKey)

	resp := do(t, http.MethodPost, "/api/cart",
		map[string]any{"product_id": "prod-socks", "quantity": 1}, customerKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var placed orderResponse
	resp = do(t, http.MethodPost, "/api/orders", nil, customerKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decode(t, resp, &placed)

	// The admin key maps to a different user but may read any order.
	resp = do(t, http.MethodGet, "/api/orders/"+placed.ID, nil, adminKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A non-admin key must not see another user's order.
	resp = do(t, http.MethodPost, "/api/cart",
		map[string]any{"product_id": "prod-socks", "quantity": 1}, adminKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var adminPlaced orderResponse
	resp = do(t, http.MethodPost, "/api/orders", nil, adminKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decode(t, resp, &adminPlaced)

	resp = do(t, http.MethodGet, "/api/orders/"+adminPlaced.ID, nil, customerKey)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOrder_InsufficientStock(t *testing.T) {
	clearCart(t, adminKey)

	// Fill the admin user's cart up to the full remaining atlas stock, then
	// shrink the stock underneath it by ordering as the customer.
	var p productResponse
	resp := do(t, http.MethodGet, "/api/products/prod-atlas", nil, adminKey)
	decode(t, resp, &p)
	require.Greater(t, p.StockQuantity, 1)

	resp = do(t, http.MethodPost, "/api/cart",
		map[string]any{"product_id": "prod-atlas", "quantity": p.StockQuantity}, adminKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	clearCart(t, customerKey)
	resp = do(t, http.MethodPost, "/api/cart",
		map[string]any{"product_id": "prod-atlas", "quantity": 1}, customerKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, http.MethodPost, "/api/orders", nil, customerKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The admin's cart now exceeds the remaining stock.
	resp = do(t, http.MethodPost, "/api/orders", nil, adminKey)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var e errorResponse
	decode(t, resp, &e)
	assert.Contains(t, e.Message, "not enough stock")

	clearCart(t, adminKey)
}
