//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducts_List(t *testing.T) {
	var products []productResponse
	resp := do(t, http.MethodGet, "/api/products", nil, customerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &products)

	require.Len(t, products, 9)
	byID := make(map[string]productResponse, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	laptop, ok := byID["prod-laptop"]
	require.True(t, ok)
	assert.Equal(t, "Aster 14 Laptop", laptop.Name)
	assert.Equal(t, "Electronics", laptop.Category)
	assert.InDelta(t, 899.00, laptop.Price, 0.001)
	assert.True(t, laptop.Active)
}

func TestProducts_GetByID(t *testing.T) {
	var p productResponse
	resp := do(t, http.MethodGet, "/api/products/prod-novel", nil, customerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &p)

	assert.Equal(t, "The Glass Orchard", p.Name)
	assert.Equal(t, "Books", p.Category)
}

func TestProducts_NotFound(t *testing.T) {
	resp := do(t, http.MethodGet, "/api/products/no-such-product", nil, customerKey)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var e errorResponse
	decode(t, resp, &e)
	assert.Equal(t, http.StatusNotFound, e.Code)
}
