//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_RequestIDAssigned(t *testing.T) {
	resp := do(t, http.MethodGet, "/livez", nil, "")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestMiddleware_RequestIDEchoed(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/livez", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "test-request-123")

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "test-request-123", resp.Header.Get("X-Request-ID"))
}

func TestMiddleware_RateLimitHeaders(t *testing.T) {
	resp := do(t, http.MethodGet, "/livez", nil, "")
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
}

func TestMiddleware_CORSPreflight(t *testing.T) {
	req, err := http.NewRequest(http.MethodOptions, baseURL+"/api/products", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMiddleware_UnknownRoute(t *testing.T) {
	resp := do(t, http.MethodGet, "/api/nope", nil, customerKey)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
