package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meerkatlabs/storefront/internal/domain/auth"
)

type mockKeyRepo struct {
	byHash map[string]*auth.Principal
}

func (m *mockKeyRepo) FindByHash(_ context.Context, keyHash string) (*auth.Principal, error) {
	p, ok := m.byHash[keyHash]
	if !ok {
		return nil, auth.ErrUnknownKey
	}
	return p, nil
}

func hashKey(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func newSecurity(pepper []byte, principals ...*auth.Principal) (*Security, map[string]*auth.Principal) {
	byHash := make(map[string]*auth.Principal)
	for _, p := range principals {
		byHash[p.KeyHash] = p
	}
	return NewSecurity(&mockKeyRepo{byHash: byHash}, pepper), byHash
}

func TestAuthenticate_MissingKey(t *testing.T) {
	sec, _ := newSecurity([]byte("pepper"))

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler should not run")
	})
	rec := httptest.NewRecorder()
	sec.Authenticate(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_UnknownKey(t *testing.T) {
	sec, _ := newSecurity([]byte("pepper"))

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler should not run")
	})
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("X-API-Key", "not-a-key")

	rec := httptest.NewRecorder()
	sec.Authenticate(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_ValidKey(t *testing.T) {
	pepper := []byte("pepper")
	principal := &auth.Principal{
		UserID:  "user-1",
		KeyHash: hashKey("secret-key", pepper),
	}
	sec, _ := newSecurity(pepper, principal)

	var got *auth.Principal
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("X-API-Key", "secret-key")

	rec := httptest.NewRecorder()
	sec.Authenticate(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.False(t, got.Admin)
}

func TestAuthenticate_PepperChangesHash(t *testing.T) {
	principal := &auth.Principal{
		UserID:  "user-1",
		KeyHash: hashKey("secret-key", []byte("old-pepper")),
	}
	sec, _ := newSecurity([]byte("new-pepper"), principal)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("X-API-Key", "secret-key")

	rec := httptest.NewRecorder()
	sec.Authenticate(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin_NonAdmin(t *testing.T) {
	h := &Handler{}
	wrapped := h.requireAdmin(func(http.ResponseWriter, *http.Request) {
		t.Fatal("admin handler should not run")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/rules", nil)
	ctx := context.WithValue(req.Context(), principalKey{}, &auth.Principal{UserID: "user-1"})

	rec := httptest.NewRecorder()
	wrapped(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAdmin_Admin(t *testing.T) {
	h := &Handler{}
	ran := false
	wrapped := h.requireAdmin(func(http.ResponseWriter, *http.Request) { ran = true })

	req := httptest.NewRequest(http.MethodGet, "/api/admin/rules", nil)
	ctx := context.WithValue(req.Context(), principalKey{}, &auth.Principal{UserID: "admin-1", Admin: true})

	rec := httptest.NewRecorder()
	wrapped(rec, req.WithContext(ctx))

	assert.True(t, ran)
}
