package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meerkatlabs/storefront/internal/domain/auth"
)

const findKeyByHashSQL = `SELECT key_hash, user_id, is_admin FROM api_keys WHERE key_hash = $1`

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash resolves a hashed API key to its principal.
func (r *APIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*auth.Principal, error) {
	var p auth.Principal
	err := r.pool.QueryRow(ctx, findKeyByHashSQL, keyHash).Scan(&p.KeyHash, &p.UserID, &p.Admin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnknownKey
		}
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	return &p, nil
}
