package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnknownKey is returned when no principal matches the presented key hash.
var ErrUnknownKey = errors.New("unknown api key")

// Principal identifies the caller behind an API key.
type Principal struct {
	UserID  string
	Admin   bool
	KeyHash string
}

// Repository resolves hashed API keys to principals.
type Repository interface {
	FindByHash(ctx context.Context, keyHash string) (*Principal, error)
}
