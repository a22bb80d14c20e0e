package interfaces

import (
	"context"

	"watchtower/pkg/types"
)

// TokenStore persists bearer tokens and notifies registered hooks after a
// token is deleted. Hooks run after the delete has committed.
type TokenStore interface {
	Create(ctx context.Context, userID string) (*types.Token, error)
	Lookup(ctx context.Context, key string) (*types.Token, error)
	Delete(ctx context.Context, key string) error
	OnDelete(hook func(key string))
	Close() error
}
