package tidy

import (
	"context"
	"time"
)

// AccessToken is a persisted capability for a folder outside the engine's
// direct control. It is only usable after the boundary guard validates it.
type AccessToken struct {
	Key         string    `toml:"key"`
	DisplayName string    `toml:"display_name"`
	Path        string    `toml:"path"`
	CreatedAt   time.Time `toml:"created_at"`
}

// Ref returns the destination reference rules use to point at this token.
func (t *AccessToken) Ref() DestinationRef {
	return DestinationRef{Key: t.Key, DisplayName: t.DisplayName}
}

// TokenStore is a secure key/value store for access tokens.
type TokenStore interface {
	Save(ctx context.Context, key string, data []byte) error

	// Load returns nil, nil when the key is absent.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes the key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists all stored keys in sorted order.
	Keys(ctx context.Context) ([]string, error)
}
