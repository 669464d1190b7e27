package tokenstore

import (
	"fmt"

	"tidy-go/internal/config"
	"tidy-go/internal/tidy"
)

// NewTokenStoreFromConfig creates a TokenStore based on the configuration type.
func NewTokenStoreFromConfig(cfg config.TokensConfig, passphrase PassphraseFunc) (tidy.TokenStore, error) {
	switch cfg.Type {
	case "file", "":
		if cfg.Dir == "" || cfg.IdentityPath == "" {
			return nil, fmt.Errorf("dir and identity_path required for file token store")
		}
		return NewAgeStore(cfg, passphrase), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown token store type: %q", cfg.Type)
	}
}
