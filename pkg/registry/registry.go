// Package registry stores service-account records and resolves their
// public keys for token verification.
//
// The package provides two [Store] implementations: [PostgresStore], the
// authoritative record store, and [CachedStore], a read-through Redis
// decorator that absorbs the per-request key lookups the authentication
// path generates. Compose them at wiring time:
//
//	pg, err := registry.NewPostgresStore(ctx, pgCfg)
//	store := registry.NewCachedStore(pg, redisClient, registry.CacheConfig{})
//
// Lookups return coded errors: a missing account is
// [cserr.CodeNotFound], a database failure is [cserr.CodeInternalDatabase].
// Callers in the authentication path must not distinguish further on the
// wire; the distinction exists for logs and metrics.
package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Account is a registered service account. The public key verifies
// self-issued tokens; a disabled account keeps its record but fails
// authentication.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	PublicKeyPEM string    `json:"public_key_pem"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store resolves service-account records by id.
type Store interface {
	// GetAccount returns the account with the given id. Returns a
	// CodeNotFound error when no such account exists.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// Health verifies the backing store is reachable.
	Health(ctx context.Context) error
}
