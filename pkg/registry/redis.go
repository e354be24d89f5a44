package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCacheTTL bounds how long a cached account record is reused before
// the authoritative store is consulted again. Key rotation and disabling an
// account take at most this long to propagate.
const DefaultCacheTTL = 5 * time.Minute

// accountKeyPrefix namespaces cached account records.
const accountKeyPrefix = "registry:account:"

// Cmdable defines the Redis operations the cache decorator needs. It is
// satisfied by [*redis.Client] and by mock implementations for unit
// testing. The interface is intentionally narrow.
type Cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ Cmdable = (*redis.Client)(nil)

// CacheConfig configures the read-through cache decorator.
type CacheConfig struct {
	// TTL is how long a cached record stays valid. Zero means
	// [DefaultCacheTTL].
	TTL time.Duration `env:"CACHE_TTL" yaml:"cache_ttl"`
}

// CachedStore is a read-through cache in front of another [Store]. Cache
// failures are never fatal: a Redis outage degrades to direct store
// lookups with a warning log. Missing accounts are not cached, so a newly
// registered account is visible immediately.
type CachedStore struct {
	store  Store
	cache  Cmdable
	ttl    time.Duration
	logger *slog.Logger
	tracer trace.Tracer
}

// NewCachedStore decorates a store with a Redis read-through cache.
func NewCachedStore(store Store, cache Cmdable, cfg CacheConfig) *CachedStore {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
}

// GetAccount returns the cached record when fresh, falling back to the
// underlying store and populating the cache on a miss.
func (c *CachedStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	ctx, span := c.tracer.Start(ctx, "registry.CachedStore.GetAccount")
	defer span.End()
	span.SetAttributes(attribute.String("registry.account_id", id))

	key := accountKeyPrefix + id

	raw, err := c.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		var account Account
		if jsonErr := json.Unmarshal([]byte(raw), &account); jsonErr == nil {
			span.SetAttributes(attribute.Bool("registry.cache_hit", true))
			return &account, nil
		}
		// Unreadable entry: drop it and fall through to the store.
		c.logger.WarnContext(ctx, "registry: dropping undecodable cache entry", "key", key)
		c.cache.Del(ctx, key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "registry: cache read failed, falling back to store",
			"key", key,
			"error", err,
		)
	}
	span.SetAttributes(attribute.Bool("registry.cache_hit", false))

	account, err := c.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	if encoded, jsonErr := json.Marshal(account); jsonErr == nil {
		if setErr := c.cache.Set(ctx, key, encoded, c.ttl).Err(); setErr != nil {
			c.logger.WarnContext(ctx, "registry: cache write failed",
				"key", key,
				"error", setErr,
			)
		}
	}
	return account, nil
}

// Invalidate removes the cached record for an account, forcing the next
// lookup through to the authoritative store. Call after rotating a key or
// disabling an account.
func (c *CachedStore) Invalidate(ctx context.Context, id string) error {
	return c.cache.Del(ctx, accountKeyPrefix+id).Err()
}

// Health reports the health of the authoritative store. A degraded cache
// does not fail the check since lookups fall back to the store.
func (c *CachedStore) Health(ctx context.Context) error {
	return c.store.Health(ctx)
}
