package auth

import (
	"sync"
	"time"
)

// tokenCacheEntry stores a cached context and its cache expiry.
type tokenCacheEntry struct {
	authCtx   *AuthContext
	expiresAt time.Time
}

// tokenCache caches the result of a full validation, keyed by the SHA-256
// digest of the token string, so repeated calls with the same token skip
// signature verification. It is an optimization only: a cold cache must
// produce identical results to a warm one.
//
// Entries are evicted by TTL and by a maximum-size bound, never manually.
type tokenCache struct {
	mu      sync.RWMutex
	entries map[string]*tokenCacheEntry
	maxSize int
	ttl     time.Duration
}

func newTokenCache(ttl time.Duration, maxSize int) *tokenCache {
	return &tokenCache{
		entries: make(map[string]*tokenCacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// get returns the cached context for the token digest, or nil and false if
// absent or expired.
func (c *tokenCache) get(tokenHash string) (*AuthContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[tokenHash]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.authCtx, true
}

// put stores a validated context. The effective TTL is the minimum of the
// configured TTL and the token's remaining lifetime, so a cached identity
// never outlives its token. At capacity, expired entries are evicted
// first, then the oldest entry.
func (c *tokenCache) put(tokenHash string, authCtx *AuthContext, tokenExp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttl
	remaining := time.Until(tokenExp)
	if remaining > 0 && remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictExpiredLocked()
	}
	if len(c.entries) >= c.maxSize {
		var oldestKey string
		var oldestTime time.Time
		first := true
		for k, v := range c.entries {
			if first || v.expiresAt.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.expiresAt
				first = false
			}
		}
		if oldestKey != "" {
			delete(c.entries, oldestKey)
		}
	}

	c.entries[tokenHash] = &tokenCacheEntry{
		authCtx:   authCtx,
		expiresAt: time.Now().Add(ttl),
	}
}

// evictExpiredLocked removes all expired entries. Caller holds the write
// lock.
func (c *tokenCache) evictExpiredLocked() {
	now := time.Now()
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// len reports the current entry count.
func (c *tokenCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
