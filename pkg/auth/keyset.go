package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// maxFetchBody limits key-set and discovery response bodies to 1 MB.
const maxFetchBody = 1 << 20

// keySetEntry holds the verification keys published by one issuer at one
// point in time. Replaced wholesale on refresh, never merged.
type keySetEntry struct {
	keys      map[string]any // kid -> *rsa.PublicKey or *ecdsa.PublicKey
	jwksURL   string
	fetchedAt time.Time
}

// keySetCache fetches and caches per-issuer key sets, discovered via the
// issuer's .well-known/openid-configuration document. Entries expire after
// a TTL; expiry triggers a re-fetch on next use rather than a background
// timer, so rarely-used issuers cost no traffic.
//
// Concurrent misses for the same issuer coalesce into one outstanding
// fetch: N waiters observe the single result, success or failure alike.
// Failures are not cached; the next request retries.
type keySetCache struct {
	mu      sync.RWMutex
	entries map[string]*keySetEntry // issuer -> entry
	ttl     time.Duration
	client  HTTPClient
	group   singleflight.Group
}

func newKeySetCache(ttl time.Duration, client HTTPClient) *keySetCache {
	return &keySetCache{
		entries: make(map[string]*keySetEntry),
		ttl:     ttl,
		client:  client,
	}
}

// getKey returns the public key with the given kid for the issuer,
// fetching or refreshing the issuer's key set as needed. A kid absent from
// a fresh cached set forces a refetch to pick up key rotation.
func (c *keySetCache) getKey(ctx context.Context, issuer, kid string) (any, error) {
	c.mu.RLock()
	entry, ok := c.entries[issuer]
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		key, exists := entry.keys[kid]
		c.mu.RUnlock()
		if exists {
			return key, nil
		}
		// Kid not in a fresh set: possible rotation, fall through to refetch.
	} else {
		c.mu.RUnlock()
	}

	entry, err := c.refresh(ctx, issuer)
	if err != nil {
		return nil, err
	}

	key, exists := entry.keys[kid]
	if !exists {
		return nil, cserr.Newf(cserr.CodeAuthenticationSignature,
			"auth: key id %q not found in key set for issuer %q", kid, issuer)
	}
	return key, nil
}

// refresh fetches the issuer's key set, coalescing concurrent callers into
// one network round trip. The fetch is detached from the caller's
// cancellation so an abandoned request still populates the cache for the
// waiters behind it.
func (c *keySetCache) refresh(ctx context.Context, issuer string) (*keySetEntry, error) {
	v, err, _ := c.group.Do(issuer, func() (any, error) {
		entry, err := c.fetch(context.WithoutCancel(ctx), issuer)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[issuer] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		// A fetch failure is indistinguishable from an unknown issuer for
		// this request; nothing is cached, so the next request retries.
		return nil, cserr.Wrapf(err, cserr.CodeAuthenticationIssuer,
			"auth: failed to fetch key set for issuer %q", issuer)
	}
	return v.(*keySetEntry), nil
}

// fetch resolves the issuer's JWKS URL via OIDC discovery (reusing a
// previously discovered URL when available) and downloads the key set.
func (c *keySetCache) fetch(ctx context.Context, issuer string) (*keySetEntry, error) {
	c.mu.RLock()
	jwksURL := ""
	if prev, ok := c.entries[issuer]; ok {
		jwksURL = prev.jwksURL
	}
	c.mu.RUnlock()

	if jwksURL == "" {
		discovered, err := fetchOIDCDiscovery(ctx, issuer, c.client)
		if err != nil {
			return nil, err
		}
		jwksURL = discovered.JWKSURI
	}

	keys, err := fetchJWKS(ctx, c.client, jwksURL)
	if err != nil {
		return nil, err
	}
	return &keySetEntry{
		keys:      keys,
		jwksURL:   jwksURL,
		fetchedAt: time.Now(),
	}, nil
}

// jwksResponse is the JSON structure of a JWKS endpoint response.
type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey is a single key in a JWKS response; only the fields needed for
// RSA and EC key reconstruction are kept.
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	// RSA fields
	N string `json:"n"`
	E string `json:"e"`
	// EC fields
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// fetchJWKS downloads and parses a JWKS document into a kid-to-key map.
// Malformed individual keys are skipped; an unparseable document fails.
func fetchJWKS(ctx context.Context, client HTTPClient, jwksURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to create JWKS request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: JWKS request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read JWKS response: %w", err)
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("auth: failed to parse JWKS JSON: %w", err)
	}

	keys := make(map[string]any, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kid == "" {
			continue
		}
		switch k.Kty {
		case "RSA":
			pub, err := parseRSAPublicKey(k.N, k.E)
			if err != nil {
				continue
			}
			keys[k.Kid] = pub
		case "EC":
			pub, err := parseECPublicKey(k.Crv, k.X, k.Y)
			if err != nil {
				continue
			}
			keys[k.Kid] = pub
		}
	}
	return keys, nil
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus and exponent.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode RSA exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// parseECPublicKey constructs an *ecdsa.PublicKey from a curve name and
// base64url-encoded coordinates.
func parseECPublicKey(crv, xBase64, yBase64 string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("auth: unsupported EC curve %q", crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode EC x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yBase64)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to decode EC y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// oidcDiscoveryResponse holds the fields this package needs from an OIDC
// provider's .well-known/openid-configuration document.
type oidcDiscoveryResponse struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// fetchOIDCDiscovery fetches and parses the issuer's discovery document.
func fetchOIDCDiscovery(ctx context.Context, issuerURL string, client HTTPClient) (*oidcDiscoveryResponse, error) {
	discoveryURL := strings.TrimRight(issuerURL, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to create OIDC discovery request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: OIDC discovery request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: OIDC discovery endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read OIDC discovery response: %w", err)
	}

	var discovery oidcDiscoveryResponse
	if err := json.Unmarshal(body, &discovery); err != nil {
		return nil, fmt.Errorf("auth: failed to parse OIDC discovery JSON: %w", err)
	}
	if discovery.JWKSURI == "" {
		return nil, fmt.Errorf("auth: OIDC discovery document missing jwks_uri")
	}
	return &discovery, nil
}
