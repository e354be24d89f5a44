package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// staticKeyLifetime is the far-future expiry assigned to static-key
// identities. Static keys have no expiration of their own; they are
// retired by removing them from the keyring and restarting.
const staticKeyLifetime = 10 * 365 * 24 * time.Hour

// keyringEntry is one element of the operator keyring JSON document:
// [{"name": "ci-pipeline", "key": "..."}].
type keyringEntry struct {
	Name string `json:"name"`
	Key  Secret `json:"key"`
}

// ParseKeyring parses the operator keyring document into a name-to-secret
// map. Entries with an empty name or key, and duplicate names, are
// configuration errors.
func ParseKeyring(doc Secret) (map[string]Secret, error) {
	var entries []keyringEntry
	if err := json.Unmarshal([]byte(doc.Value()), &entries); err != nil {
		return nil, cserr.Wrap(err, cserr.CodeInternalConfiguration,
			"auth: keyring document is not valid JSON")
	}

	keyring := make(map[string]Secret, len(entries))
	for _, e := range entries {
		if e.Name == "" || e.Key.Value() == "" {
			return nil, cserr.New(cserr.CodeInternalConfiguration,
				"auth: keyring entries must have a non-empty name and key")
		}
		if _, dup := keyring[e.Name]; dup {
			return nil, cserr.Newf(cserr.CodeInternalConfiguration,
				"auth: duplicate keyring entry %q", e.Name)
		}
		keyring[e.Name] = e.Key
	}
	return keyring, nil
}

// StaticKeyProvider authenticates by exact match against a configured
// keyring of {name -> secret} pairs, loaded once at process start. This is
// the legacy path, kept for backward compatibility during migration to
// federated and service-account tokens.
//
// No caching beyond the keyring itself: the lookup is O(keys) over
// memory-resident material with constant-time comparisons.
type StaticKeyProvider struct {
	keyring map[string]Secret
	admins  *AdminList
	tracer  trace.Tracer
}

var _ Provider = (*StaticKeyProvider)(nil)

// NewStaticKeyProvider creates a provider over the given keyring. An empty
// keyring is a configuration error: a provider that can never succeed
// should not be in the chain.
func NewStaticKeyProvider(keyring map[string]Secret, admins *AdminList) (*StaticKeyProvider, error) {
	if len(keyring) == 0 {
		return nil, cserr.New(cserr.CodeInternalConfiguration,
			"auth: static key provider requires a non-empty keyring")
	}
	return &StaticKeyProvider{
		keyring: keyring,
		admins:  admins,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// ValidateToken matches the token against the keyring. On match it returns
// a delegation-capable context named after the matching entry, admin iff
// the name is on the allow-list.
func (p *StaticKeyProvider) ValidateToken(ctx context.Context, token string) (*AuthContext, error) {
	_, span := startSpan(ctx, p.tracer, "auth.StaticKey.ValidateToken")
	defer span.End()

	if err := checkTokenShape(token); err != nil {
		finishSpan(span, err)
		return nil, err
	}

	// Compare against every entry so timing does not reveal how far the
	// scan got or whether a prefix matched.
	var matched string
	for name, secret := range p.keyring {
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret.Value())) == 1 {
			matched = name
		}
	}
	if matched == "" {
		err := cserr.New(cserr.CodeAuthenticationSignature, "auth: token does not match any configured key")
		finishSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("auth.subject", matched))
	return &AuthContext{
		Subject:         matched,
		Issuer:          "static-keyring",
		ExpiresAt:       time.Now().Add(staticKeyLifetime),
		AuthType:        AuthTypeStaticKey,
		IsAdmin:         p.admins.Contains(matched, ""),
		AllowDelegation: true,
	}, nil
}
