package auth

import (
	"context"
	"log/slog"
	"time"
)

// AuthType identifies which authentication strategy vouched for an identity.
type AuthType string

const (
	// AuthTypeStaticKey marks identities authenticated by exact match
	// against the operator keyring. Legacy path, kept for migration.
	AuthTypeStaticKey AuthType = "static_key"

	// AuthTypeFederatedIdentity marks human identities authenticated by an
	// external OIDC provider.
	AuthTypeFederatedIdentity AuthType = "federated_identity"

	// AuthTypeServiceAccount marks non-human identities whose self-issued
	// tokens are verified against the service-account registry.
	AuthTypeServiceAccount AuthType = "service_account"
)

// AuthContext is the authoritative result of validating one token. It is
// constructed fresh on every successful validation and is immutable once
// constructed; it lives for the duration of one request or cache entry.
//
// IsAdmin is computed from the operator allow-list at construction, never
// taken verbatim from a token claim. AllowDelegation is true only for
// static keys and service accounts; a federated (human) identity can never
// assert a different end-user identity.
type AuthContext struct {
	// Subject is the stable identifier of the caller: a user id, a static
	// key name, or a service-account id. Never empty.
	Subject string

	// Email is the caller's email when known (OIDC users).
	Email string

	// Issuer identifies the authority that vouched for this identity.
	Issuer string

	// ExpiresAt is when this identity stops being valid. Always in the
	// future at construction time.
	ExpiresAt time.Time

	// AuthType records which strategy authenticated the caller.
	AuthType AuthType

	// IsAdmin reports whether the caller is on the admin allow-list.
	// Always false for service accounts.
	IsAdmin bool

	// AllowDelegation reports whether the caller may assert a different
	// end-user identity per request. Always false for federated identities.
	AllowDelegation bool
}

// LogValue implements [slog.LogValuer], emitting only the fields that are
// safe to log. The raw token never reaches an AuthContext, and ExpiresAt
// and IsAdmin are omitted as noise.
func (a *AuthContext) LogValue() slog.Value {
	if a == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("subject", a.Subject),
		slog.String("email", a.Email),
		slog.String("issuer", a.Issuer),
		slog.String("auth_type", string(a.AuthType)),
	)
}

// anonymousLifetime bounds the fixed context handed out when authentication
// is disabled.
const anonymousLifetime = 24 * time.Hour

// AnonymousContext returns the fixed low-privilege identity used when
// authentication is disabled (local development). It can delegate, so
// caller-declared attribution passes through, but is never an admin.
func AnonymousContext() *AuthContext {
	return &AuthContext{
		Subject:         "anonymous",
		Issuer:          "auth-disabled",
		ExpiresAt:       time.Now().Add(anonymousLifetime),
		AuthType:        AuthTypeStaticKey,
		IsAdmin:         false,
		AllowDelegation: true,
	}
}

// contextKey is an unexported type for context keys in this package,
// preventing collisions with keys from other packages.
type contextKey int

const (
	authContextKey contextKey = iota
	attributionKey
)

// ContextWithAuth returns a new context with the AuthContext attached.
// Called by the gRPC interceptors after successful validation.
func ContextWithAuth(ctx context.Context, a *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, a)
}

// AuthFromContext retrieves the AuthContext from the context. Returns nil
// and false when no identity has been attached.
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	a, ok := ctx.Value(authContextKey).(*AuthContext)
	return a, ok
}

// MustAuthFromContext retrieves the AuthContext, panicking if absent. Use
// only in handlers that run strictly behind the authentication interceptor.
func MustAuthFromContext(ctx context.Context) *AuthContext {
	a, ok := AuthFromContext(ctx)
	if !ok {
		panic("auth: no auth context; ensure the authentication interceptor is configured")
	}
	return a
}

// ContextWithAttribution returns a new context with the resolved
// attribution attached.
func ContextWithAttribution(ctx context.Context, att Attribution) context.Context {
	return context.WithValue(ctx, attributionKey, att)
}

// AttributionFromContext retrieves the resolved attribution from the
// context. Returns a zero value and false when none has been attached.
func AttributionFromContext(ctx context.Context) (Attribution, bool) {
	att, ok := ctx.Value(attributionKey).(Attribution)
	return att, ok
}
