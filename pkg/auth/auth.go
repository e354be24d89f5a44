// Package auth is the authentication and identity-resolution core of the
// Chronoscale analytics service. It decides, for every inbound request,
// who is calling (a human via a federated OIDC provider, a long-running
// service via a self-issued credential, or a legacy static key) and whether
// the caller may assert a different end-user identity.
//
// # Architecture
//
// Each authentication strategy implements the [Provider] interface:
//
//   - [StaticKeyProvider]: exact match against an operator-supplied keyring
//   - [OIDCProvider]: federated tokens verified against per-issuer key sets
//   - [ServiceAccountProvider]: self-issued tokens verified against a
//     registry-supplied public key
//
// Providers compose into a [Chain], tried in order with first success
// winning. [ResolveAttribution] then reconciles any caller-declared user
// identity against the authenticated one, enforcing the delegation policy.
//
// Validation is cheap on the common path: each network-backed provider
// carries a validated-token cache (sha256-keyed, short TTL) and the OIDC
// provider a per-issuer key-set cache with coalesced refresh, so the
// identity provider is only contacted on a cold or rotated key set.
//
// # Security model
//
// Admin status is computed from an operator allow-list, never taken from a
// token claim. Service accounts are never administrators. Federated
// identities can never delegate. All authentication failures collapse to
// one generic outcome over the wire; only an impersonation attempt is
// distinguishable (forbidden rather than unauthenticated).
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for auth spans.
const tracerName = "github.com/chronoscale/chronoscale-auth/pkg/auth"

// maxTokenSize is the maximum accepted size for a token string (8 KB).
// Larger tokens are rejected before any parsing to bound work per request.
const maxTokenSize = 8192

// Provider validates one bearer token and resolves it to an [AuthContext].
//
// Implementations must be safe for concurrent use, must not mutate shared
// state except through their own caches, and must fail closed: any
// ambiguity, malformed input, or verification failure returns an error,
// never a best-effort context.
type Provider interface {
	ValidateToken(ctx context.Context, token string) (*AuthContext, error)
}

// HTTPClient abstracts the HTTP client used for key-set and discovery
// fetches, allowing callers to supply timeouts, proxies, or mTLS transports.
// The standard [http.Client] satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// tokenHash returns the hex-encoded SHA-256 of a token string. Caches are
// keyed by this digest so raw credentials never sit in memory longer than
// one validation.
func tokenHash(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// checkTokenShape rejects empty and oversized tokens before any crypto or
// network work.
func checkTokenShape(token string) *cserr.Error {
	if token == "" {
		return cserr.New(cserr.CodeAuthenticationMalformed, "auth: token must not be empty")
	}
	if len(token) > maxTokenSize {
		return cserr.New(cserr.CodeAuthenticationMalformed, "auth: token exceeds maximum size")
	}
	return nil
}

// classifyError converts a JWT library error to a coded error. Errors that
// already carry a code pass through unchanged.
func classifyError(err error) *cserr.Error {
	if err == nil {
		return nil
	}

	var coded *cserr.Error
	if errors.As(err, &coded) {
		return coded
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return cserr.Wrap(err, cserr.CodeAuthenticationExpired, "auth: token has expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return cserr.Wrap(err, cserr.CodeAuthenticationMalformed, "auth: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return cserr.Wrap(err, cserr.CodeAuthenticationSignature, "auth: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return cserr.Wrap(err, cserr.CodeAuthenticationIssuer, "auth: token issuer is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return cserr.Wrap(err, cserr.CodeAuthenticationClaims, "auth: token audience is invalid")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return cserr.Wrap(err, cserr.CodeAuthenticationClaims, "auth: token is not yet valid")
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return cserr.Wrap(err, cserr.CodeAuthenticationClaims, "auth: token claims are invalid")
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return cserr.Wrap(err, cserr.CodeAuthenticationSignature, "auth: token is unverifiable")
	default:
		return cserr.Wrap(err, cserr.CodeAuthentication, "auth: token validation failed")
	}
}

// startSpan creates a new span with the given name.
func startSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// finishSpan records err on the span and marks it failed. No-op for nil.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
