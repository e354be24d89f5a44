package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// ServiceAccountIssuer is the fixed iss claim carried by self-issued
// service-account tokens.
const ServiceAccountIssuer = "chronoscale-sa"

// AccountKey is the verification material the registry holds for one
// service account.
type AccountKey struct {
	// PublicKeyPEM is the PEM-encoded PKIX public key the account signs
	// its tokens with.
	PublicKeyPEM string

	// Disabled marks an account that must no longer authenticate.
	Disabled bool
}

// AccountLookup resolves a service-account id to its verification
// material. A missing account returns a coded not-found error. The
// implementation owns its own caching; every call here is treated as
// authoritative at call time.
type AccountLookup interface {
	LookupKey(ctx context.Context, accountID string) (AccountKey, error)
}

// ServiceAccountProviderConfig configures a [ServiceAccountProvider].
type ServiceAccountProviderConfig struct {
	// Lookup resolves account ids to public keys. Required.
	Lookup AccountLookup

	// ClockSkew is the tolerance applied to exp and nbf. Defaults to 60s.
	ClockSkew time.Duration

	// TokenCacheTTL bounds how long a validated result is reused.
	// Defaults to 5m.
	TokenCacheTTL time.Duration

	// TokenCacheMaxSize bounds the validated-token cache. Defaults to 10000.
	TokenCacheMaxSize int
}

// ServiceAccountProvider validates self-issued tokens whose signing keys
// are registered internally rather than published by an external
// authority. The token's sub claim names the account; the registry
// supplies the public key.
//
// Service accounts can always delegate and are never administrators. The
// latter is a hard invariant, not configuration: admin rights must not be
// reachable through credential issuance.
type ServiceAccountProvider struct {
	lookup     AccountLookup
	clockSkew  time.Duration
	tokenCache *tokenCache
	tracer     trace.Tracer
}

var _ Provider = (*ServiceAccountProvider)(nil)

// NewServiceAccountProvider creates a provider backed by the given lookup.
func NewServiceAccountProvider(cfg ServiceAccountProviderConfig) (*ServiceAccountProvider, error) {
	if cfg.Lookup == nil {
		return nil, cserr.New(cserr.CodeInternalConfiguration,
			"auth: service account provider requires an account lookup")
	}
	if cfg.ClockSkew < 0 || cfg.TokenCacheTTL < 0 {
		return nil, cserr.New(cserr.CodeInternalConfiguration,
			"auth: service account provider durations must be non-negative")
	}

	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 60 * time.Second
	}
	if cfg.TokenCacheTTL == 0 {
		cfg.TokenCacheTTL = 5 * time.Minute
	}
	if cfg.TokenCacheMaxSize <= 0 {
		cfg.TokenCacheMaxSize = 10000
	}

	return &ServiceAccountProvider{
		lookup:     cfg.Lookup,
		clockSkew:  cfg.ClockSkew,
		tokenCache: newTokenCache(cfg.TokenCacheTTL, cfg.TokenCacheMaxSize),
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// ValidateToken verifies a self-issued service-account token: the sub
// claim names the account, the registry supplies the key, and the token
// must verify against it. A disabled account is rejected even with a
// valid signature.
func (p *ServiceAccountProvider) ValidateToken(ctx context.Context, token string) (*AuthContext, error) {
	ctx, span := startSpan(ctx, p.tracer, "auth.ServiceAccount.ValidateToken")
	defer span.End()

	if err := checkTokenShape(token); err != nil {
		finishSpan(span, err)
		return nil, err
	}

	hash := tokenHash(token)
	if cached, ok := p.tokenCache.get(hash); ok {
		span.SetAttributes(attribute.Bool("auth.cache_hit", true))
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("auth.cache_hit", false))

	accountID, err := peekServiceAccountSubject(token)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.subject", accountID))

	key, err := p.lookup.LookupKey(ctx, accountID)
	if err != nil {
		var lookupErr error
		if cserr.IsNotFound(err) {
			lookupErr = cserr.Newf(cserr.CodeAuthentication,
				"auth: service account %q is not registered", accountID)
		} else {
			lookupErr = cserr.Wrap(err, cserr.CodeAuthentication,
				"auth: service account key lookup failed")
		}
		finishSpan(span, lookupErr)
		return nil, lookupErr
	}
	if key.Disabled {
		err := cserr.Newf(cserr.CodeAuthenticationClaims,
			"auth: service account %q is disabled", accountID)
		finishSpan(span, err)
		return nil, err
	}

	pub, err := parsePEMPublicKey(key.PublicKeyPEM)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return pub, nil
	},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(ServiceAccountIssuer),
		jwt.WithSubject(accountID),
		jwt.WithLeeway(p.clockSkew),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		classified := classifyError(err)
		finishSpan(span, classified)
		return nil, classified
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		err := cserr.New(cserr.CodeAuthenticationClaims, "auth: unable to extract verified claims")
		finishSpan(span, err)
		return nil, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		claimErr := cserr.New(cserr.CodeAuthenticationClaims, "auth: token has no expiration")
		finishSpan(span, claimErr)
		return nil, claimErr
	}

	authCtx := &AuthContext{
		Subject:         accountID,
		Issuer:          ServiceAccountIssuer,
		ExpiresAt:       exp.Time,
		AuthType:        AuthTypeServiceAccount,
		IsAdmin:         false,
		AllowDelegation: true,
	}

	p.tokenCache.put(hash, authCtx, exp.Time)
	return authCtx, nil
}

// peekServiceAccountSubject parses the token without verification and
// returns the sub claim, after confirming the token asserts the
// service-account issuer. Nothing is trusted until the signature verifies.
func peekServiceAccountSubject(token string) (string, error) {
	parser := jwt.NewParser()
	unverified, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil || unverified == nil {
		return "", cserr.New(cserr.CodeAuthenticationMalformed, "auth: token is malformed")
	}

	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return "", cserr.New(cserr.CodeAuthenticationMalformed, "auth: unable to extract claims")
	}
	iss, _ := claims["iss"].(string)
	if iss != ServiceAccountIssuer {
		return "", cserr.Newf(cserr.CodeAuthenticationIssuer,
			"auth: token issuer %q is not a service account token", iss)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", cserr.New(cserr.CodeAuthenticationClaims, "auth: token has no subject")
	}
	return sub, nil
}

// parsePEMPublicKey decodes a PEM-encoded PKIX public key and returns the
// RSA or ECDSA key inside.
func parsePEMPublicKey(pemStr string) (any, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, cserr.New(cserr.CodeInternal, "auth: registry key is not valid PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, cserr.Wrap(err, cserr.CodeInternal, "auth: registry key is not a valid public key")
	}
	switch pub.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return pub, nil
	default:
		return nil, cserr.New(cserr.CodeInternal, "auth: registry key type is not supported")
	}
}
