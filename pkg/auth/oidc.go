package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// IssuerConfig describes one accepted federated identity authority.
type IssuerConfig struct {
	// Issuer is the authority's issuer URL, matched exactly against the
	// token's iss claim and used for key-set discovery.
	Issuer string `json:"issuer" yaml:"issuer"`

	// Audiences is the set of accepted aud values. A token must carry at
	// least one of them. An empty set disables the audience check.
	Audiences []string `json:"audiences" yaml:"audiences"`
}

// ParseIssuers parses the operator-supplied issuer list JSON document:
// [{"issuer": "https://idp.example.com", "audiences": ["chronoscale"]}].
func ParseIssuers(doc string) ([]IssuerConfig, error) {
	var issuers []IssuerConfig
	if err := json.Unmarshal([]byte(doc), &issuers); err != nil {
		return nil, cserr.Wrap(err, cserr.CodeInternalConfiguration,
			"auth: issuer document is not valid JSON")
	}
	for _, iss := range issuers {
		if iss.Issuer == "" {
			return nil, cserr.New(cserr.CodeInternalConfiguration,
				"auth: issuer entries must have a non-empty issuer URL")
		}
	}
	return issuers, nil
}

// OIDCProviderConfig configures an [OIDCProvider].
type OIDCProviderConfig struct {
	// Issuers lists the accepted identity authorities. At least one is
	// required.
	Issuers []IssuerConfig

	// Admins decides admin status by subject or email. Optional.
	Admins *AdminList

	// ClockSkew is the tolerance applied to exp and nbf. Defaults to 60s.
	ClockSkew time.Duration

	// KeySetTTL is how long a fetched key set stays fresh. Defaults to 1h.
	KeySetTTL time.Duration

	// TokenCacheTTL bounds how long a validated result is reused.
	// Defaults to 5m.
	TokenCacheTTL time.Duration

	// TokenCacheMaxSize bounds the validated-token cache. Defaults to 10000.
	TokenCacheMaxSize int

	// HTTPClient performs discovery and key-set fetches. Defaults to an
	// http.Client with a 10-second timeout.
	HTTPClient HTTPClient
}

// OIDCProvider validates tokens issued by external, federated identity
// authorities. Multiple issuers may be configured; the token's unverified
// iss claim selects among them and nothing else is trusted before the
// signature verifies against the issuer's published key set.
//
// Federated identities represent a human: they can never delegate, and
// admin status comes from the operator allow-list, never from a claim.
type OIDCProvider struct {
	issuers    map[string]IssuerConfig
	admins     *AdminList
	clockSkew  time.Duration
	keySets    *keySetCache
	tokenCache *tokenCache
	tracer     trace.Tracer
}

var _ Provider = (*OIDCProvider)(nil)

// NewOIDCProvider creates a provider for the configured issuers.
func NewOIDCProvider(cfg OIDCProviderConfig) (*OIDCProvider, error) {
	if len(cfg.Issuers) == 0 {
		return nil, cserr.New(cserr.CodeInternalConfiguration,
			"auth: OIDC provider requires at least one issuer")
	}
	if cfg.ClockSkew < 0 || cfg.KeySetTTL < 0 || cfg.TokenCacheTTL < 0 {
		return nil, cserr.New(cserr.CodeInternalConfiguration,
			"auth: OIDC provider durations must be non-negative")
	}

	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 60 * time.Second
	}
	if cfg.KeySetTTL == 0 {
		cfg.KeySetTTL = time.Hour
	}
	if cfg.TokenCacheTTL == 0 {
		cfg.TokenCacheTTL = 5 * time.Minute
	}
	if cfg.TokenCacheMaxSize <= 0 {
		cfg.TokenCacheMaxSize = 10000
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	issuers := make(map[string]IssuerConfig, len(cfg.Issuers))
	for _, iss := range cfg.Issuers {
		if iss.Issuer == "" {
			return nil, cserr.New(cserr.CodeInternalConfiguration,
				"auth: OIDC issuer URL must not be empty")
		}
		if _, dup := issuers[iss.Issuer]; dup {
			return nil, cserr.Newf(cserr.CodeInternalConfiguration,
				"auth: duplicate OIDC issuer %q", iss.Issuer)
		}
		issuers[iss.Issuer] = iss
	}

	return &OIDCProvider{
		issuers:    issuers,
		admins:     cfg.Admins,
		clockSkew:  cfg.ClockSkew,
		keySets:    newKeySetCache(cfg.KeySetTTL, cfg.HTTPClient),
		tokenCache: newTokenCache(cfg.TokenCacheTTL, cfg.TokenCacheMaxSize),
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// ValidateToken verifies a federated token end to end: unverified peek for
// issuer routing, signature against the issuer's key set, then standard
// claims (issuer exact, audience among the accepted set, exp within skew,
// nbf honored).
func (p *OIDCProvider) ValidateToken(ctx context.Context, token string) (*AuthContext, error) {
	ctx, span := startSpan(ctx, p.tracer, "auth.OIDC.ValidateToken")
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

	// Unverified peek: selects the issuer and key, trusts nothing.
	issuer, kid, err := peekIssuerAndKid(token)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}

	issCfg, ok := p.issuers[issuer]
	if !ok {
		err := cserr.Newf(cserr.CodeAuthenticationIssuer,
			"auth: issuer %q is not configured", issuer)
		finishSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.issuer", issuer))

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return p.keySets.getKey(ctx, issCfg.Issuer, kid)
	},
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(issCfg.Issuer),
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

	if err := checkAudience(claims, issCfg.Audiences); err != nil {
		finishSpan(span, err)
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		err := cserr.New(cserr.CodeAuthenticationClaims, "auth: token has no subject")
		finishSpan(span, err)
		return nil, err
	}
	email, _ := claims["email"].(string)
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		claimErr := cserr.New(cserr.CodeAuthenticationClaims, "auth: token has no expiration")
		finishSpan(span, claimErr)
		return nil, claimErr
	}

	authCtx := &AuthContext{
		Subject:         sub,
		Email:           email,
		Issuer:          issCfg.Issuer,
		ExpiresAt:       exp.Time,
		AuthType:        AuthTypeFederatedIdentity,
		IsAdmin:         p.admins.Contains(sub, email),
		AllowDelegation: false,
	}

	p.tokenCache.put(hash, authCtx, exp.Time)

	span.SetAttributes(attribute.String("auth.subject", sub))
	return authCtx, nil
}

// peekIssuerAndKid parses the token without verification and returns the
// iss claim and kid header used to route the real verification. The alg
// "none" is rejected here so it never reaches a keyfunc.
func peekIssuerAndKid(token string) (issuer, kid string, err error) {
	parser := jwt.NewParser()
	unverified, _, parseErr := parser.ParseUnverified(token, jwt.MapClaims{})
	if parseErr != nil || unverified == nil {
		return "", "", cserr.New(cserr.CodeAuthenticationMalformed, "auth: token is malformed")
	}

	alg, _ := unverified.Header["alg"].(string)
	if strings.EqualFold(alg, "none") {
		return "", "", cserr.New(cserr.CodeAuthenticationMalformed,
			"auth: algorithm 'none' is not permitted")
	}

	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", cserr.New(cserr.CodeAuthenticationMalformed, "auth: unable to extract claims")
	}
	issuer, _ = claims["iss"].(string)
	if issuer == "" {
		return "", "", cserr.New(cserr.CodeAuthenticationIssuer, "auth: token has no issuer claim")
	}
	kid, _ = unverified.Header["kid"].(string)
	if kid == "" {
		return "", "", cserr.New(cserr.CodeAuthenticationMalformed, "auth: token header missing kid")
	}
	return issuer, kid, nil
}

// checkAudience requires at least one of the token's aud values to appear
// in the accepted set. An empty accepted set disables the check.
func checkAudience(claims jwt.MapClaims, accepted []string) error {
	if len(accepted) == 0 {
		return nil
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return cserr.Wrap(err, cserr.CodeAuthenticationClaims, "auth: token audience is unreadable")
	}
	for _, a := range aud {
		for _, want := range accepted {
			if a == want {
				return nil
			}
		}
	}
	return cserr.New(cserr.CodeAuthenticationClaims,
		"auth: token audience does not match any accepted audience")
}
