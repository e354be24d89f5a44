package auth

import (
	"net/http"
	"slices"
	"time"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// Provider names accepted in [Config.Providers].
const (
	ProviderStaticKey      = "static_key"
	ProviderOIDC           = "oidc"
	ProviderServiceAccount = "service_account"
)

// Config is the operator-facing configuration for the authentication core.
// It loads through pkg/config (envDefault < YAML < env), with secrets kept
// out of file serialization.
type Config struct {
	// Disabled bypasses the provider chain entirely and hands every
	// request the fixed low-privilege anonymous identity. Local
	// development only.
	Disabled bool `env:"DISABLED" envDefault:"false" yaml:"disabled"`

	// Providers is the ordered list of strategies to enable. Order is a
	// latency choice: cheapest check first.
	Providers []string `env:"PROVIDERS" envDefault:"static_key,oidc" yaml:"providers"`

	// Keyring is the static-key document: [{"name": ..., "key": ...}].
	// Required when the static_key provider is enabled.
	Keyring Secret `env:"KEYRING" yaml:"-"`

	// Issuers is the OIDC issuer document:
	// [{"issuer": ..., "audiences": [...]}]. Required when the oidc
	// provider is enabled.
	Issuers string `env:"OIDC_ISSUERS" yaml:"oidc_issuers"`

	// Admins is the flat allow-list of subjects and emails granted admin
	// status. Never applies to service accounts.
	Admins []string `env:"ADMINS" yaml:"admins"`

	// ClockSkew is the tolerance applied to token exp and nbf claims.
	ClockSkew time.Duration `env:"CLOCK_SKEW" envDefault:"60s" yaml:"clock_skew"`

	// KeySetCacheTTL is how long a fetched issuer key set stays fresh.
	KeySetCacheTTL time.Duration `env:"KEYSET_CACHE_TTL" envDefault:"1h" yaml:"keyset_cache_ttl"`

	// TokenCacheTTL bounds how long a validated token result is reused.
	TokenCacheTTL time.Duration `env:"TOKEN_CACHE_TTL" envDefault:"5m" yaml:"token_cache_ttl"`

	// TokenCacheMaxSize bounds each provider's validated-token cache.
	TokenCacheMaxSize int `env:"TOKEN_CACHE_MAX_SIZE" envDefault:"10000" yaml:"token_cache_max_size"`

	// HTTPClient performs key-set discovery fetches. Defaults to an
	// http.Client with a 10-second timeout.
	HTTPClient HTTPClient `yaml:"-"`
}

// Validate checks the configuration for logical correctness.
func (c *Config) Validate() error {
	if c.Disabled {
		return nil
	}
	if len(c.Providers) == 0 {
		return cserr.New(cserr.CodeValidation,
			"auth: at least one provider must be enabled")
	}
	for _, p := range c.Providers {
		switch p {
		case ProviderStaticKey, ProviderOIDC, ProviderServiceAccount:
		default:
			return cserr.Newf(cserr.CodeValidation, "auth: unknown provider %q", p)
		}
	}
	if slices.Contains(c.Providers, ProviderStaticKey) && c.Keyring.Value() == "" {
		return cserr.New(cserr.CodeValidation,
			"auth: static_key provider requires a keyring")
	}
	if slices.Contains(c.Providers, ProviderOIDC) && c.Issuers == "" {
		return cserr.New(cserr.CodeValidation,
			"auth: oidc provider requires an issuer list")
	}
	if c.ClockSkew < 0 || c.KeySetCacheTTL < 0 || c.TokenCacheTTL < 0 {
		return cserr.New(cserr.CodeValidation,
			"auth: cache TTLs and clock skew must be non-negative")
	}
	if c.TokenCacheMaxSize <= 0 {
		return cserr.New(cserr.CodeValidation,
			"auth: token cache max size must be greater than zero")
	}
	return nil
}

// NewChainFromConfig builds the provider chain the configuration
// describes. The lookup is required only when the service_account
// provider is enabled. Returns a configuration error when [Config.Disabled]
// is set; disabled mode is handled by the transport layer, not by a chain.
func NewChainFromConfig(cfg Config, lookup AccountLookup) (*Chain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Disabled {
		return nil, cserr.New(cserr.CodeInternalConfiguration,
			"auth: cannot build a provider chain with authentication disabled")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	admins := NewAdminList(cfg.Admins)

	providers := make([]Provider, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		switch name {
		case ProviderStaticKey:
			keyring, err := ParseKeyring(cfg.Keyring)
			if err != nil {
				return nil, err
			}
			p, err := NewStaticKeyProvider(keyring, admins)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)

		case ProviderOIDC:
			issuers, err := ParseIssuers(cfg.Issuers)
			if err != nil {
				return nil, err
			}
			p, err := NewOIDCProvider(OIDCProviderConfig{
				Issuers:           issuers,
				Admins:            admins,
				ClockSkew:         cfg.ClockSkew,
				KeySetTTL:         cfg.KeySetCacheTTL,
				TokenCacheTTL:     cfg.TokenCacheTTL,
				TokenCacheMaxSize: cfg.TokenCacheMaxSize,
				HTTPClient:        httpClient,
			})
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)

		case ProviderServiceAccount:
			if lookup == nil {
				return nil, cserr.New(cserr.CodeInternalConfiguration,
					"auth: service_account provider requires an account lookup")
			}
			p, err := NewServiceAccountProvider(ServiceAccountProviderConfig{
				Lookup:            lookup,
				ClockSkew:         cfg.ClockSkew,
				TokenCacheTTL:     cfg.TokenCacheTTL,
				TokenCacheMaxSize: cfg.TokenCacheMaxSize,
			})
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		}
	}

	return NewChain(providers...)
}
