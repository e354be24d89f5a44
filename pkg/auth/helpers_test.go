package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// authTestRSAKeyPair generates a 2048-bit RSA key pair.
func authTestRSAKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key pair")
	return priv, &priv.PublicKey
}

// authTestECDSAKeyPair generates a P-256 ECDSA key pair.
func authTestECDSAKeyPair(t *testing.T) (*ecdsa.PrivateKey, *ecdsa.PublicKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "failed to generate ECDSA key pair")
	return priv, &priv.PublicKey
}

// authTestSignRSA creates an RS256-signed JWT with the given kid and claims.
func authTestSignRSA(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign RSA token")
	return signed
}

// authTestSignECDSA creates an ES256-signed JWT with the given kid and claims.
func authTestSignECDSA(t *testing.T, key *ecdsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign ECDSA token")
	return signed
}

// issuerServer is an httptest-backed OIDC issuer serving discovery and a
// JWKS document, counting key-set fetches for coalescing assertions.
type issuerServer struct {
	*httptest.Server
	jwksFetches atomic.Int64
}

// authTestIssuerServer starts a fake issuer. The server URL is the issuer
// URL; discovery points at <url>/jwks.
func authTestIssuerServer(t *testing.T, rsaKeys map[string]*rsa.PublicKey, ecKeys map[string]*ecdsa.PublicKey) *issuerServer {
	t.Helper()

	srv := &issuerServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"issuer":   srv.URL,
				"jwks_uri": srv.URL + "/jwks",
			})
		case "/jwks":
			srv.jwksFetches.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(authTestJWKSDoc(t, rsaKeys, ecKeys))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// authTestJWKSDoc marshals public keys into a JWKS document.
func authTestJWKSDoc(t *testing.T, rsaKeys map[string]*rsa.PublicKey, ecKeys map[string]*ecdsa.PublicKey) []byte {
	t.Helper()

	type jwkEntry struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Alg string `json:"alg,omitempty"`
		Use string `json:"use,omitempty"`
		N   string `json:"n,omitempty"`
		E   string `json:"e,omitempty"`
		Crv string `json:"crv,omitempty"`
		X   string `json:"x,omitempty"`
		Y   string `json:"y,omitempty"`
	}

	var keys []jwkEntry
	for kid, pub := range rsaKeys {
		keys = append(keys, jwkEntry{
			Kty: "RSA",
			Kid: kid,
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	for kid, pub := range ecKeys {
		keys = append(keys, jwkEntry{
			Kty: "EC",
			Kid: kid,
			Crv: "P-256",
			Use: "sig",
			X:   base64.RawURLEncoding.EncodeToString(pub.X.Bytes()),
			Y:   base64.RawURLEncoding.EncodeToString(pub.Y.Bytes()),
		})
	}

	doc, err := json.Marshal(map[string]any{"keys": keys})
	require.NoError(t, err, "failed to marshal JWKS")
	return doc
}

// authTestPEM encodes a public key as PKIX PEM, the registry storage format.
func authTestPEM(t *testing.T, pub any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err, "failed to marshal public key")
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// fakeLookup is an in-memory AccountLookup counting calls.
type fakeLookup struct {
	accounts map[string]AccountKey
	calls    atomic.Int64
}

func (f *fakeLookup) LookupKey(_ context.Context, accountID string) (AccountKey, error) {
	f.calls.Add(1)
	key, ok := f.accounts[accountID]
	if !ok {
		return AccountKey{}, cserr.NotFoundf("service account %q not found", accountID)
	}
	return key, nil
}

// authTestClaims builds standard claims expiring in one hour.
func authTestClaims(issuer, sub string, overrides jwt.MapClaims) jwt.MapClaims {
	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	for k, v := range overrides {
		claims[k] = v
	}
	return claims
}
