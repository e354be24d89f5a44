package auth

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// Metadata keys consumed and produced by the interceptors.
const (
	HeaderAuthorization = "authorization"
	HeaderUserID        = "x-user-id"
	HeaderUserEmail     = "x-user-email"
	HeaderUserName      = "x-user-name"
	HeaderClientType    = "x-client-type"
	HeaderClientIP      = "x-client-ip"
	HeaderRequestID     = "x-request-id"
)

// bearerPrefix is the expected authorization scheme.
const bearerPrefix = "bearer "

// ExtractBearerToken strips the Bearer scheme from an authorization value.
// Returns "" when the value does not carry a bearer token.
func ExtractBearerToken(header string) string {
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}
	return ""
}

// Authenticator drives the full per-request flow: bearer extraction, the
// provider chain, and attribution resolution. It is the piece the gRPC
// interceptors wrap around handlers.
type Authenticator struct {
	provider Provider // nil when authentication is disabled
	logger   *slog.Logger
}

// NewAuthenticator builds an Authenticator from configuration. The lookup
// is required only when the service_account provider is enabled. With
// [Config.Disabled] set, no chain is built and every request resolves to
// the anonymous identity with pass-through attribution.
func NewAuthenticator(cfg Config, lookup AccountLookup) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Disabled {
		return &Authenticator{logger: slog.Default()}, nil
	}

	chain, err := NewChainFromConfig(cfg, lookup)
	if err != nil {
		return nil, err
	}
	return &Authenticator{provider: chain, logger: slog.Default()}, nil
}

// NewAuthenticatorWithProvider wraps an existing provider, for callers
// that assemble their own chain.
func NewAuthenticatorWithProvider(p Provider) (*Authenticator, error) {
	if p == nil {
		return nil, cserr.New(cserr.CodeInternalConfiguration,
			"auth: authenticator requires a provider")
	}
	return &Authenticator{provider: p, logger: slog.Default()}, nil
}

// Disabled reports whether authentication is bypassed.
func (a *Authenticator) Disabled() bool { return a.provider == nil }

// Authenticate runs the full flow against the incoming metadata and
// returns the context enriched with the [AuthContext] and resolved
// [Attribution]. The returned errors are gRPC status errors: every
// authentication failure collapses to one generic Unauthenticated, and an
// impersonation attempt surfaces as PermissionDenied since the credential
// itself was valid. Full detail goes to the server log only.
func (a *Authenticator) Authenticate(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		md = metadata.MD{}
	}

	claimedID := headerStringLossy(ctx, md, HeaderUserID, a.logger)
	claimedEmail := headerStringLossy(ctx, md, HeaderUserEmail, a.logger)
	claimedName := headerStringLossy(ctx, md, HeaderUserName, a.logger)

	if a.Disabled() {
		att, _ := ResolveAttribution(nil, claimedID, claimedEmail)
		att.UserName = claimedName
		ctx = ContextWithAuth(ctx, AnonymousContext())
		return ContextWithAttribution(ctx, att), nil
	}

	values := md.Get(HeaderAuthorization)
	if len(values) == 0 {
		return ctx, status.Error(grpccodes.Unauthenticated, "authentication failed")
	}
	token := ExtractBearerToken(values[0])
	if token == "" {
		return ctx, status.Error(grpccodes.Unauthenticated, "authentication failed")
	}

	authCtx, err := a.provider.ValidateToken(ctx, token)
	if err != nil {
		a.logger.WarnContext(ctx, "auth: token validation failed",
			"code", cserr.GetCode(err),
			"error", err,
		)
		return ctx, status.Error(grpccodes.Unauthenticated, "authentication failed")
	}

	att, err := ResolveAttribution(authCtx, claimedID, claimedEmail)
	if err != nil {
		a.logger.WarnContext(ctx, "auth: attribution rejected",
			"auth", authCtx,
			"code", cserr.GetCode(err),
			"error", err,
		)
		if cserr.IsAuthorization(err) {
			return ctx, status.Error(grpccodes.PermissionDenied, "user impersonation not allowed")
		}
		return ctx, status.Error(grpccodes.Unauthenticated, "authentication failed")
	}
	att.UserName = claimedName

	ctx = ContextWithAuth(ctx, authCtx)
	return ContextWithAttribution(ctx, att), nil
}

// UnaryServerInterceptor authenticates every unary call before it reaches
// the handler.
func (a *Authenticator) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := a.Authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor authenticates every stream before the handler
// runs, wrapping the stream so the enriched context reaches it.
func (a *Authenticator) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := a.Authenticate(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// headerStringLossy returns the first value of a metadata key with
// percent-encoded UTF-8 decoded. Invalid encodings fall back to the raw
// value; non-printable bytes are stripped. Both cases log a warning rather
// than failing the request, since the identity itself is validated
// elsewhere.
func headerStringLossy(ctx context.Context, md metadata.MD, key string, logger *slog.Logger) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	raw := values[0]

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		logger.WarnContext(ctx, "auth: header has invalid percent-encoding",
			"header", key,
			"error", err,
		)
		decoded = raw
	}

	if !isPrintableASCIIOrUTF8(decoded) {
		printable := filterPrintable(decoded)
		logger.WarnContext(ctx, "auth: header contains unprintable bytes, extracted printable portion",
			"header", key,
		)
		return printable
	}
	return decoded
}

func isPrintableASCIIOrUTF8(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7F || r == '�' {
			return false
		}
	}
	return true
}

func filterPrintable(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 0x20 && r != 0x7F && r != '�' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// wrappedServerStream overrides Context so handlers see the identity and
// attribution the interceptor attached.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// AugmentOriginMetadata rewrites caller-declared origin metadata at a
// gateway hop, for gateways sitting in front of this core:
//
//   - x-client-type gains a "+<hop>" suffix ("unknown+<hop>" when absent),
//     preserving the full client chain.
//   - x-request-id is generated when absent.
//   - x-client-ip is always replaced with the transport-observed peer
//     address; a client-supplied network-origin claim is never trusted.
//
// User attribution headers pass through untouched; the receiving side
// validates those against the authorization token.
func AugmentOriginMetadata(ctx context.Context, md metadata.MD, hop string) metadata.MD {
	out := md.Copy()

	clientType := "unknown"
	if values := out.Get(HeaderClientType); len(values) > 0 && values[0] != "" {
		clientType = values[0]
	}
	out.Set(HeaderClientType, clientType+"+"+hop)

	if values := out.Get(HeaderRequestID); len(values) == 0 || values[0] == "" {
		out.Set(HeaderRequestID, uuid.NewString())
	}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		out.Set(HeaderClientIP, p.Addr.String())
	} else {
		out.Delete(HeaderClientIP)
	}

	return out
}
