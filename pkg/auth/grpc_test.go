package auth

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc123", ExtractBearerToken("Bearer abc123"))
	assert.Equal(t, "abc123", ExtractBearerToken("bearer abc123"))
	assert.Equal(t, "abc123", ExtractBearerToken("BEARER abc123"))
	assert.Empty(t, ExtractBearerToken("Basic abc123"))
	assert.Empty(t, ExtractBearerToken("abc123"))
	assert.Empty(t, ExtractBearerToken(""))
	assert.Empty(t, ExtractBearerToken("Bearer"))
}

// newStaticAuthenticator wires an authenticator over one static key.
func newStaticAuthenticator(t *testing.T, admins []string) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(Config{
		Providers:         []string{ProviderStaticKey},
		Keyring:           `[{"name":"backend-svc","key":"sk-secret"}]`,
		TokenCacheMaxSize: 100,
		Admins:            admins,
	}, nil)
	require.NoError(t, err)
	return a
}

func incomingCtx(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestAuthenticator_HappyPath(t *testing.T) {
	t.Parallel()

	a := newStaticAuthenticator(t, nil)
	ctx := incomingCtx(HeaderAuthorization, "Bearer sk-secret")

	got, err := a.Authenticate(ctx)
	require.NoError(t, err)

	authCtx := MustAuthFromContext(got)
	assert.Equal(t, "backend-svc", authCtx.Subject)

	att, ok := AttributionFromContext(got)
	require.True(t, ok)
	assert.Equal(t, "backend-svc", att.UserID)
	assert.Empty(t, att.DelegatingService)
}

func TestAuthenticator_Delegation(t *testing.T) {
	t.Parallel()

	a := newStaticAuthenticator(t, nil)
	ctx := incomingCtx(
		HeaderAuthorization, "Bearer sk-secret",
		HeaderUserID, "alice@example.com",
		HeaderUserName, "Alice",
	)

	got, err := a.Authenticate(ctx)
	require.NoError(t, err)

	att, ok := AttributionFromContext(got)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", att.UserID)
	assert.Equal(t, "backend-svc", att.DelegatingService)
	assert.Equal(t, "Alice", att.UserName)
}

func TestAuthenticator_PercentEncodedHeaders(t *testing.T) {
	t.Parallel()

	a := newStaticAuthenticator(t, nil)
	ctx := incomingCtx(
		HeaderAuthorization, "Bearer sk-secret",
		HeaderUserName, "Jos%C3%A9%20Garc%C3%ADa",
	)

	got, err := a.Authenticate(ctx)
	require.NoError(t, err)

	att, _ := AttributionFromContext(got)
	assert.Equal(t, "José García", att.UserName)
}

func TestAuthenticator_MissingToken(t *testing.T) {
	t.Parallel()

	a := newStaticAuthenticator(t, nil)

	for name, ctx := range map[string]context.Context{
		"no metadata":    context.Background(),
		"no auth header": incomingCtx(HeaderUserID, "alice"),
		"not bearer":     incomingCtx(HeaderAuthorization, "Basic zzz"),
	} {
		_, err := a.Authenticate(ctx)
		require.Error(t, err, name)
		assert.Equal(t, grpccodes.Unauthenticated, status.Code(err), name)
	}
}

func TestAuthenticator_InvalidTokenCollapsesToGeneric(t *testing.T) {
	t.Parallel()

	a := newStaticAuthenticator(t, nil)
	ctx := incomingCtx(HeaderAuthorization, "Bearer wrong-secret")

	_, err := a.Authenticate(ctx)
	require.Error(t, err)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, grpccodes.Unauthenticated, st.Code())
	assert.Equal(t, "authentication failed", st.Message(),
		"the wire sees no internal failure detail")
}

func TestAuthenticator_ImpersonationIsPermissionDenied(t *testing.T) {
	t.Parallel()

	// Federated identity stub: cannot delegate.
	provider := &stubProvider{authCtx: &AuthContext{
		Subject:         "alice",
		Email:           "alice@example.com",
		AuthType:        AuthTypeFederatedIdentity,
		AllowDelegation: false,
	}}
	a, err := NewAuthenticatorWithProvider(provider)
	require.NoError(t, err)

	ctx := incomingCtx(
		HeaderAuthorization, "Bearer some-oidc-token",
		HeaderUserID, "bob",
	)

	_, err = a.Authenticate(ctx)
	require.Error(t, err)
	assert.Equal(t, grpccodes.PermissionDenied, status.Code(err),
		"a valid credential asserting a foreign identity is forbidden, not unauthenticated")
}

func TestAuthenticator_DisabledMode(t *testing.T) {
	t.Parallel()

	a, err := NewAuthenticator(Config{Disabled: true}, nil)
	require.NoError(t, err)
	assert.True(t, a.Disabled())

	t.Run("no credentials required", func(t *testing.T) {
		t.Parallel()
		got, err := a.Authenticate(context.Background())
		require.NoError(t, err)

		authCtx := MustAuthFromContext(got)
		assert.Equal(t, "anonymous", authCtx.Subject)
		assert.False(t, authCtx.IsAdmin)

		att, _ := AttributionFromContext(got)
		assert.Equal(t, "unknown", att.UserID)
		assert.Empty(t, att.DelegatingService)
	})

	t.Run("claimed attribution passes through", func(t *testing.T) {
		t.Parallel()
		got, err := a.Authenticate(incomingCtx(HeaderUserID, "dev@example.com"))
		require.NoError(t, err)

		att, _ := AttributionFromContext(got)
		assert.Equal(t, "dev@example.com", att.UserID)
		assert.Empty(t, att.DelegatingService)
	})
}

func TestUnaryServerInterceptor(t *testing.T) {
	t.Parallel()

	a := newStaticAuthenticator(t, nil)
	interceptor := a.UnaryServerInterceptor()

	t.Run("valid token reaches handler", func(t *testing.T) {
		t.Parallel()
		var handlerCtx context.Context
		resp, err := interceptor(
			incomingCtx(HeaderAuthorization, "Bearer sk-secret"),
			"request", nil,
			func(ctx context.Context, req any) (any, error) {
				handlerCtx = ctx
				return "response", nil
			},
		)
		require.NoError(t, err)
		assert.Equal(t, "response", resp)
		assert.Equal(t, "backend-svc", MustAuthFromContext(handlerCtx).Subject)
	})

	t.Run("invalid token never reaches handler", func(t *testing.T) {
		t.Parallel()
		called := false
		_, err := interceptor(
			incomingCtx(HeaderAuthorization, "Bearer nope"),
			"request", nil,
			func(ctx context.Context, req any) (any, error) {
				called = true
				return nil, nil
			},
		)
		require.Error(t, err)
		assert.False(t, called)
	})
}

// fakeServerStream carries a fixed context through the stream interceptor.
type fakeServerStream struct {
	ctx context.Context
}

func (f *fakeServerStream) Context() context.Context     { return f.ctx }
func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) SendMsg(any) error            { return nil }
func (f *fakeServerStream) RecvMsg(any) error            { return nil }

func TestStreamServerInterceptor(t *testing.T) {
	t.Parallel()

	a := newStaticAuthenticator(t, nil)
	interceptor := a.StreamServerInterceptor()

	ss := &fakeServerStream{ctx: incomingCtx(HeaderAuthorization, "Bearer sk-secret")}
	err := interceptor(nil, ss, nil, func(srv any, stream grpc.ServerStream) error {
		assert.Equal(t, "backend-svc", MustAuthFromContext(stream.Context()).Subject)
		return nil
	})
	require.NoError(t, err)
}

func TestAugmentOriginMetadata(t *testing.T) {
	t.Parallel()

	peerCtx := peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 4123},
	})

	t.Run("appends hop marker", func(t *testing.T) {
		t.Parallel()
		md := metadata.Pairs(HeaderClientType, "cli")
		out := AugmentOriginMetadata(peerCtx, md, "gateway")
		assert.Equal(t, []string{"cli+gateway"}, out.Get(HeaderClientType))
	})

	t.Run("unknown client type when absent", func(t *testing.T) {
		t.Parallel()
		out := AugmentOriginMetadata(peerCtx, metadata.MD{}, "gateway")
		assert.Equal(t, []string{"unknown+gateway"}, out.Get(HeaderClientType))
	})

	t.Run("generates request id when absent", func(t *testing.T) {
		t.Parallel()
		out := AugmentOriginMetadata(peerCtx, metadata.MD{}, "gateway")
		ids := out.Get(HeaderRequestID)
		require.Len(t, ids, 1)
		assert.NotEmpty(t, ids[0])
	})

	t.Run("keeps existing request id", func(t *testing.T) {
		t.Parallel()
		md := metadata.Pairs(HeaderRequestID, "req-42")
		out := AugmentOriginMetadata(peerCtx, md, "gateway")
		assert.Equal(t, []string{"req-42"}, out.Get(HeaderRequestID))
	})

	t.Run("client ip always comes from the connection", func(t *testing.T) {
		t.Parallel()
		md := metadata.Pairs(HeaderClientIP, "1.2.3.4")
		out := AugmentOriginMetadata(peerCtx, md, "gateway")
		assert.Equal(t, []string{"10.0.0.7:4123"}, out.Get(HeaderClientIP))
	})

	t.Run("claimed ip dropped without a peer", func(t *testing.T) {
		t.Parallel()
		md := metadata.Pairs(HeaderClientIP, "1.2.3.4")
		out := AugmentOriginMetadata(context.Background(), md, "gateway")
		assert.Empty(t, out.Get(HeaderClientIP))
	})

	t.Run("input metadata is not mutated", func(t *testing.T) {
		t.Parallel()
		md := metadata.Pairs(HeaderClientType, "cli")
		_ = AugmentOriginMetadata(peerCtx, md, "gateway")
		assert.Equal(t, []string{"cli"}, md.Get(HeaderClientType))
	})
}
