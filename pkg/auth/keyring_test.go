package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

func TestParseKeyring(t *testing.T) {
	t.Parallel()

	t.Run("valid document", func(t *testing.T) {
		t.Parallel()
		keyring, err := ParseKeyring(`[{"name":"ci","key":"secret-1"},{"name":"ops","key":"secret-2"}]`)
		require.NoError(t, err)
		assert.Len(t, keyring, 2)
		assert.Equal(t, "secret-1", keyring["ci"].Value())
		assert.Equal(t, "secret-2", keyring["ops"].Value())
	})

	t.Run("invalid json", func(t *testing.T) {
		t.Parallel()
		_, err := ParseKeyring(`{"not": "a list"}`)
		assert.True(t, cserr.HasCode(err, cserr.CodeInternalConfiguration))
	})

	t.Run("empty name rejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseKeyring(`[{"name":"","key":"secret"}]`)
		assert.True(t, cserr.HasCode(err, cserr.CodeInternalConfiguration))
	})

	t.Run("empty key rejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseKeyring(`[{"name":"ci","key":""}]`)
		assert.True(t, cserr.HasCode(err, cserr.CodeInternalConfiguration))
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		t.Parallel()
		_, err := ParseKeyring(`[{"name":"ci","key":"a"},{"name":"ci","key":"b"}]`)
		assert.True(t, cserr.HasCode(err, cserr.CodeInternalConfiguration))
	})
}

func TestStaticKeyProvider(t *testing.T) {
	t.Parallel()

	keyring := map[string]Secret{
		"ci-pipeline": "ci-secret-value",
		"ops-tools":   "ops-secret-value",
	}
	admins := NewAdminList([]string{"ops-tools"})

	p, err := NewStaticKeyProvider(keyring, admins)
	require.NoError(t, err)

	t.Run("match returns delegating context", func(t *testing.T) {
		t.Parallel()
		authCtx, err := p.ValidateToken(context.Background(), "ci-secret-value")
		require.NoError(t, err)
		assert.Equal(t, "ci-pipeline", authCtx.Subject)
		assert.Equal(t, AuthTypeStaticKey, authCtx.AuthType)
		assert.True(t, authCtx.AllowDelegation)
		assert.False(t, authCtx.IsAdmin)
		assert.True(t, authCtx.ExpiresAt.After(time.Now().Add(365*24*time.Hour)),
			"static key contexts expire far in the future")
	})

	t.Run("admin iff name on allow list", func(t *testing.T) {
		t.Parallel()
		authCtx, err := p.ValidateToken(context.Background(), "ops-secret-value")
		require.NoError(t, err)
		assert.Equal(t, "ops-tools", authCtx.Subject)
		assert.True(t, authCtx.IsAdmin)
	})

	t.Run("no match fails closed", func(t *testing.T) {
		t.Parallel()
		_, err := p.ValidateToken(context.Background(), "wrong-secret")
		assert.True(t, cserr.HasCode(err, cserr.CodeAuthenticationSignature))
	})

	t.Run("empty token rejected", func(t *testing.T) {
		t.Parallel()
		_, err := p.ValidateToken(context.Background(), "")
		assert.True(t, cserr.HasCode(err, cserr.CodeAuthenticationMalformed))
	})

	t.Run("name is not a token", func(t *testing.T) {
		t.Parallel()
		_, err := p.ValidateToken(context.Background(), "ci-pipeline")
		assert.Error(t, err)
	})
}

func TestNewStaticKeyProvider_EmptyKeyring(t *testing.T) {
	t.Parallel()

	_, err := NewStaticKeyProvider(nil, nil)
	assert.True(t, cserr.HasCode(err, cserr.CodeInternalConfiguration))
}
