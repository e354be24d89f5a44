package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	err := New(CodeAuthenticationClaims, "audience mismatch")
	assert.Equal(t, CodeAuthenticationClaims, err.Code)
	assert.Equal(t, "audience mismatch", err.Message)
	assert.Nil(t, err.Cause)
}

func TestNewf(t *testing.T) {
	t.Parallel()

	err := Newf(CodeNotFound, "service account %q not found", "svc-1")
	assert.Equal(t, CodeNotFound, err.Code)
	assert.Equal(t, `service account "svc-1" not found`, err.Message)
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("wraps cause", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("timeout")
		err := Wrap(cause, CodeUnavailable, "key set fetch failed")
		require.NotNil(t, err)
		assert.Equal(t, cause, err.Cause)
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("nil error returns nil", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, Wrap(nil, CodeInternal, "ignored"))
		assert.Nil(t, Wrapf(nil, CodeInternal, "ignored %d", 1))
	})
}

func TestConvenienceConstructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CodeAuthentication, Unauthorized("authentication failed").Code)
	assert.Equal(t, CodeAuthorization, Forbidden("delegation not permitted").Code)
	assert.Equal(t, CodeNotFound, NotFoundf("account %s", "a").Code)
	assert.Equal(t, CodeInternal, Internal("unexpected").Code)
}

func TestFromError(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, FromError(nil))
	})

	t.Run("already coded", func(t *testing.T) {
		t.Parallel()
		orig := New(CodeAuthenticationExpired, "token expired")
		assert.Same(t, orig, FromError(orig))
	})

	t.Run("coded somewhere in chain", func(t *testing.T) {
		t.Parallel()
		orig := New(CodeAuthenticationExpired, "token expired")
		wrapped := Wrap(orig, CodeAuthentication, "validation failed")
		got := FromError(wrapped)
		assert.Equal(t, CodeAuthentication, got.Code)
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		t.Parallel()
		got := FromError(errors.New("boom"))
		require.NotNil(t, got)
		assert.Equal(t, CodeInternal, got.Code)
		assert.EqualError(t, got.Cause, "boom")
	})
}
