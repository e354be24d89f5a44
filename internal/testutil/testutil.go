// Package testutil provides shared test helpers for the authentication
// core.
//
// All helpers accept [testing.TB] for compatibility with both tests and
// benchmarks, and call t.Helper() so failures report the caller's file and
// line.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// RequireErrorCode halts the test if err is nil, is not a coded error, or
// does not carry the expected code.
//
// Example:
//
//	_, err := store.GetAccount(ctx, id)
//	testutil.RequireErrorCode(t, err, cserr.CodeNotFound)
func RequireErrorCode(t testing.TB, err error, code cserr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	csErr, ok := cserr.AsError(err)
	require.True(t, ok, "expected *cserr.Error, got %T: %v", err, err)
	require.Equal(t, code, csErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		csErr.Code, code, csErr.Message)
}

// AssertErrorCode records a failure (without halting) if err is nil, is
// not a coded error, or does not carry the expected code. Use in
// table-driven tests where all rows should be checked.
func AssertErrorCode(t testing.TB, err error, code cserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	csErr, ok := cserr.AsError(err)
	if !assert.True(t, ok, "expected *cserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, csErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		csErr.Code, code, csErr.Message)
}

// WriteTempFile writes content to a file under t.TempDir() and returns its
// path. The file is removed automatically when the test finishes.
func WriteTempFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
