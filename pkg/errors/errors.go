// Package errors provides the structured error type shared by all
// chronoscale-auth packages. Every failure that crosses a package boundary
// carries a machine-readable code so that the transport layer can decide
// what to expose over the wire (almost nothing) and what to log
// server-side (everything).
//
// # Error Categories
//
//   - Validation errors: invalid configuration or input
//   - Authentication errors: a credential could not be verified
//   - Authorization errors: a verified caller asked for something forbidden
//   - NotFound errors: a referenced record does not exist
//   - Internal errors: unexpected system failures
//   - Unavailable errors: a dependency is temporarily unreachable
//
// # Error Codes
//
// Codes follow the pattern CATEGORY_XXX (e.g. "AUTH_004"). They are stable:
// once a code is assigned a meaning it never changes, so codes are safe to
// alert on and to grep for in logs.
//
// # Security
//
// Authentication failures intentionally share one caller-facing outcome.
// The distinct codes (malformed vs. bad signature vs. unknown issuer) exist
// for server-side logs only; exposing them over the wire would let a prober
// map which providers are configured. The single exception is
// [CodeAuthorizationImpersonation], which maps to a "forbidden" outcome
// because the credential itself was valid.
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.CodeAuthenticationMalformed, "token is not a JWT")
//
// Wrap an underlying cause:
//
//	err := errors.Wrap(err, errors.CodeInternalDatabase, "registry lookup failed")
//
// Check a category:
//
//	if errors.IsAuthorization(err) {
//	    // map to PermissionDenied
//	}
package errors
