package errors

// Code is a machine-readable error code in the form CATEGORY_XXX, where
// CATEGORY is a short identifier (VAL, AUTH, AUTHZ, NF, INT, UNAVAIL) and
// XXX is a three-digit number. Codes are stable and unique; automated
// handling (metrics, alerting, wire mapping) keys off them.
type Code string

// Error code categories and their HTTP mappings:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx   - Authorization errors (403 Forbidden)
//	NF_xxx      - Not found errors (404 Not Found)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
const (
	// Validation errors (VAL_xxx) - HTTP 400
	// Used when configuration or request input fails validation rules.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field or setting is missing.
	CodeValidationRequired Code = "VAL_002"

	// Authentication errors (AUTH_xxx) - HTTP 401
	// Used when a credential cannot be verified. Over the wire all of these
	// collapse to one generic "authentication failed" outcome; the distinct
	// codes exist for server-side logging and tests.

	// CodeAuthentication indicates a general authentication failure. This is
	// also the code returned when a provider chain is exhausted without any
	// provider accepting the token.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates the token's expiration time has
	// passed (beyond the configured clock-skew tolerance).
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationMalformed indicates the token is structurally
	// invalid: not a JWT, oversized, empty, or with an unparseable header
	// or payload. Malformed tokens fail before any network or crypto work.
	CodeAuthenticationMalformed Code = "AUTH_003"

	// CodeAuthenticationSignature indicates the token's signature did not
	// verify against the selected key material.
	CodeAuthenticationSignature Code = "AUTH_004"

	// CodeAuthenticationClaims indicates a verified signature but invalid
	// claims: wrong audience, not yet valid, or a disabled service account.
	CodeAuthenticationClaims Code = "AUTH_005"

	// CodeAuthenticationIssuer indicates the token's issuer claim does not
	// match any configured provider, or the issuer's key set could not be
	// fetched (a fetch failure is indistinguishable from an unknown issuer
	// for the duration of the failure and is retried on the next request).
	CodeAuthenticationIssuer Code = "AUTH_006"

	// Authorization errors (AUTHZ_xxx) - HTTP 403
	// Used when a verified identity asks for something it may not do.

	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeAuthorizationImpersonation indicates a caller with a
	// non-delegating identity declared a different end-user identity in its
	// attribution headers. Unlike the AUTH_xxx codes this maps to a
	// distinguishable "forbidden" outcome, because the credential itself
	// was valid.
	CodeAuthorizationImpersonation Code = "AUTHZ_002"

	// Not found errors (NF_xxx) - HTTP 404

	// CodeNotFound indicates a referenced record does not exist, e.g. a
	// service-account id with no registry entry.
	CodeNotFound Code = "NF_001"

	// Internal errors (INT_xxx) - HTTP 500

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a registry database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration loading error.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503

	// CodeUnavailable indicates a dependency is temporarily unreachable.
	CodeUnavailable Code = "UNAVAIL_001"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g. "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
