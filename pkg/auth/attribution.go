package auth

import (
	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// unknownAttribution is the placeholder for attribution fields the caller
// did not declare and the token does not supply.
const unknownAttribution = "unknown"

// Attribution is the resolved "acting user" for one request: who the work
// is performed for, plus the delegating service when a non-human identity
// acts on a user's behalf.
type Attribution struct {
	// UserID is the effective user identifier.
	UserID string

	// UserEmail is the effective user email.
	UserEmail string

	// UserName is an optional caller-declared display name, passed through
	// untrusted for presentation only.
	UserName string

	// DelegatingService is the authenticated subject that asserted this
	// user identity, preserved for audit. Empty when the caller acts as
	// itself.
	DelegatingService string
}

// ResolveAttribution reconciles a caller-declared identity against the
// authenticated one. It is the single chokepoint preventing identity
// spoofing: every code path that produces a trusted acting user must go
// through it rather than reading claimed headers directly.
//
// Policy:
//
//   - authCtx == nil (authentication disabled): claimed values pass
//     through, defaulting to "unknown", with no delegating service.
//   - Non-delegating identity (federated human): a claimed id or email
//     differing from the token's own is an impersonation attempt, a
//     forbidden outcome since the credential itself was valid. Absent or
//     matching claims resolve to the token's own identity.
//   - Delegating identity (static key, service account): claimed values
//     are accepted as-is as the effective identity, and DelegatingService
//     records the caller's own subject.
//
// Empty claimed strings mean "not declared".
func ResolveAttribution(authCtx *AuthContext, claimedID, claimedEmail string) (Attribution, error) {
	if authCtx == nil {
		return Attribution{
			UserID:    orUnknown(claimedID),
			UserEmail: orUnknown(claimedEmail),
		}, nil
	}

	if authCtx.AllowDelegation {
		delegating := claimedID != "" || claimedEmail != ""

		userID := claimedID
		if userID == "" {
			userID = authCtx.Subject
		}
		userEmail := claimedEmail
		if userEmail == "" {
			userEmail = authCtx.Email
		}
		if userEmail == "" {
			userEmail = "service-account"
		}

		att := Attribution{
			UserID:    userID,
			UserEmail: userEmail,
		}
		if delegating {
			att.DelegatingService = authCtx.Subject
		}
		return att, nil
	}

	// Non-delegating identity: the token claims are authoritative.
	if claimedID != "" && claimedID != authCtx.Subject {
		return Attribution{}, cserr.Newf(cserr.CodeAuthorizationImpersonation,
			"auth: claimed user id %q does not match authenticated subject %q",
			claimedID, authCtx.Subject)
	}
	if claimedEmail != "" && authCtx.Email != "" && claimedEmail != authCtx.Email {
		return Attribution{}, cserr.Newf(cserr.CodeAuthorizationImpersonation,
			"auth: claimed user email %q does not match authenticated email %q",
			claimedEmail, authCtx.Email)
	}

	return Attribution{
		UserID:    authCtx.Subject,
		UserEmail: orUnknown(authCtx.Email),
	}, nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknownAttribution
	}
	return s
}
