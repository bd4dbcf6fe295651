package oauth

import "errors"

// Common errors returned by credential operations.
//
// Callers distinguish "run the interactive flow" from "transient problem"
// with errors.Is:
//
//	if errors.Is(err, oauth.ErrReauthorizationRequired) {
//	    // Stored credential is gone for good; run `auth login`.
//	}
var (
	// ErrNoCredential is returned when no credential has been persisted
	// yet and no authorizer is available to obtain one.
	ErrNoCredential = errors.New("no stored credential; authorization required")

	// ErrReauthorizationRequired is returned when the refresh exchange
	// itself failed. The stored credential is removed; only a full
	// interactive authorization can recover.
	ErrReauthorizationRequired = errors.New("credential refresh failed; re-authorization required")

	// ErrAuthorizationDenied is returned when the user declined the
	// authorization request or the callback carried an OAuth error.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrSiteNotFound is returned when the credential grants access to no
	// site matching the configured domain.
	ErrSiteNotFound = errors.New("site not found in accessible resources")
)
