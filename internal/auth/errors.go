// Package auth implements the authorization core: the signed-token codec,
// the identity resolver, and the gate that composes them. HTTP concerns
// (headers, cookies, status codes) stay in the middleware and handler
// packages; everything here works on decoded claims and store interfaces.
package auth

import "errors"

// Negative-authentication outcomes. These are terminal for the request:
// the gate never retries them, and only OptionalAuth is allowed to collapse
// them into "no identity".
var (
	// ErrInvalidToken covers malformed input, bad signatures and unexpected
	// signing algorithms.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token's exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")

	// ErrWrongTokenKind is returned when an access token is presented where
	// a refresh token is required, or vice versa.
	ErrWrongTokenKind = errors.New("wrong token kind")

	// ErrMalformedToken is returned when the sub claim is missing or not a
	// numeric user id.
	ErrMalformedToken = errors.New("malformed token subject")

	// ErrTokenRevoked is returned when the token's jti is present in the
	// blacklist.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrUnknownIdentity is returned when no live (non-deleted) user matches
	// the token subject.
	ErrUnknownIdentity = errors.New("unknown identity")
)

// IsAuthFailure reports whether err is one of the enumerated
// negative-authentication outcomes above. Infrastructure failures (store
// unreachable, context cancelled) return false and must propagate.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrWrongTokenKind) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrUnknownIdentity)
}
