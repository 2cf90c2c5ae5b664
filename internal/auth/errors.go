// Package auth validates caller bearer tokens and resolves signing keys.
package auth

import "errors"

var (
	// ErrMissingToken is returned when no bearer token was presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidSignature is returned when the token signature does not verify
	// or the token cannot be decoded as a JWT.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned when the token expiry is not in the future.
	ErrTokenExpired = errors.New("token expired")
	// ErrMalformedClaims is returned when a signed token carries claims of the
	// wrong shape.
	ErrMalformedClaims = errors.New("malformed token claims")
	// ErrTokenRevoked is returned when the token id is on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
)

// Reason labels used in audit events and metrics.
const (
	ReasonMissingToken     = "missing_token"
	ReasonInvalidSignature = "invalid_signature"
	ReasonExpired          = "expired"
	ReasonMalformedClaims  = "malformed_claims"
	ReasonRevoked          = "revoked"
	ReasonInternal         = "internal_error"
)

// Reason maps a validation error to a stable label.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingToken):
		return ReasonMissingToken
	case errors.Is(err, ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, ErrInvalidSignature):
		return ReasonInvalidSignature
	case errors.Is(err, ErrMalformedClaims):
		return ReasonMalformedClaims
	case errors.Is(err, ErrTokenRevoked):
		return ReasonRevoked
	default:
		return ReasonInternal
	}
}
