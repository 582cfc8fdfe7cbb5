package auth

import "errors"

// Verification failures. A request carrying a token that fails with one of
// these is unauthenticated.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrKeyNotFound      = errors.New("signing key not found")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrAudienceMismatch = errors.New("token audience mismatch")
)

// ErrKeySourceUnavailable means the key set could not be fetched. It is an
// infrastructure failure and says nothing about the token itself.
var ErrKeySourceUnavailable = errors.New("key source unavailable")

func IsVerificationError(err error) bool {
	return errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrKeyNotFound) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrAudienceMismatch)
}
