package session

import "errors"

var (
	// ErrInvalidSignature is returned when the signature or signing algorithm does not verify.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrExpired is returned when a correctly signed token is past its expiry.
	ErrExpired = errors.New("token expired")

	// ErrMalformed is returned when the token is not a well-formed notebox token.
	ErrMalformed = errors.New("malformed token")

	// ErrUserNotFound is returned by Refresh when the subject no longer exists.
	ErrUserNotFound = errors.New("user not found")

	// ErrAccountDisabled is returned by Refresh when the subject has been suspended.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)

// IsTokenError reports whether err came from token validation rather than from a lookup.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrExpired) || errors.Is(err, ErrMalformed)
}
