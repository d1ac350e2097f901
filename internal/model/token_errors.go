package model

import "errors"

var (
	// ErrTokenRevoked is returned when a presented refresh token was revoked.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenExpired is returned when a presented refresh token expired.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMismatch is returned when the presented token does not match
	// the stored hash for its JTI.
	ErrTokenMismatch = errors.New("token mismatch")
)
