package model

import "github.com/google/uuid"

// ActionPurpose discriminates single-purpose email action tokens.
type ActionPurpose string

const (
	// ActionVerifyEmail confirms ownership of a registered address.
	ActionVerifyEmail ActionPurpose = "verify_email"
	// ActionResetPassword authorizes a password reset.
	ActionResetPassword ActionPurpose = "reset_password"
)

// TokenManager generates and validates access, refresh and email action tokens.
type TokenManager interface {
	GenerateAccessToken(userID uuid.UUID) (string, error)
	GenerateRefreshToken(userID uuid.UUID) (token string, jti string, err error)
	ParseAccessToken(token string) (uuid.UUID, error)
	ParseRefreshToken(token string) (userID uuid.UUID, jti string, err error)
	GenerateActionToken(userID uuid.UUID, purpose ActionPurpose) (string, error)
	ParseActionToken(token string, purpose ActionPurpose) (uuid.UUID, error)
}
