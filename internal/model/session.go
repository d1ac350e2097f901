package model

import (
	"strings"

	"github.com/google/uuid"
)

// Session is the signed-in identity handle handed to the auth flow and UI
// layers. It carries only what the presentation side needs; the full user
// row stays behind the UserStore.
type Session struct {
	UserID        uuid.UUID
	Email         string
	EmailVerified bool
	DisplayName   string
}

// NewSession derives a Session from a user. The display name falls back to
// the local part of the email when the profile has none.
func NewSession(user User) Session {
	name := user.DisplayName
	if name == "" {
		if at := strings.Index(user.Email, "@"); at > 0 {
			name = user.Email[:at]
		} else {
			name = user.Email
		}
	}
	return Session{
		UserID:        user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		DisplayName:   name,
	}
}
