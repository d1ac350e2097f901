// Package validate holds the pure input checks applied before any
// persistence or network call.
package validate

import (
	"regexp"
	"strings"

	"github.com/merkelview/merkel-server/internal/model"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 6

// Field length caps applied to free-text location fields.
const (
	MaxNameLength    = 100
	MaxAddressLength = 200
	MaxCityLength    = 100
	MaxStateLength   = 10
	MaxNotesLength   = 500
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{6,19}$`)
)

// IsValidEmail reports whether s has local@domain.tld shape.
func IsValidEmail(s string) bool {
	return emailRe.MatchString(strings.TrimSpace(s))
}

// IsValidPhone reports whether s looks like a dialable phone number.
// Empty is allowed; phone is an optional profile field.
func IsValidPhone(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	return phoneRe.MatchString(s)
}

// IsValidPassword reports whether the password meets the minimum length.
func IsValidPassword(s string) bool {
	return len(s) >= MinPasswordLength
}

// ValidateCoordinates checks latitude and longitude against geographic ranges.
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return model.NewValidationError("latitude", "must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return model.NewValidationError("longitude", "must be between -180 and 180")
	}
	return nil
}

// ValidateDraft checks the required fields, category membership, coordinate
// ranges and length caps of a location draft. The first failure wins.
func ValidateDraft(draft model.LocationDraft) error {
	if strings.TrimSpace(draft.Name) == "" {
		return model.NewValidationError("name", "required")
	}
	if len(draft.Name) > MaxNameLength {
		return model.NewValidationError("name", "too long")
	}
	if strings.TrimSpace(draft.City) == "" {
		return model.NewValidationError("city", "required")
	}
	if len(draft.City) > MaxCityLength {
		return model.NewValidationError("city", "too long")
	}
	if strings.TrimSpace(draft.State) == "" {
		return model.NewValidationError("state", "required")
	}
	if len(draft.State) > MaxStateLength {
		return model.NewValidationError("state", "too long")
	}
	if strings.TrimSpace(string(draft.Category)) == "" {
		return model.NewValidationError("category", "required")
	}
	if !model.ValidCategory(draft.Category) {
		return model.NewValidationError("category", "not in allowed set")
	}
	if len(draft.Address) > MaxAddressLength {
		return model.NewValidationError("address", "too long")
	}
	if len(draft.Notes) > MaxNotesLength {
		return model.NewValidationError("notes", "too long")
	}
	return ValidateCoordinates(draft.Latitude, draft.Longitude)
}
