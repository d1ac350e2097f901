package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when the requested entity does not exist
// or is not visible to the caller.
var ErrNotFound = errors.New("not found")

// ErrorKind classifies an APIError for transport mapping and metrics.
type ErrorKind string

const (
	// KindValidation is bad or missing input; never reaches a network call.
	KindValidation ErrorKind = "validation"
	// KindAuth is an identity-provider rejection, subdivided by Code.
	KindAuth ErrorKind = "auth"
	// KindPersistence is a database operation that failed after retries.
	KindPersistence ErrorKind = "persistence"
	// KindUpload is a photo validation or blob upload failure.
	KindUpload ErrorKind = "upload"
	// KindGeocode is an address-not-found or geocoder-unavailable failure.
	KindGeocode ErrorKind = "geocode"
	// KindPermission is a backing-service access rule rejection.
	KindPermission ErrorKind = "permission"
)

// Auth failure codes. The user-facing message for each is fixed; unmapped
// provider codes fall back to the raw error text.
const (
	CodeWrongCredentials = "WRONG_CREDENTIALS"
	CodeUnknownAccount   = "UNKNOWN_ACCOUNT"
	CodeAccountDisabled  = "ACCOUNT_DISABLED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeWeakPassword     = "WEAK_PASSWORD"
	CodeEmailTaken       = "EMAIL_TAKEN"
	CodeBadCredentialKey = "BAD_CREDENTIAL_KEY"
)

// APIError is the unified error surfaced to clients: a kind for transport
// mapping, a stable code, and a human-readable message.
type APIError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewValidationError creates a validation error for the named field.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    "INVALID_" + field,
		Message: fmt.Sprintf("invalid %s: %s", field, reason),
	}
}

// NewAuthError creates an auth error with a fixed user-facing message per code.
func NewAuthError(code string) *APIError {
	messages := map[string]string{
		CodeWrongCredentials: "incorrect email or password",
		CodeUnknownAccount:   "no account exists for this email",
		CodeAccountDisabled:  "this account has been disabled",
		CodeRateLimited:      "too many attempts, try again later",
		CodeWeakPassword:     "password must be at least 6 characters",
		CodeEmailTaken:       "an account already exists for this email",
		CodeBadCredentialKey: "service credentials are misconfigured",
	}
	msg, ok := messages[code]
	if !ok {
		msg = "authentication failed"
	}
	return &APIError{Kind: KindAuth, Code: code, Message: msg}
}

// NewPersistenceError wraps a database failure that survived all retries.
func NewPersistenceError(op string, err error) *APIError {
	return &APIError{
		Kind:    KindPersistence,
		Code:    "PERSISTENCE_FAILED",
		Message: fmt.Sprintf("%s failed: %v", op, err),
	}
}

// NewUploadError creates a photo validation/upload error.
func NewUploadError(reason string) *APIError {
	return &APIError{
		Kind:    KindUpload,
		Code:    "UPLOAD_FAILED",
		Message: reason,
	}
}

// NewGeocodeError creates an address lookup error.
func NewGeocodeError(reason string) *APIError {
	return &APIError{
		Kind:    KindGeocode,
		Code:    "GEOCODE_FAILED",
		Message: reason,
	}
}

// NewPermissionError creates an access rule rejection error.
func NewPermissionError(reason string) *APIError {
	return &APIError{
		Kind:    KindPermission,
		Code:    "PERMISSION_DENIED",
		Message: reason,
	}
}
