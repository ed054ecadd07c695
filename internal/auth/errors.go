package auth

import (
	"errors"
	"fmt"
)

// Sentinel authentication errors. Handlers translate these into user-facing
// messages that never reveal whether an email is registered.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned while locked_until is in the future. Attempts
	// against a locked account carry no penalty and record nothing.
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountDisabled is returned when the password matched but is_active is false.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrInvalidOrExpiredToken is returned for reset tokens that are unknown,
	// already used, or past expiry.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// ErrEmailTaken is returned on registration with an already-registered email.
	ErrEmailTaken = errors.New("email already registered")
)

// ValidationError reports missing or malformed input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
