package models

import "time"

// Login attempt failure reasons recorded in the audit trail.
const (
	FailureInvalidCredentials = "invalid_credentials"
	FailureAccountDisabled    = "account_disabled"
)

// LoginAttempt is an append-only audit row for one authentication attempt.
// UserID is nil when the email did not match any account.
type LoginAttempt struct {
	ID            string
	Email         string
	UserID        *string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	CreatedAt     time.Time
}
