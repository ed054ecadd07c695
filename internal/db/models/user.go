// Package models - user.go defines the User model for console accounts with
// credential, lockout, and API key state, plus profile and quota fields.
package models

import "time"

// User represents a console account
type User struct {
	ID                  string
	Email               string
	Name                string
	PasswordHash        string
	IsAdmin             bool
	IsActive            bool
	EmailVerified       bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLogin           *time.Time
	APIKey              *string
	APIKeyCreatedAt     *time.Time
	AvatarURL           string
	Bio                 string
	Timezone            string
	Language            string
	APIQuotaDaily       int
	APIQuotaMonthly     int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether the account is currently locked out. A lock in the
// past counts as expired and does not block login.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
