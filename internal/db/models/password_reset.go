package models

import "time"

// PasswordResetToken represents a single-use password reset token. A token is
// permanently invalid once Used is set, even before expiry.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Token     string
	Used      bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsUsable reports whether the token can still redeem a password reset.
func (t *PasswordResetToken) IsUsable(now time.Time) bool {
	return !t.Used && t.ExpiresAt.After(now)
}
