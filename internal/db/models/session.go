// Package models - session.go defines the Session model for bearer-token login
// sessions with origin metadata and expiry.
package models

import "time"

// Session represents an issued login session
type Session struct {
	ID        string
	UserID    string
	Token     string
	IPAddress string
	UserAgent string
	IsActive  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsValid reports whether the session may still authorize requests. Expired
// sessions must not authenticate even before they are purged.
func (s *Session) IsValid(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}
