package domain

import "time"

// Session is the server-side record bound to one access/refresh token pair.
// ExpiresAt matches the refresh token expiry.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time // nil when not revoked
}

// IsLive reports whether the session is neither revoked nor expired at now.
func (s *Session) IsLive(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
