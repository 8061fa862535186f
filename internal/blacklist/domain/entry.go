package domain

import "time"

// Entry records one revoked token by fingerprint. ExpiresAt is the token's
// own expiry; after it the entry carries no information and may be dropped.
type Entry struct {
	Fingerprint   string    `json:"fingerprint"`
	UserID        string    `json:"user_id"`
	Reason        string    `json:"reason"`
	BlacklistedAt time.Time `json:"blacklisted_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// IsExpired reports whether the entry's token has expired at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
