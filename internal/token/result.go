package token

import (
	"time"

	"lms-session-manager/backend/internal/security"
)

// ErrorKind says why a credential was rejected.
type ErrorKind string

const (
	KindMalformed        ErrorKind = "malformed"
	KindInvalidSignature ErrorKind = "invalid_signature"
	KindExpired          ErrorKind = "expired"
	KindBlacklisted      ErrorKind = "blacklisted"
	KindSessionRevoked   ErrorKind = "session_revoked"
	KindAccountInactive  ErrorKind = "account_inactive"
)

// ValidationResult is the verdict on a presented token. Valid results carry
// the decoded claims (Claims for access tokens, Refresh for refresh tokens)
// and an empty Kind; invalid results carry Kind and no claims.
type ValidationResult struct {
	Valid   bool
	Claims  *security.AccessClaims
	Refresh *security.RefreshClaims
	Kind    ErrorKind
}

func reject(kind ErrorKind) ValidationResult {
	return ValidationResult{Kind: kind}
}

// Identity is the authenticated principal tokens are issued for.
type Identity struct {
	UserID      string
	Email       string
	Role        security.Role
	Permissions []string
}

// TokenPair is the result of a successful issuance. Both tokens are bound to SessionID.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// SessionInfo describes one live session of a user.
type SessionInfo struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
}
