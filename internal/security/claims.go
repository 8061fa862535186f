package security

import (
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the closed set of account roles carried in access tokens.
type Role string

const (
	RoleLearner       Role = "learner"
	RoleInstructor    Role = "instructor"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleLearner, RoleInstructor, RoleAdministrator:
		return true
	default:
		return false
	}
}

// TokenType distinguishes access from refresh tokens inside the payload.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// AccessClaims holds JWT claims for the short-lived access token.
// Subject is the user id.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email       string    `json:"email,omitempty"`
	Role        Role      `json:"role"`
	SessionID   string    `json:"sid"`
	Permissions []string  `json:"permissions"`
	TokenType   TokenType `json:"token_type"`
}

// UserID returns the subject claim.
func (c *AccessClaims) UserID() string { return c.Subject }

// RefreshClaims holds the narrower claim set of the long-lived refresh token.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string    `json:"sid"`
	TokenType TokenType `json:"token_type"`
}

// UserID returns the subject claim.
func (c *RefreshClaims) UserID() string { return c.Subject }

// NormalizePermissions trims, de-duplicates and sorts permission names.
// Empty names are dropped. Returns an empty, non-nil slice for no permissions.
func NormalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
