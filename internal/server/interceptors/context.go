package interceptors

import "context"

type contextKey struct{ name string }

var (
	userIDKey      = contextKey{"user_id"}
	sessionIDKey   = contextKey{"session_id"}
	roleKey        = contextKey{"role"}
	permissionsKey = contextKey{"permissions"}
)

// WithIdentity returns a context carrying the authenticated caller.
// Handlers read it back with GetUserID, GetSessionID, GetRole and GetPermissions.
func WithIdentity(ctx context.Context, userID, sessionID, role string, permissions []string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	ctx = context.WithValue(ctx, roleKey, role)
	ctx = context.WithValue(ctx, permissionsKey, append([]string(nil), permissions...))
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

// GetRole returns the caller's role and true if set.
func GetRole(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleKey).(string)
	return v, ok
}

// GetPermissions returns a copy of the caller's permissions and true if set.
func GetPermissions(ctx context.Context) ([]string, bool) {
	v, ok := ctx.Value(permissionsKey).([]string)
	if !ok {
		return nil, false
	}
	return append([]string(nil), v...), true
}

// HasPermission reports whether the caller in ctx holds perm.
func HasPermission(ctx context.Context, perm string) bool {
	v, _ := ctx.Value(permissionsKey).([]string)
	for _, p := range v {
		if p == perm {
			return true
		}
	}
	return false
}
