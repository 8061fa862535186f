package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"lms-session-manager/backend/internal/token"
)

const bearerPrefix = "bearer "

// Validator checks access tokens. *token.Service implements it.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) token.ValidationResult
}

// AuthUnary returns a unary server interceptor that validates the Bearer (access) token
// from gRPC metadata and sets user_id, session_id, role and permissions in context for
// protected RPCs. publicMethods is the set of full method names that do not require a
// Bearer token (e.g. the gRPC health check). A public call with a bad token proceeds
// without identity.
func AuthUnary(v Validator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		bearer := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if bearer == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		res := v.ValidateAccess(ctx, bearer)
		if !res.Valid {
			if public {
				return handler(ctx, req)
			}
			if res.Kind == token.KindExpired {
				return nil, status.Error(codes.Unauthenticated, "access token expired")
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		c := res.Claims
		ctx = WithIdentity(ctx, c.UserID(), c.SessionID, string(c.Role), c.Permissions)
		return handler(ctx, req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
