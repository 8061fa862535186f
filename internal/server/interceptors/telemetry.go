package interceptors

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"lms-session-manager/backend/internal/telemetry"
)

// TelemetryUnary returns a unary server interceptor that emits an rpc.completed event after each RPC.
// Best-effort: emission runs asynchronously and failures are logged. If emitter is nil, the interceptor no-ops.
// skipMethods is the set of full method names to not emit (e.g. the health check).
func TelemetryUnary(emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		userID, _ := GetUserID(ctx)
		sessionID, _ := GetSessionID(ctx)
		telemetry.EmitAsync(emitter, &telemetry.Event{
			Type:      telemetry.EventRPCCompleted,
			UserID:    userID,
			SessionID: sessionID,
			Attributes: map[string]string{
				"full_method": info.FullMethod,
				"status_code": status.Code(err).String(),
				"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
				"client_ip":   ClientIP(ctx),
			},
		})
		return resp, err
	}
}
