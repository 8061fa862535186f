// Package server builds the gRPC edge of the session manager.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"lms-session-manager/backend/internal/server/interceptors"
	"lms-session-manager/backend/internal/telemetry"
)

// Deps holds the dependencies of the gRPC server.
type Deps struct {
	// Validator checks Bearer tokens on protected RPCs. Required.
	Validator interceptors.Validator
	// Emitter receives an rpc.completed event per RPC. If nil, no RPC events are emitted.
	Emitter telemetry.EventEmitter
	// PublicMethods are full method names callable without a token, in addition to the health check.
	PublicMethods []string
	// Reflection registers the gRPC reflection service for tooling such as grpcurl.
	Reflection bool
}

// publicMethods returns the full method names that skip authentication.
func (d Deps) publicMethods() map[string]bool {
	m := map[string]bool{
		healthpb.Health_Check_FullMethodName: true,
		healthpb.Health_Watch_FullMethodName: true,
	}
	for _, name := range d.PublicMethods {
		m[name] = true
	}
	return m
}

// NewGRPCServer returns a gRPC server with OpenTelemetry instrumentation, the
// auth and telemetry interceptors installed, and the standard health service
// registered and reporting SERVING. extra options are appended.
//
// Interceptor order: auth runs first so the telemetry interceptor sees the
// caller identity.
func NewGRPCServer(deps Deps, extra ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	public := deps.publicMethods()
	skip := map[string]bool{
		healthpb.Health_Check_FullMethodName: true,
		healthpb.Health_Watch_FullMethodName: true,
	}
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AuthUnary(deps.Validator, public),
			interceptors.TelemetryUnary(deps.Emitter, skip),
		),
	}
	s := grpc.NewServer(append(opts, extra...)...)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if deps.Reflection {
		reflection.Register(s)
	}
	return s, hs
}
