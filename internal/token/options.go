package token

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"lms-session-manager/backend/internal/telemetry"
)

const (
	// DefaultAccessTTL is the lifetime of access tokens.
	DefaultAccessTTL = 12 * time.Hour
	// DefaultRefreshTTL is the lifetime of refresh tokens and of the session they are bound to.
	DefaultRefreshTTL = 7 * 24 * time.Hour
	// DefaultStoreTimeout bounds each account lookup.
	DefaultStoreTimeout = 2 * time.Second
)

// Option configures a Service.
type Option func(*Service)

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL sets the expiry stamped on unreadable tokens blacklisted at
// logout. It should match the session registry's session lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithReaperInterval sets the cache sweep period.
func WithReaperInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.reaperInterval = d
		}
	}
}

// WithStoreTimeout bounds each account lookup against the user directory.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithClock overrides the time source used for expiry checks and issuance.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowF = fn
		}
	}
}

// WithEmitter sends lifecycle events to e.
func WithEmitter(e telemetry.EventEmitter) Option {
	return func(s *Service) { s.emitter = e }
}

// WithMeterProvider overrides the global MeterProvider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		if mp != nil {
			s.meterProvider = mp
		}
	}
}

// WithTracerProvider overrides the global TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracerProvider = tp
		}
	}
}
