package token

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "lms-session-manager/internal/token"

type instruments struct {
	validations metric.Int64Counter
	issued      metric.Int64Counter
	revocations metric.Int64Counter
	evicted     metric.Int64Counter
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	m := mp.Meter(instrumentationName)
	validations, err := m.Int64Counter("token.validations",
		metric.WithDescription("Token validations by result (valid or the rejection kind)."))
	if err != nil {
		return nil, err
	}
	issued, err := m.Int64Counter("token.issued",
		metric.WithDescription("Access/refresh token pairs issued."))
	if err != nil {
		return nil, err
	}
	revocations, err := m.Int64Counter("token.revocations",
		metric.WithDescription("Revocations by kind (logout, revoke_all)."))
	if err != nil {
		return nil, err
	}
	evicted, err := m.Int64Counter("reaper.evicted",
		metric.WithDescription("Expired cache entries removed by the reaper, by cache."))
	if err != nil {
		return nil, err
	}
	return &instruments{validations: validations, issued: issued, revocations: revocations, evicted: evicted}, nil
}

func (i *instruments) recordValidation(ctx context.Context, tokenType string, r ValidationResult) {
	result := "valid"
	if !r.Valid {
		result = string(r.Kind)
	}
	i.validations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("token_type", tokenType),
	))
}

func (i *instruments) recordRevocation(ctx context.Context, kind string, n int) {
	i.revocations.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}

func (i *instruments) recordEvictions(evicted map[string]int) {
	for name, n := range evicted {
		if n > 0 {
			i.evicted.Add(context.Background(), int64(n), metric.WithAttributes(attribute.String("cache", name)))
		}
	}
}
