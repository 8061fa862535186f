package otel

import (
	"context"
	"strconv"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"lms-session-manager/backend/internal/telemetry"
)

const lifecycleLoggerName = "lms.session-manager.lifecycle"

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(lifecycleLoggerName))
}

// NewEventEmitterWithLogger returns an EventEmitter writing to logger.
func NewEventEmitterWithLogger(logger otellog.Logger) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.Event) error { return nil }

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the event to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetEventName(string(event.Type))
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(string(event.Type)))
	if !event.OccurredAt.IsZero() {
		rec.SetTimestamp(event.OccurredAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	addString(&rec, "event_type", string(event.Type))
	addString(&rec, "user_id", event.UserID)
	addString(&rec, "session_id", event.SessionID)
	addString(&rec, "reason", event.Reason)
	addString(&rec, "fingerprint", event.Fingerprint)
	if event.Count > 0 {
		rec.AddAttributes(otellog.String("count", strconv.Itoa(event.Count)))
	}
	for k, v := range event.Attributes {
		addString(&rec, k, v)
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func addString(rec *otellog.Record, key, value string) {
	if value != "" {
		rec.AddAttributes(otellog.String(key, value))
	}
}
