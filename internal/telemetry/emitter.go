package telemetry

import (
	"context"
	"errors"
	"time"
)

// EventType names a credential lifecycle event.
type EventType string

const (
	EventSessionCreated    EventType = "session.created"
	EventTokenRevoked      EventType = "token.revoked"
	EventSessionsRevokeAll EventType = "sessions.revoked_all"
	EventRPCCompleted      EventType = "rpc.completed"
)

// Event is one lifecycle record. Raw tokens never appear here; Fingerprint
// holds a truncated fingerprint at most.
type Event struct {
	Type        EventType         `json:"type"`
	UserID      string            `json:"user_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Count       int               `json:"count,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// EventEmitter emits lifecycle events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Multi returns an EventEmitter that sends every event to each non-nil emitter.
// All emitters are tried; their errors are joined.
func Multi(emitters ...EventEmitter) EventEmitter {
	out := make(multiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multiEmitter []EventEmitter

func (m multiEmitter) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
