// Package producer ships lifecycle events to an external broker (Kafka).
package producer

import (
	"context"

	"lms-session-manager/backend/internal/telemetry"
)

// Producer emits lifecycle events. Callers use it best-effort: log and ignore errors.
// Every Producer is also a telemetry.EventEmitter.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, event *telemetry.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
