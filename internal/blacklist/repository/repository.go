package repository

import (
	"context"

	"lms-session-manager/backend/internal/blacklist/domain"
)

// Repository defines durable persistence for blacklist entries.
type Repository interface {
	// Put stores e unless a live entry for the same fingerprint exists.
	Put(ctx context.Context, e *domain.Entry) error
	// Get returns the entry for fingerprint, or nil if not found. Expired entries may be returned.
	Get(ctx context.Context, fingerprint string) (*domain.Entry, error)
}
