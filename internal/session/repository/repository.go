package repository

import (
	"context"
	"time"

	"lms-session-manager/backend/internal/session/domain"
)

// Repository defines durable persistence for sessions. It is the
// authoritative record; the registry cache is advisory.
type Repository interface {
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListActiveByUser returns sessions of userID that are unrevoked and unexpired at now, newest first.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// Revoke marks the session revoked when it belongs to userID. Revoking an already revoked or unknown session is a no-op.
	Revoke(ctx context.Context, id, userID string, at time.Time) error
	// RevokeAllSessionsByUser marks every unrevoked session of userID revoked and returns how many rows changed.
	RevokeAllSessionsByUser(ctx context.Context, userID string, at time.Time) (int64, error)
}
