package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"lms-session-manager/backend/internal/session/domain"
)

// MemoryRepository is an in-process Repository for local runs without a
// database and for tests. State is lost on restart.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]*domain.Session
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Session)}
}

// GetByID returns a copy of the session for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

// ListActiveByUser returns live sessions of userID at now, newest first.
func (r *MemoryRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.m {
		if s.UserID == userID && s.IsLive(now) {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Create stores a copy of s.
func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[s.ID] = copySession(s)
	return nil
}

// Revoke marks the session revoked when owned by userID and still unrevoked.
func (r *MemoryRepository) Revoke(ctx context.Context, id, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && s.UserID == userID && s.RevokedAt == nil {
		t := at
		s.RevokedAt = &t
	}
	return nil
}

// RevokeAllSessionsByUser marks every unrevoked session of userID revoked.
func (r *MemoryRepository) RevokeAllSessionsByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.m {
		if s.UserID == userID && s.RevokedAt == nil {
			t := at
			s.RevokedAt = &t
			n++
		}
	}
	return n, nil
}

func copySession(s *domain.Session) *domain.Session {
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
