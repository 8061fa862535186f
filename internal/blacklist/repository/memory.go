package repository

import (
	"context"
	"sync"

	"lms-session-manager/backend/internal/blacklist/domain"
)

// MemoryRepository is an in-process Repository for local runs without a
// database and for tests.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]domain.Entry
}

// NewMemoryRepository returns an empty in-memory blacklist repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]domain.Entry)}
}

// Put stores e unless a live entry for the fingerprint exists.
func (r *MemoryRepository) Put(ctx context.Context, e *domain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.m[e.Fingerprint]; ok && !cur.IsExpired(e.BlacklistedAt) {
		return nil
	}
	r.m[e.Fingerprint] = *e
	return nil
}

// Get returns a copy of the entry for fingerprint, or nil if not found.
func (r *MemoryRepository) Get(ctx context.Context, fingerprint string) (*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.m[fingerprint]
	if !ok {
		return nil, nil
	}
	return &e, nil
}
