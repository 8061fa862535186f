// Package session tracks server-side session state: an authoritative durable
// repository fronted by a sharded in-memory cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lms-session-manager/backend/internal/cache"
	"lms-session-manager/backend/internal/session/domain"
	"lms-session-manager/backend/internal/session/repository"
)

// ErrInvalidUserID is returned by Create when userID is empty.
var ErrInvalidUserID = errors.New("session: user id is required")

const (
	defaultSessionTTL   = 7 * 24 * time.Hour
	defaultStoreTimeout = 2 * time.Second
	defaultCacheTTL     = time.Hour
)

// Registry creates, answers liveness for, and revokes sessions.
//
// A cached session is trusted for at most the cache TTL, after which the
// durable store is asked again. That TTL bounds how long a revocation made by
// another instance can go unnoticed here.
type Registry struct {
	repo     repository.Repository
	cache    *cache.Sharded[domain.Session]
	ttl      time.Duration
	cacheTTL time.Duration
	timeout  time.Duration
	nowF     func() time.Time
	shards   int

	// revocations counts completed revokes. A durable read made before a
	// revoke finished must not repopulate the cache.
	revocations atomic.Uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithSessionTTL sets the lifetime of new sessions.
func WithSessionTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithCacheTTL caps how long a session stays cached before the durable store
// is consulted again. It should not exceed the reaper interval.
func WithCacheTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.cacheTTL = d
		}
	}
}

// WithStoreTimeout bounds each durable lookup.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithShards sets the number of cache shards.
func WithShards(n int) Option {
	return func(r *Registry) { r.shards = n }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) {
		if fn != nil {
			r.nowF = fn
		}
	}
}

// NewRegistry returns a Registry over repo.
func NewRegistry(repo repository.Repository, opts ...Option) *Registry {
	r := &Registry{
		repo:    repo,
		ttl:      defaultSessionTTL,
		cacheTTL: defaultCacheTTL,
		timeout:  defaultStoreTimeout,
		nowF:     func() time.Time { return time.Now().UTC() },
		shards:   cache.DefaultShards,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = cache.New[domain.Session](r.shards)
	return r
}

// Create persists a new session for userID and seeds the cache. A durable
// failure is returned and nothing is cached.
func (r *Registry) Create(ctx context.Context, userID string) (*domain.Session, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	now := r.nowF()
	s := &domain.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.repo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	r.cache.Put(s.ID, *s, r.cacheUntil(s, now))
	return s, nil
}

// IsLive reports whether sessionID exists, belongs to userID, is not revoked
// and has not expired. On a cache miss the durable store is consulted and a
// live result repopulates the cache. A durable error yields (false, err).
func (r *Registry) IsLive(ctx context.Context, sessionID, userID string) (bool, error) {
	if sessionID == "" || userID == "" {
		return false, nil
	}
	now := r.nowF()
	if s, ok := r.cache.Get(sessionID, now); ok {
		return s.UserID == userID && s.IsLive(now), nil
	}
	seen := r.revocations.Load()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	s, err := r.repo.GetByID(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("session: lookup: %w", err)
	}
	if s == nil || !s.IsLive(now) {
		return false, nil
	}
	r.cache.PutIfAbsentWhen(s.ID, *s, r.cacheUntil(s, now), now, func() bool {
		return r.revocations.Load() == seen
	})
	return s.UserID == userID, nil
}

// Revoke ends the session when owned by userID. The cached copy is marked
// revoked before the durable write and dropped after it succeeds. When the
// durable write fails the revoked copy stays until its cache expiry. Revoking
// twice is a no-op.
func (r *Registry) Revoke(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return nil
	}
	now := r.nowF()
	r.cache.Update(sessionID, func(s domain.Session) (domain.Session, bool) {
		return markRevoked(s, userID, now)
	})
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.repo.Revoke(ctx, sessionID, userID, now); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	r.revocations.Add(1)
	r.cache.DeleteIf(sessionID, func(s domain.Session) bool { return s.UserID == userID })
	return nil
}

// RevokeAll ends every session of userID. Cached sessions are marked revoked
// first and dropped once the durable write succeeds. Returns the number of
// cached sessions affected.
func (r *Registry) RevokeAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	now := r.nowF()
	n := r.cache.UpdateFunc(func(_ string, s domain.Session) (domain.Session, bool) {
		return markRevoked(s, userID, now)
	})
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := r.repo.RevokeAllSessionsByUser(ctx, userID, now); err != nil {
		return n, fmt.Errorf("session: revoke all: %w", err)
	}
	r.revocations.Add(1)
	r.cache.DeleteFunc(func(_ string, s domain.Session) bool { return s.UserID == userID })
	return n, nil
}

// ListActive returns the user's live sessions from the durable store, newest first.
func (r *Registry) ListActive(ctx context.Context, userID string) ([]domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	list, err := r.repo.ListActiveByUser(ctx, userID, r.nowF())
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	out := make([]domain.Session, 0, len(list))
	for _, s := range list {
		out = append(out, *s)
	}
	return out, nil
}

// Name identifies the registry cache to the reaper.
func (r *Registry) Name() string { return "sessions" }

// Sweep removes cached sessions expired at now. Durable rows are untouched.
func (r *Registry) Sweep(now time.Time) int { return r.cache.Sweep(now) }

// Len returns the number of cached sessions.
func (r *Registry) Len() int { return r.cache.Len() }

func (r *Registry) cacheUntil(s *domain.Session, now time.Time) time.Time {
	if until := now.Add(r.cacheTTL); until.Before(s.ExpiresAt) {
		return until
	}
	return s.ExpiresAt
}

func markRevoked(s domain.Session, userID string, at time.Time) (domain.Session, bool) {
	if s.UserID != userID {
		return s, false
	}
	if s.RevokedAt == nil {
		t := at
		s.RevokedAt = &t
	}
	return s, true
}
