// Package blacklist records revoked tokens by fingerprint until their
// natural expiry. Lookups go to an in-memory cache first and fall back to
// the durable repository.
package blacklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lms-session-manager/backend/internal/blacklist/domain"
	"lms-session-manager/backend/internal/blacklist/repository"
	"lms-session-manager/backend/internal/cache"
)

// ErrEmptyFingerprint is returned by Add when no fingerprint is given.
var ErrEmptyFingerprint = errors.New("blacklist: fingerprint is required")

const defaultStoreTimeout = 2 * time.Second

// Store is the two-tier blacklist.
type Store struct {
	repo    repository.Repository
	cache   *cache.Sharded[domain.Entry]
	timeout time.Duration
	nowF    func() time.Time
	shards  int
}

// Option configures a Store.
type Option func(*Store)

// WithStoreTimeout bounds each durable call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithShards sets the number of cache shards.
func WithShards(n int) Option {
	return func(s *Store) { s.shards = n }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowF = fn
		}
	}
}

// NewStore returns a Store over repo.
func NewStore(repo repository.Repository, opts ...Option) *Store {
	s := &Store{
		repo:    repo,
		timeout: defaultStoreTimeout,
		nowF:    func() time.Time { return time.Now().UTC() },
		shards:  cache.DefaultShards,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = cache.New[domain.Entry](s.shards)
	return s
}

// Add blacklists fingerprint until expiresAt. The first live entry for a
// fingerprint wins; later reasons and expiries are ignored. The cache is
// updated before the durable write, so this instance rejects the token even
// when the returned durable error is non-nil. A token already expired at the
// time of the call is not recorded.
func (s *Store) Add(ctx context.Context, fingerprint, userID, reason string, expiresAt time.Time) error {
	if fingerprint == "" {
		return ErrEmptyFingerprint
	}
	now := s.nowF()
	if !now.Before(expiresAt) {
		return nil
	}
	e := domain.Entry{
		Fingerprint:   fingerprint,
		UserID:        userID,
		Reason:        reason,
		BlacklistedAt: now,
		ExpiresAt:     expiresAt,
	}
	s.cache.PutIfAbsent(fingerprint, e, expiresAt, now)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Put(ctx, &e); err != nil {
		return fmt.Errorf("blacklist: put: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether fingerprint has a live entry. An expired
// cached entry counts as absent and is evicted. A cache miss consults the
// durable store; a live durable entry repopulates the cache. A durable
// error is returned with false; callers must treat it as rejection.
func (s *Store) IsBlacklisted(ctx context.Context, fingerprint string) (bool, error) {
	now := s.nowF()
	if _, ok := s.cache.Get(fingerprint, now); ok {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	e, err := s.repo.Get(ctx, fingerprint)
	if err != nil {
		return false, fmt.Errorf("blacklist: lookup: %w", err)
	}
	if e == nil || e.IsExpired(now) {
		return false, nil
	}
	s.cache.PutIfAbsent(fingerprint, *e, e.ExpiresAt, now)
	return true, nil
}

// Name identifies the blacklist cache to the reaper.
func (s *Store) Name() string { return "blacklist" }

// Sweep removes cached entries expired at now. Durable records are untouched.
func (s *Store) Sweep(now time.Time) int { return s.cache.Sweep(now) }

// Len returns the number of cached entries.
func (s *Store) Len() int { return s.cache.Len() }
