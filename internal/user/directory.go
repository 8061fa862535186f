// Package user answers account-liveness questions for token validation.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"lms-session-manager/backend/internal/user/domain"
)

// Directory reports whether an account is active. A missing account is
// (false, nil).
type Directory interface {
	IsActive(ctx context.Context, userID string) (bool, error)
}

const getUserStatusSQL = `select status from users where id = $1`

// PostgresDirectory reads account status from the users table owned by the
// account service.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory returns a Directory over db.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// IsActive returns true only when the user exists with status active.
func (d *PostgresDirectory) IsActive(ctx context.Context, userID string) (bool, error) {
	var status string
	err := d.db.QueryRowContext(ctx, getUserStatusSQL, userID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return domain.Status(status).IsActive(), nil
}

// CachedDirectory remembers positive answers from next for ttl. Negative
// answers and errors are never cached, so a deactivated account is rejected
// no later than ttl after the change.
type CachedDirectory struct {
	next  Directory
	ttl   time.Duration
	cache *ristretto.Cache[string, bool]
}

// NewCachedDirectory wraps next with a ristretto cache holding up to
// maxEntries active users.
func NewCachedDirectory(next Directory, ttl time.Duration, maxEntries int64) (*CachedDirectory, error) {
	if maxEntries <= 0 {
		maxEntries = 100_000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, bool]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// Cost is one per entry.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("user: init directory cache: %w", err)
	}
	return &CachedDirectory{next: next, ttl: ttl, cache: c}, nil
}

// IsActive answers from the cache when possible, otherwise from next.
func (d *CachedDirectory) IsActive(ctx context.Context, userID string) (bool, error) {
	if _, ok := d.cache.Get(userID); ok {
		return true, nil
	}
	active, err := d.next.IsActive(ctx, userID)
	if err != nil {
		return false, err
	}
	if active {
		d.cache.SetWithTTL(userID, true, 1, d.ttl)
	}
	return active, nil
}

// Invalidate drops any cached answer for userID.
func (d *CachedDirectory) Invalidate(userID string) {
	d.cache.Del(userID)
}

// Close releases the cache's background goroutines.
func (d *CachedDirectory) Close() {
	d.cache.Close()
}

// StaticDirectory is an in-memory Directory for local runs and tests.
type StaticDirectory struct {
	mu       sync.RWMutex
	statuses map[string]domain.Status
}

// NewStaticDirectory returns a directory where every listed id is active.
func NewStaticDirectory(activeIDs ...string) *StaticDirectory {
	d := &StaticDirectory{statuses: make(map[string]domain.Status)}
	for _, id := range activeIDs {
		d.statuses[id] = domain.StatusActive
	}
	return d
}

// Set records the status of userID.
func (d *StaticDirectory) Set(userID string, status domain.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[userID] = status
}

// IsActive reports whether userID is known and active.
func (d *StaticDirectory) IsActive(ctx context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.statuses[userID].IsActive(), nil
}
