package repository

import (
	"context"
	"database/sql"
	"errors"

	"lms-session-manager/backend/internal/blacklist/domain"
)

const (
	// An existing row wins unless its token has already expired.
	putEntrySQL = `insert into token_blacklist (fingerprint, user_id, reason, blacklisted_at, expires_at)
values ($1, $2, $3, $4, $5)
on conflict (fingerprint) do update
set user_id = excluded.user_id, reason = excluded.reason,
    blacklisted_at = excluded.blacklisted_at, expires_at = excluded.expires_at
where token_blacklist.expires_at <= excluded.blacklisted_at`

	getEntrySQL = `select fingerprint, user_id, reason, blacklisted_at, expires_at
from token_blacklist where fingerprint = $1`
)

// PostgresRepository stores entries in the token_blacklist table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a blacklist repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Put inserts e. A conflicting live row is left unchanged.
func (r *PostgresRepository) Put(ctx context.Context, e *domain.Entry) error {
	_, err := r.db.ExecContext(ctx, putEntrySQL, e.Fingerprint, e.UserID, e.Reason, e.BlacklistedAt, e.ExpiresAt)
	return err
}

// Get returns the entry for fingerprint, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, fingerprint string) (*domain.Entry, error) {
	var e domain.Entry
	err := r.db.QueryRowContext(ctx, getEntrySQL, fingerprint).
		Scan(&e.Fingerprint, &e.UserID, &e.Reason, &e.BlacklistedAt, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
