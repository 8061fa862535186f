package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lms-session-manager/backend/internal/session/domain"
)

const (
	sessionColumns = `id, user_id, created_at, expires_at, revoked_at`

	getSessionSQL = `select ` + sessionColumns + ` from sessions where id = $1`

	listActiveSessionsSQL = `select ` + sessionColumns + ` from sessions
where user_id = $1 and revoked_at is null and expires_at > $2
order by created_at desc`

	createSessionSQL = `insert into sessions (id, user_id, created_at, expires_at, revoked_at)
values ($1, $2, $3, $4, $5)`

	revokeSessionSQL = `update sessions set revoked_at = $3
where id = $1 and user_id = $2 and revoked_at is null`

	revokeAllSessionsSQL = `update sessions set revoked_at = $2
where user_id = $1 and revoked_at is null`
)

// PostgresRepository stores sessions in the sessions table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, getSessionSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListActiveByUser returns live sessions of the user, newest first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, listActiveSessionsSQL, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, createSessionSQL,
		s.ID, s.UserID, s.CreatedAt, s.ExpiresAt, timeToNullTime(s.RevokedAt))
	return err
}

// Revoke marks the session as revoked if it is owned by userID and not already revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, id, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, revokeSessionSQL, id, userID, at)
	return err
}

// RevokeAllSessionsByUser revokes all live sessions for the given user.
func (r *PostgresRepository) RevokeAllSessionsByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, revokeAllSessionsSQL, userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s         domain.Session
		revokedAt sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &revokedAt); err != nil {
		return nil, err
	}
	s.RevokedAt = nullTimeToPtr(revokedAt)
	return &s, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
