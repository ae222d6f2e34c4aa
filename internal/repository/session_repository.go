package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sazardev/hrauth/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `
	id, user_id, ip_address, user_agent, created_at, last_activity_at,
	ended_at, is_active, logout_type`

// SessionStats summarizes the sessions table for the admin overview.
type SessionStats struct {
	Total         int
	Active        int
	Inactive      int
	DistinctUsers int
}

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	const query = `
		INSERT INTO sessions (
			id, user_id, ip_address, user_agent, created_at, last_activity_at,
			is_active, logout_type
		) VALUES (
			$1, $2, $3, $4, $5, $5, TRUE, ''
		)
	`

	_, err := queryable(ctx, r.pool).Exec(ctx, query,
		session.ID,
		session.UserID,
		session.IPAddress,
		session.UserAgent,
		session.CreatedAt,
	)
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (models.Session, error) {
	const query = `SELECT` + sessionColumns + ` FROM sessions WHERE id = $1`
	return r.scanOne(queryable(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string, includeEnded bool) ([]models.Session, error) {
	query := `SELECT` + sessionColumns + ` FROM sessions WHERE user_id = $1`
	if !includeEnded {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := queryable(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *SessionRepository) ListAll(ctx context.Context, limit, offset int) ([]models.Session, error) {
	const query = `SELECT` + sessionColumns + ` FROM sessions ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := queryable(ctx, r.pool).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// Close marks a session ended. Already-closed sessions are left untouched
// and reported via the bool so callers can treat a second close as a no-op.
func (r *SessionRepository) Close(ctx context.Context, id string, endedAt time.Time, logoutType models.LogoutType) (models.Session, bool, error) {
	const query = `
		UPDATE sessions
		SET ended_at = $2, is_active = FALSE, logout_type = $3
		WHERE id = $1 AND is_active
		RETURNING` + sessionColumns

	session, err := r.scanOne(queryable(ctx, r.pool).QueryRow(ctx, query, id, endedAt, logoutType))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return models.Session{}, false, nil
		}
		return models.Session{}, false, err
	}
	return session, true, nil
}

// CloseAllForUser ends every active session of a user except exceptID
// (pass "" to close all). Closed rows are returned for ledger snapshots.
func (r *SessionRepository) CloseAllForUser(ctx context.Context, userID string, endedAt time.Time, logoutType models.LogoutType, exceptID string) ([]models.Session, error) {
	const query = `
		UPDATE sessions
		SET ended_at = $2, is_active = FALSE, logout_type = $3
		WHERE user_id = $1 AND is_active AND id <> $4
		RETURNING` + sessionColumns

	rows, err := queryable(ctx, r.pool).Query(ctx, query, userID, endedAt, logoutType, exceptID)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// CloseOldestOverCap ends the oldest active sessions beyond keep, newest
// kept. Mirrors the per-user session cap applied at login.
func (r *SessionRepository) CloseOldestOverCap(ctx context.Context, userID string, keep int, endedAt time.Time) ([]models.Session, error) {
	const query = `
		UPDATE sessions
		SET ended_at = $3, is_active = FALSE, logout_type = $4
		WHERE id IN (
			SELECT id FROM sessions
			WHERE user_id = $1 AND is_active
			ORDER BY created_at DESC
			OFFSET $2
		)
		RETURNING` + sessionColumns

	rows, err := queryable(ctx, r.pool).Query(ctx, query, userID, keep, endedAt, models.LogoutTypeForced)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// CloseExpired bulk-closes sessions idle since before cutoff. Used by the
// background sweeper; reads apply the same check lazily.
func (r *SessionRepository) CloseExpired(ctx context.Context, cutoff time.Time, endedAt time.Time) ([]models.Session, error) {
	const query = `
		UPDATE sessions
		SET ended_at = $2, is_active = FALSE, logout_type = $3
		WHERE is_active AND last_activity_at < $1
		RETURNING` + sessionColumns

	rows, err := queryable(ctx, r.pool).Query(ctx, query, cutoff, endedAt, models.LogoutTypeExpired)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE sessions SET last_activity_at = $2 WHERE id = $1 AND is_active`
	_, err := queryable(ctx, r.pool).Exec(ctx, query, id, at)
	return err
}

func (r *SessionRepository) Stats(ctx context.Context) (SessionStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE NOT is_active),
			COUNT(DISTINCT user_id)
		FROM sessions
	`

	var stats SessionStats
	row := queryable(ctx, r.pool).QueryRow(ctx, query)
	if err := row.Scan(&stats.Total, &stats.Active, &stats.Inactive, &stats.DistinctUsers); err != nil {
		return SessionStats{}, err
	}
	return stats, nil
}

func (r *SessionRepository) scanOne(row pgx.Row) (models.Session, error) {
	var session models.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.IPAddress,
		&session.UserAgent,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.EndedAt,
		&session.IsActive,
		&session.LogoutType,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

func (r *SessionRepository) scanAll(rows pgx.Rows) ([]models.Session, error) {
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var session models.Session
		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.IPAddress,
			&session.UserAgent,
			&session.CreatedAt,
			&session.LastActivityAt,
			&session.EndedAt,
			&session.IsActive,
			&session.LogoutType,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}
