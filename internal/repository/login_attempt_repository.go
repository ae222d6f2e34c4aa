package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sazardev/hrauth/internal/models"
)

// AttemptFilter narrows the admin login-attempt listing. Zero values mean
// no filtering on that field.
type AttemptFilter struct {
	Email   string
	IP      string
	Success *bool
	From    time.Time
	To      time.Time
	Limit   int
	Offset  int
}

type LoginAttemptRepository struct {
	pool *pgxpool.Pool
}

func NewLoginAttemptRepository(pool *pgxpool.Pool) *LoginAttemptRepository {
	return &LoginAttemptRepository{pool: pool}
}

func (r *LoginAttemptRepository) Create(ctx context.Context, attempt models.LoginAttempt) error {
	const query = `
		INSERT INTO login_attempts (
			id, email, ip_address, user_agent, success, failure_reason, attempted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := queryable(ctx, r.pool).Exec(ctx, query,
		attempt.ID,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.AttemptedAt,
	)
	return err
}

func (r *LoginAttemptRepository) List(ctx context.Context, filter AttemptFilter) ([]models.LoginAttempt, error) {
	query := `
		SELECT id, email, ip_address, user_agent, success, failure_reason, attempted_at
		FROM login_attempts
		WHERE 1=1`
	args := []any{}

	if filter.Email != "" {
		args = append(args, filter.Email)
		query += fmt.Sprintf(" AND email = $%d", len(args))
	}
	if filter.IP != "" {
		args = append(args, filter.IP)
		query += fmt.Sprintf(" AND ip_address = $%d", len(args))
	}
	if filter.Success != nil {
		args = append(args, *filter.Success)
		query += fmt.Sprintf(" AND success = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND attempted_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND attempted_at < $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY attempted_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := queryable(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.LoginAttempt
	for rows.Next() {
		var attempt models.LoginAttempt
		if err := rows.Scan(
			&attempt.ID,
			&attempt.Email,
			&attempt.IPAddress,
			&attempt.UserAgent,
			&attempt.Success,
			&attempt.FailureReason,
			&attempt.AttemptedAt,
		); err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// DeleteOlderThan prunes attempts past the retention window. Only the
// background sweeper calls this; request paths never delete audit rows.
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM login_attempts WHERE attempted_at < $1`
	cmd, err := queryable(ctx, r.pool).Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
