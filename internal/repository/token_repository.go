package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sazardev/hrauth/internal/models"
)

var ErrTokenNotFound = errors.New("token not found")

const tokenColumns = `id, user_id, session_id, token_hash, created_at, expires_at`

type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Create(ctx context.Context, token models.Token) error {
	const query = `
		INSERT INTO tokens (id, user_id, session_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := queryable(ctx, r.pool).Exec(ctx, query,
		token.ID,
		token.UserID,
		token.SessionID,
		token.TokenHash,
		token.CreatedAt,
		token.ExpiresAt,
	)
	return err
}

func (r *TokenRepository) FindByHash(ctx context.Context, hash []byte) (models.Token, error) {
	const query = `SELECT ` + tokenColumns + ` FROM tokens WHERE token_hash = $1`
	return r.scanOne(queryable(ctx, r.pool).QueryRow(ctx, query, hash))
}

func (r *TokenRepository) DeleteByHash(ctx context.Context, hash []byte) error {
	const query = `DELETE FROM tokens WHERE token_hash = $1`
	cmd, err := queryable(ctx, r.pool).Exec(ctx, query, hash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// DeleteBySession removes the tokens bound to one session. Deleted rows are
// returned so callers can invalidate cache entries and write ledger rows.
func (r *TokenRepository) DeleteBySession(ctx context.Context, sessionID string) ([]models.Token, error) {
	const query = `DELETE FROM tokens WHERE session_id = $1 RETURNING ` + tokenColumns
	rows, err := queryable(ctx, r.pool).Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// DeleteAllForUser removes every token of a user except those bound to
// exceptSessionID (pass "" to remove all). Used on password change.
func (r *TokenRepository) DeleteAllForUser(ctx context.Context, userID string, exceptSessionID string) ([]models.Token, error) {
	const query = `DELETE FROM tokens WHERE user_id = $1 AND session_id <> $2 RETURNING ` + tokenColumns
	rows, err := queryable(ctx, r.pool).Query(ctx, query, userID, exceptSessionID)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) ([]models.Token, error) {
	const query = `DELETE FROM tokens WHERE expires_at < $1 RETURNING ` + tokenColumns
	rows, err := queryable(ctx, r.pool).Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *TokenRepository) scanOne(row pgx.Row) (models.Token, error) {
	var token models.Token
	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.SessionID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Token{}, ErrTokenNotFound
		}
		return models.Token{}, err
	}
	return token, nil
}

func (r *TokenRepository) scanAll(rows pgx.Rows) ([]models.Token, error) {
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		var token models.Token
		if err := rows.Scan(
			&token.ID,
			&token.UserID,
			&token.SessionID,
			&token.TokenHash,
			&token.CreatedAt,
			&token.ExpiresAt,
		); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
