package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sazardev/hrauth/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const userColumns = `
	id, email, username, password_hash, full_name, phone, department,
	position, hire_date, bio, role, status, email_verified,
	last_login_at, last_login_ip, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, email, username, password_hash, full_name, phone, department,
			position, hire_date, bio, role, status, email_verified,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW()
		)
	`

	_, err := queryable(ctx, r.pool).Exec(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.FullName,
		user.Phone,
		user.Department,
		user.Position,
		user.HireDate,
		user.Bio,
		user.Role,
		user.Status,
		user.EmailVerified,
	)
	return err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(queryable(ctx, r.pool).QueryRow(ctx, query, email))
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT` + userColumns + ` FROM users WHERE username = $1`
	return r.scanOne(queryable(ctx, r.pool).QueryRow(ctx, query, username))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(queryable(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash []byte) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := queryable(ctx, r.pool).Exec(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time, ip string) error {
	const query = `UPDATE users SET last_login_at = $2, last_login_ip = $3, updated_at = NOW() WHERE id = $1`
	_, err := queryable(ctx, r.pool).Exec(ctx, query, id, at, ip)
	return err
}

func (r *UserRepository) SetEmailVerified(ctx context.Context, id string) error {
	const query = `UPDATE users SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`
	cmd, err := queryable(ctx, r.pool).Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	const query = `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := queryable(ctx, r.pool).Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanOne(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.FullName,
		&user.Phone,
		&user.Department,
		&user.Position,
		&user.HireDate,
		&user.Bio,
		&user.Role,
		&user.Status,
		&user.EmailVerified,
		&user.LastLoginAt,
		&user.LastLoginIP,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}
