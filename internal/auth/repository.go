package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/cargo-backoffice/internal/db"
)

// Repository persists users and refresh tokens.
type Repository interface {
	UserByEmail(ctx context.Context, email string) (userRecord, error)
	UserByID(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, in CreateUserInput, passwordHash string) (User, error)
	CreateRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error
	RefreshToken(ctx context.Context, hash string) (RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, userID, newHash string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, hash string) error
	RevokeUserTokens(ctx context.Context, userID string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const userColumns = `id::text, email, name, role, branch_id, created_at, updated_at`

func scanUser(row pgx.Row, extra ...any) (User, error) {
	var u User
	dest := append([]any{&u.ID, &u.Email, &u.Name, &u.Role, &u.BranchID, &u.CreatedAt, &u.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *repository) UserByEmail(ctx context.Context, email string) (userRecord, error) {
	var rec userRecord
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE email = $1`, email)
	u, err := scanUser(row, &rec.PasswordHash)
	if err != nil {
		return userRecord{}, err
	}
	rec.User = u
	return rec, nil
}

func (r *repository) UserByID(ctx context.Context, id string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1::uuid`, id))
}

func (r *repository) CreateUser(ctx context.Context, in CreateUserInput, passwordHash string) (User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, role, branch_id)
VALUES ($1, $2, $3, $4, $5) RETURNING `+userColumns, in.Email, in.Name, passwordHash, in.Role, in.BranchID)
	u, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrDuplicateUser
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *repository) CreateRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES ($1::uuid, $2, $3)`,
		userID, hash, expiresAt)
	return err
}

func (r *repository) RefreshToken(ctx context.Context, hash string) (RefreshToken, error) {
	var t RefreshToken
	err := r.pool.QueryRow(ctx, `SELECT id::text, user_id::text, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = $1`, hash).
		Scan(&t.ID, &t.UserID, &t.ExpiresAt, &t.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshToken{}, ErrTokenNotFound
	}
	return t, err
}

// RotateRefreshToken revokes oldID and stores the replacement atomically.
// A token that was already revoked yields ErrTokenReused.
func (r *repository) RotateRefreshToken(ctx context.Context, oldID, userID, newHash string, expiresAt time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1::uuid AND revoked_at IS NULL`, oldID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrTokenReused
		}
		_, err = tx.Exec(ctx, `INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES ($1::uuid, $2, $3)`,
			userID, newHash, expiresAt)
		return err
	})
}

func (r *repository) RevokeRefreshToken(ctx context.Context, hash string) error {
	_, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`, hash)
	return err
}

func (r *repository) RevokeUserTokens(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1::uuid AND revoked_at IS NULL`, userID)
	return err
}
