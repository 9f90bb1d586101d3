package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

type userRepo Store

const userCols = `id, username, email, role, suspended, email_verified_at,
	password_hash, password_reset_required, created_at, updated_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.Suspended, &u.EmailVerifiedAt,
		&u.PasswordHash, &u.PasswordResetRequired, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

// MarkEmailVerified es un update condicional: solo la primera llamada gana.
func (r *userRepo) MarkEmailVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET email_verified_at = $2, updated_at = NOW()
		 WHERE id = $1 AND email_verified_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	// 0 filas: o ya estaba verificado o el usuario no existe
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

func (r *userRepo) SetPassword(ctx context.Context, id, passwordHash string, resetRequired bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, password_reset_required = $3, updated_at = NOW()
		 WHERE id = $1`, id, passwordHash, resetRequired)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepo) SetSuspended(ctx context.Context, id string, suspended bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET suspended = $2, updated_at = NOW() WHERE id = $1`, id, suspended)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
