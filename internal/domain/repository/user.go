package repository

import (
	"context"
	"time"
)

// Role es el rol de cuenta a nivel panel.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User representa una cuenta del panel.
type User struct {
	ID                    string
	Username              string
	Email                 string
	Role                  Role
	Suspended             bool
	EmailVerifiedAt       *time.Time
	PasswordHash          string
	PasswordResetRequired bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsAdmin reporta si la cuenta tiene rol admin.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// UserRepository define operaciones sobre cuentas.
type UserRepository interface {
	// GetByID retorna el usuario o ErrNotFound.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retorna el usuario por email (lowercase) o ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// MarkEmailVerified fija email_verified_at si aún es NULL.
	// Retorna true si esta llamada lo marcó, false si ya estaba verificado.
	MarkEmailVerified(ctx context.Context, id string, at time.Time) (bool, error)

	// SetPassword reemplaza el hash de password y el flag reset_required.
	SetPassword(ctx context.Context, id, passwordHash string, resetRequired bool) error

	// SetSuspended cambia el estado de suspensión.
	SetSuspended(ctx context.Context, id string, suspended bool) error
}
