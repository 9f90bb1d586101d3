package repository

import (
	"context"
	"time"
)

// TokenKind indica el propósito de un secure token.
type TokenKind string

const (
	TokenKindVerification  TokenKind = "email_verification"
	TokenKindPasswordReset TokenKind = "password_reset"
	TokenKindImpersonation TokenKind = "impersonation"
)

// SecureToken representa un secreto single-use con expiración.
// El valor en claro nunca se persiste; solo su hash.
type SecureToken struct {
	ID         string
	Kind       TokenKind
	SubjectID  string // user al que el token da acceso
	IssuerID   string // quién originó la emisión ("" si fue el propio subject)
	SecretHash string // sha256 hex del secreto aleatorio
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// SecureTokenRepository define operaciones sobre secure tokens.
type SecureTokenRepository interface {
	// Create persiste un token nuevo.
	Create(ctx context.Context, t *SecureToken) error

	// GetByID retorna el token (de cualquier kind) o ErrNotFound.
	GetByID(ctx context.Context, id string) (*SecureToken, error)

	// Consume marca el token como consumido si y solo si consumed_at es NULL
	// y no expiró (consume-if-not-yet-consumed, atómico en el store).
	// Retorna ErrNotFound si la condición no se cumple: un consumidor
	// concurrente que pierde la carrera observa este error, nunca un éxito.
	Consume(ctx context.Context, id string, at time.Time) error

	// DeleteAllForSubject elimina en bloque los tokens de un kind para un
	// subject (p.ej. invalidar resets pendientes al cambiar el password).
	// Retorna la cantidad eliminada.
	DeleteAllForSubject(ctx context.Context, kind TokenKind, subjectID string) (int, error)

	// DeleteExpired elimina tokens vencidos hace más de retain (cleanup job).
	DeleteExpired(ctx context.Context, retain time.Duration) (int, error)
}
