package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

type tokenRepo Store

func (r *tokenRepo) Create(ctx context.Context, t *repository.SecureToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO secure_tokens (id, kind, subject_id, issuer_id, secret_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, string(t.Kind), t.SubjectID, t.IssuerID, t.SecretHash, t.CreatedAt, t.ExpiresAt)
	return err
}

func (r *tokenRepo) GetByID(ctx context.Context, id string) (*repository.SecureToken, error) {
	var t repository.SecureToken
	err := r.pool.QueryRow(ctx,
		`SELECT id, kind, subject_id, issuer_id, secret_hash, created_at, expires_at, consumed_at
		 FROM secure_tokens WHERE id = $1`, id).
		Scan(&t.ID, &t.Kind, &t.SubjectID, &t.IssuerID, &t.SecretHash, &t.CreatedAt, &t.ExpiresAt, &t.ConsumedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Consume es consume-if-not-yet-consumed: el UPDATE condicional decide un
// único ganador entre consumidores concurrentes.
func (r *tokenRepo) Consume(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE secure_tokens SET consumed_at = $2
		 WHERE id = $1 AND consumed_at IS NULL AND expires_at > $2`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteAllForSubject borra solo tokens pendientes: las filas consumidas se
// conservan como rastro de consumo hasta que DeleteExpired las recoja.
func (r *tokenRepo) DeleteAllForSubject(ctx context.Context, kind repository.TokenKind, subjectID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM secure_tokens WHERE kind = $1 AND subject_id = $2 AND consumed_at IS NULL`, string(kind), subjectID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *tokenRepo) DeleteExpired(ctx context.Context, retain time.Duration) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM secure_tokens WHERE expires_at < NOW() - $1::interval`, retain.String())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
