package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

type tokenRepo Store

func (r *tokenRepo) Create(ctx context.Context, t *repository.SecureToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tokens[t.ID]; exists {
		return repository.ErrConflict
	}
	cp := *t
	r.tokens[t.ID] = &cp
	return nil
}

func (r *tokenRepo) GetByID(ctx context.Context, id string) (*repository.SecureToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	if t.ConsumedAt != nil {
		at := *t.ConsumedAt
		cp.ConsumedAt = &at
	}
	return &cp, nil
}

// Consume replica el UPDATE condicional del adapter pg: solo gana quien
// encuentra consumed_at en NULL y el token sin expirar.
func (r *tokenRepo) Consume(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return repository.ErrNotFound
	}
	if t.ConsumedAt != nil || !at.Before(t.ExpiresAt) {
		return repository.ErrNotFound
	}
	cp := at
	t.ConsumedAt = &cp
	return nil
}

func (r *tokenRepo) DeleteAllForSubject(ctx context.Context, kind repository.TokenKind, subjectID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.tokens {
		if t.Kind == kind && t.SubjectID == subjectID && t.ConsumedAt == nil {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *tokenRepo) DeleteExpired(ctx context.Context, retain time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-retain)
	n := 0
	for id, t := range r.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}
