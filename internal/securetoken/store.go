// Package securetoken implementa el primitivo genérico de tokens single-use
// con expiración: password reset, email verification e impersonation
// comparten este store y difieren solo en policy y side effects.
package securetoken

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/metrics"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
	tokens "github.com/dropDatabas3/quarterdeck/internal/security/token"
)

// ErrInvalidToken es el único error que ve un caller cuando un consume
// falla por causas del token: inexistente, hash incorrecto, expirado o ya
// consumido. Deliberadamente indiferenciado para no servir de oráculo.
var ErrInvalidToken = errors.New("token invalid, expired or already used")

// secretBytes son los bytes de entropía del secreto (>= 128 bits).
const secretBytes = 24

// Policy define el comportamiento por kind.
type Policy struct {
	TTL           time.Duration
	RequireIssuer bool
}

// DefaultPolicies retorna las policies por kind.
// La TTL de impersonation es corta a propósito: una vez emitido el valor
// viaja fuera del panel y no hay revocación individual.
func DefaultPolicies() map[repository.TokenKind]Policy {
	return map[repository.TokenKind]Policy{
		repository.TokenKindVerification:  {TTL: 48 * time.Hour},
		repository.TokenKindPasswordReset: {TTL: 1 * time.Hour},
		repository.TokenKindImpersonation: {TTL: 10 * time.Minute, RequireIssuer: true},
	}
}

// Issued es el resultado de una emisión. Value ("id.secreto") existe en
// claro únicamente acá: el caller lo entrega (mail, URL) y se descarta.
type Issued struct {
	ID        string
	Value     string
	ExpiresAt time.Time
}

// Consumed es el resultado de un consume exitoso.
type Consumed struct {
	TokenID   string
	Kind      repository.TokenKind
	SubjectID string
	IssuerID  string
}

// Store emite y consume secure tokens contra el repositorio durable.
type Store struct {
	repo     repository.SecureTokenRepository
	policies map[repository.TokenKind]Policy
	now      func() time.Time
}

// Option configura el Store.
type Option func(*Store)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPolicy sobreescribe la policy de un kind.
func WithPolicy(kind repository.TokenKind, p Policy) Option {
	return func(s *Store) { s.policies[kind] = p }
}

// New crea un Store con las policies por defecto.
func New(repo repository.SecureTokenRepository, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		policies: DefaultPolicies(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Issue genera un token nuevo del kind dado para subjectID.
// issuerID identifica quién originó la emisión (requerido para impersonation,
// "" cuando el subject actúa por sí mismo).
func (s *Store) Issue(ctx context.Context, kind repository.TokenKind, subjectID, issuerID string) (*Issued, error) {
	pol, ok := s.policies[kind]
	if !ok {
		return nil, fmt.Errorf("securetoken: unknown kind %q", kind)
	}
	if subjectID == "" {
		return nil, repository.ErrInvalidInput
	}
	if pol.RequireIssuer && issuerID == "" {
		return nil, fmt.Errorf("securetoken: kind %q requires an issuer", kind)
	}

	raw, err := tokens.GenerateOpaqueToken(secretBytes)
	if err != nil {
		return nil, fmt.Errorf("securetoken: generate secret: %w", err)
	}

	now := s.now().UTC()
	t := &repository.SecureToken{
		ID:         uuid.NewString(),
		Kind:       kind,
		SubjectID:  subjectID,
		IssuerID:   issuerID,
		SecretHash: tokens.SHA256Hex(raw),
		CreatedAt:  now,
		ExpiresAt:  now.Add(pol.TTL),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("securetoken: persist token: %w", err)
	}

	metrics.TokensIssued.WithLabelValues(string(kind)).Inc()
	logger.From(ctx).Debug("secure token issued",
		logger.TokenID(t.ID), logger.TokenKind(string(kind)), logger.UserID(subjectID))

	return &Issued{
		ID:        t.ID,
		Value:     t.ID + "." + raw,
		ExpiresAt: t.ExpiresAt,
	}, nil
}

// Consume valida y consume un valor presentado ("id.secreto").
//
// Exactamente-una-vez: la marca de consumo es un update condicional en el
// store; de dos consumes concurrentes del mismo token gana uno solo y el
// perdedor recibe ErrInvalidToken. Cualquier causa de rechazo (id
// desconocido, hash que no matchea, expirado, ya consumido, kind distinto)
// colapsa en ErrInvalidToken.
func (s *Store) Consume(ctx context.Context, kind repository.TokenKind, presented string) (_ *Consumed, err error) {
	defer func() {
		switch {
		case err == nil:
			metrics.TokensConsumed.WithLabelValues(string(kind), "ok").Inc()
		case errors.Is(err, ErrInvalidToken):
			metrics.TokensConsumed.WithLabelValues(string(kind), "invalid").Inc()
		}
	}()

	id, raw, ok := splitValue(presented)
	if !ok {
		return nil, ErrInvalidToken
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("securetoken: lookup token: %w", err)
	}
	if t.Kind != kind {
		return nil, ErrInvalidToken
	}
	if !tokens.HashEquals(t.SecretHash, tokens.SHA256Hex(raw)) {
		return nil, ErrInvalidToken
	}

	now := s.now().UTC()
	if !now.Before(t.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	// La verificación consumed_at IS NULL vive en el store: acá solo se
	// observa el resultado de la carrera.
	if err := s.repo.Consume(ctx, id, now); err != nil {
		if repository.IsNotFound(err) || repository.IsConflict(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("securetoken: consume token: %w", err)
	}

	logger.From(ctx).Debug("secure token consumed",
		logger.TokenID(t.ID), logger.TokenKind(string(kind)), logger.UserID(t.SubjectID))

	return &Consumed{
		TokenID:   t.ID,
		Kind:      t.Kind,
		SubjectID: t.SubjectID,
		IssuerID:  t.IssuerID,
	}, nil
}

// InvalidateAllForSubject borra en bloque los tokens pendientes de un kind
// para un subject. Usado cuando una acción más fuerte los vuelve obsoletos
// (cambio de password anula los resets pendientes).
func (s *Store) InvalidateAllForSubject(ctx context.Context, kind repository.TokenKind, subjectID string) (int, error) {
	n, err := s.repo.DeleteAllForSubject(ctx, kind, subjectID)
	if err != nil {
		return 0, fmt.Errorf("securetoken: invalidate tokens: %w", err)
	}
	if n > 0 {
		logger.From(ctx).Debug("secure tokens invalidated",
			logger.TokenKind(string(kind)), logger.UserID(subjectID), logger.Count(n))
	}
	return n, nil
}

// splitValue separa "id.secreto". El id es público (clave de lookup); solo
// el secreto tiene entropía.
func splitValue(v string) (id, raw string, ok bool) {
	i := strings.IndexByte(v, '.')
	if i <= 0 || i == len(v)-1 {
		return "", "", false
	}
	return v[:i], v[i+1:], true
}
