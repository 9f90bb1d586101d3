// Package account implementa los flujos de cuenta atados a secure tokens:
// verificación de email, reset de password e impersonación de usuarios.
// Cada flujo emite o consume tokens del securetoken.Store y aplica el
// side-effect que le corresponde sobre la cuenta.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/quarterdeck/internal/audit"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
	"github.com/dropDatabas3/quarterdeck/internal/securetoken"
	tokens "github.com/dropDatabas3/quarterdeck/internal/security/token"
)

// BcryptCost es el costo de hashing para passwords nuevos.
const BcryptCost = 12

const minPasswordLen = 8

// tempPasswordBytes de entropía para passwords temporales generados.
const tempPasswordBytes = 12

var (
	// ErrForbidden indica que el caller no puede ejecutar la operación.
	ErrForbidden = errors.New("forbidden")

	// ErrSelfImpersonation: un admin no puede impersonarse a sí mismo.
	ErrSelfImpersonation = fmt.Errorf("%w: cannot impersonate yourself", repository.ErrConflict)

	// ErrWeakPassword indica un password que no cumple el mínimo.
	ErrWeakPassword = fmt.Errorf("%w: password too short", repository.ErrInvalidInput)
)

// Notifier envía los emails de cuenta. El valor del token viaja en claro al
// destinatario y a nadie más.
type Notifier interface {
	SendEmailVerification(ctx context.Context, to, username, token string, expires time.Time) error
	SendPasswordReset(ctx context.Context, to, username, token string, expires time.Time) error
}

// NoopNotifier descarta los emails (tests).
type NoopNotifier struct{}

func (NoopNotifier) SendEmailVerification(context.Context, string, string, string, time.Time) error {
	return nil
}
func (NoopNotifier) SendPasswordReset(context.Context, string, string, string, time.Time) error {
	return nil
}

// Service implementa los flujos de cuenta.
type Service struct {
	users    repository.UserRepository
	tokens   *securetoken.Store
	notifier Notifier
	recorder audit.Recorder
	now      func() time.Time
}

// Option configura el Service.
type Option func(*Service)

// WithClock inyecta el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New crea el service. notifier y recorder pueden ser nil.
func New(users repository.UserRepository, tokens *securetoken.Store, notifier Notifier, recorder audit.Recorder, opts ...Option) *Service {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if recorder == nil {
		recorder = audit.LogRecorder{}
	}
	s := &Service{users: users, tokens: tokens, notifier: notifier, recorder: recorder, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RequestVerification emite un token de verificación para la cuenta y envía
// el email. Si la cuenta ya está verificada no emite nada. Los tokens de
// verificación anteriores quedan invalidados: solo el último emitido sirve.
func (s *Service) RequestVerification(ctx context.Context, userID string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("account.RequestVerification"), logger.UserID(userID))

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("account: load user: %w", err)
	}
	if u.EmailVerifiedAt != nil {
		return nil
	}

	if _, err := s.tokens.InvalidateAllForSubject(ctx, repository.TokenKindVerification, u.ID); err != nil {
		return fmt.Errorf("account: invalidate previous tokens: %w", err)
	}
	issued, err := s.tokens.Issue(ctx, repository.TokenKindVerification, u.ID, "")
	if err != nil {
		return fmt.Errorf("account: issue verification token: %w", err)
	}

	if err := s.notifier.SendEmailVerification(ctx, u.Email, u.Username, issued.Value, issued.ExpiresAt); err != nil {
		log.Error("failed to send verification email", logger.Err(err))
		return fmt.Errorf("account: send verification email: %w", err)
	}
	log.Info("verification token issued", logger.TokenID(issued.ID))
	return nil
}

// VerifyEmail consume un token de verificación y marca el email como
// verificado. Un token válido sobre una cuenta ya verificada es éxito: el
// token se quema igual y el estado no cambia.
func (s *Service) VerifyEmail(ctx context.Context, tokenValue string) error {
	consumed, err := s.tokens.Consume(ctx, repository.TokenKindVerification, tokenValue)
	if err != nil {
		return err
	}

	marked, err := s.users.MarkEmailVerified(ctx, consumed.SubjectID, s.now())
	if err != nil {
		return fmt.Errorf("account: mark verified: %w", err)
	}
	if marked {
		s.recorder.Record(ctx, audit.Event{
			Actor: consumed.SubjectID, ActorType: "user",
			Action: "account.email.verified", TargetType: "user", TargetID: consumed.SubjectID,
		})
	}
	return nil
}

// ForgotPassword emite un token de reset y envía el email. SIEMPRE retorna
// nil para emails desconocidos o cuentas suspendidas: la respuesta no debe
// revelar si la cuenta existe.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("account.ForgotPassword"))

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			log.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("account: load user: %w", err)
	}
	if u.Suspended {
		log.Info("password reset requested for suspended account", logger.UserID(u.ID))
		return nil
	}

	if _, err := s.tokens.InvalidateAllForSubject(ctx, repository.TokenKindPasswordReset, u.ID); err != nil {
		return fmt.Errorf("account: invalidate previous tokens: %w", err)
	}
	issued, err := s.tokens.Issue(ctx, repository.TokenKindPasswordReset, u.ID, "")
	if err != nil {
		return fmt.Errorf("account: issue reset token: %w", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, u.Email, u.Username, issued.Value, issued.ExpiresAt); err != nil {
		// el flujo reporta éxito igual; el operador lo ve en los logs
		log.Error("failed to send reset email", logger.UserID(u.ID), logger.Err(err))
		return nil
	}
	log.Info("password reset token issued", logger.UserID(u.ID), logger.TokenID(issued.ID))
	return nil
}

// ResetPassword consume un token de reset y fija el password nuevo. Al
// cambiar el password se invalidan todos los tokens de reset restantes del
// subject y sus impersonation tokens pendientes.
func (s *Service) ResetPassword(ctx context.Context, tokenValue, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return ErrWeakPassword
	}

	consumed, err := s.tokens.Consume(ctx, repository.TokenKindPasswordReset, tokenValue)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), BcryptCost)
	if err != nil {
		return fmt.Errorf("account: hash password: %w", err)
	}
	if err := s.users.SetPassword(ctx, consumed.SubjectID, string(hash), false); err != nil {
		return fmt.Errorf("account: set password: %w", err)
	}

	for _, kind := range []repository.TokenKind{repository.TokenKindPasswordReset, repository.TokenKindImpersonation} {
		if _, err := s.tokens.InvalidateAllForSubject(ctx, kind, consumed.SubjectID); err != nil {
			logger.From(ctx).Warn("failed to invalidate tokens after password change",
				logger.UserID(consumed.SubjectID), logger.TokenKind(string(kind)), logger.Err(err))
		}
	}

	s.recorder.Record(ctx, audit.Event{
		Actor: consumed.SubjectID, ActorType: "user",
		Action: "account.password.reset", TargetType: "user", TargetID: consumed.SubjectID,
	})
	return nil
}

// SetTemporaryPassword resetea el password de target a uno temporal
// generado acá, marcando la cuenta para forzar el cambio en el próximo
// login. El valor en claro existe solo en el retorno; el caller lo entrega
// al admin y se descarta.
func (s *Service) SetTemporaryPassword(ctx context.Context, adminID, targetID string) (string, error) {
	admin, err := s.users.GetByID(ctx, adminID)
	if err != nil {
		return "", fmt.Errorf("account: load admin: %w", err)
	}
	if !admin.IsAdmin() || admin.Suspended {
		return "", ErrForbidden
	}
	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		return "", fmt.Errorf("account: load target: %w", err)
	}

	temp, err := tokens.GenerateOpaqueToken(tempPasswordBytes)
	if err != nil {
		return "", fmt.Errorf("account: generate temporary password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(temp), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("account: hash password: %w", err)
	}
	if err := s.users.SetPassword(ctx, targetID, string(hash), true); err != nil {
		return "", fmt.Errorf("account: set password: %w", err)
	}

	for _, kind := range []repository.TokenKind{repository.TokenKindPasswordReset, repository.TokenKindImpersonation} {
		if _, err := s.tokens.InvalidateAllForSubject(ctx, kind, targetID); err != nil {
			logger.From(ctx).Warn("failed to invalidate tokens after password change",
				logger.UserID(targetID), logger.TokenKind(string(kind)), logger.Err(err))
		}
	}

	s.recorder.Record(ctx, audit.Event{
		Actor: adminID, ActorType: "user",
		Action: "admin.user.password_reset", TargetType: "user", TargetID: targetID,
	})
	return temp, nil
}

// Impersonation es la sesión resultante de consumir un token de
// impersonación.
type Impersonation struct {
	Target  *repository.User
	AdminID string
}

// IssueImpersonation emite un token de impersonación de target en nombre de
// admin. Solo admins; nunca sobre sí mismo ni sobre cuentas suspendidas.
func (s *Service) IssueImpersonation(ctx context.Context, adminID, targetID string) (*securetoken.Issued, error) {
	admin, err := s.users.GetByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("account: load admin: %w", err)
	}
	if !admin.IsAdmin() || admin.Suspended {
		return nil, ErrForbidden
	}
	if adminID == targetID {
		return nil, ErrSelfImpersonation
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("account: load target: %w", err)
	}
	if target.Suspended {
		return nil, fmt.Errorf("%w: account suspended", repository.ErrConflict)
	}

	issued, err := s.tokens.Issue(ctx, repository.TokenKindImpersonation, target.ID, admin.ID)
	if err != nil {
		return nil, fmt.Errorf("account: issue impersonation token: %w", err)
	}

	s.recorder.Record(ctx, audit.Event{
		Actor: admin.ID, ActorType: "user",
		Action: "admin.user.impersonate", TargetType: "user", TargetID: target.ID,
		Metadata: map[string]any{"token_id": issued.ID},
	})
	logger.From(ctx).Info("impersonation token issued",
		logger.UserID(admin.ID), logger.String("target_id", target.ID), logger.TokenID(issued.ID))
	return issued, nil
}

// ConsumeImpersonation quema el token y retorna la sesión resultante. La
// suspensión del target se re-chequea al consumir: un token emitido antes de
// una suspensión no sirve después.
func (s *Service) ConsumeImpersonation(ctx context.Context, tokenValue string) (*Impersonation, error) {
	consumed, err := s.tokens.Consume(ctx, repository.TokenKindImpersonation, tokenValue)
	if err != nil {
		return nil, err
	}

	target, err := s.users.GetByID(ctx, consumed.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("account: load target: %w", err)
	}
	if target.Suspended {
		return nil, ErrForbidden
	}

	s.recorder.Record(ctx, audit.Event{
		Actor: consumed.IssuerID, ActorType: "user",
		Action: "admin.user.impersonate.consume", TargetType: "user", TargetID: target.ID,
		Metadata: map[string]any{"token_id": consumed.TokenID},
	})
	return &Impersonation{Target: target, AdminID: consumed.IssuerID}, nil
}
