package controllers

import (
	"net/http"

	"github.com/dropDatabas3/quarterdeck/internal/account"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/http/dto"
	httperrors "github.com/dropDatabas3/quarterdeck/internal/http/errors"
	"github.com/dropDatabas3/quarterdeck/internal/http/session"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
)

// AuthController maneja los flujos públicos de cuenta: verificación de
// email, forgot/reset de password y consumo de tokens de impersonación.
type AuthController struct {
	accounts *account.Service
	sessions *session.Manager
}

func NewAuthController(accounts *account.Service, sessions *session.Manager) *AuthController {
	return &AuthController{accounts: accounts, sessions: sessions}
}

// VerifyEmail consume un token de verificación. El token llega por query
// string porque el request lo dispara el link del email.
// GET /api/auth/email/verify?token=
func (c *AuthController) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("token is required"))
		return
	}
	if err := c.accounts.VerifyEmail(r.Context(), tok); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	writeNoContent(w)
}

// ForgotPassword arranca el flujo de reset. La respuesta es 204 exista o no
// la cuenta: el endpoint no revela qué emails están registrados.
// POST /auth/password/forgot
func (c *AuthController) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("email is required"))
		return
	}
	if err := c.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		logger.From(r.Context()).Error("forgot password flow failed", logger.Err(err))
		// misma respuesta: el error interno no distingue la cuenta
	}
	writeNoContent(w)
}

// ResetPassword consume un token de reset y fija el password nuevo.
// POST /auth/password/reset
func (c *AuthController) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("token and password are required"))
		return
	}
	if err := c.accounts.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	writeNoContent(w)
}

// ConsumeImpersonation quema un token de impersonación y abre una sesión
// actuando como el usuario target.
// POST /auth/impersonate
func (c *AuthController) ConsumeImpersonation(w http.ResponseWriter, r *http.Request) {
	var req dto.ImpersonateConsumeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("token is required"))
		return
	}

	imp, err := c.accounts.ConsumeImpersonation(r.Context(), req.Token)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	tok, err := c.sessions.Create(r.Context(), session.Data{
		UserID:         imp.Target.ID,
		Role:           repository.RoleUser, // la sesión impersonada nunca hereda admin
		Suspended:      imp.Target.Suspended,
		ImpersonatedBy: imp.AdminID,
	})
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SessionResponse{
		SessionToken: tok,
		User: dto.UserView{
			ID:       imp.Target.ID,
			Username: imp.Target.Username,
			Email:    imp.Target.Email,
			Role:     string(imp.Target.Role),
		},
		ImpersonatedBy: imp.AdminID,
	})
}
