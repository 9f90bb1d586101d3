package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/quarterdeck/internal/access"
	"github.com/dropDatabas3/quarterdeck/internal/account"
	"github.com/dropDatabas3/quarterdeck/internal/daemon"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/securetoken"
)

// errorResponse estructura interna para la serialización JSON.
// Controla exactamente qué campos se envían al cliente.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// FromError convierte un error genérico en un AppError.
// Si no es un AppError, mapea los sentinels de las capas de dominio; lo que
// no reconoce colapsa en un error interno genérico conservando la causa.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, access.ErrUnauthenticated):
		return ErrUnauthorized.WithCause(err)
	case errors.Is(err, access.ErrForbidden), errors.Is(err, account.ErrForbidden):
		return ErrForbidden.WithCause(err)
	case errors.Is(err, access.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return ErrNotFound.WithCause(err)
	case errors.Is(err, access.ErrNodeUnavailable), errors.Is(err, daemon.ErrUpstreamUnavailable):
		return ErrDaemonUnavailable.WithCause(err)
	case errors.Is(err, securetoken.ErrInvalidToken):
		return ErrTokenInvalid.WithCause(err)
	case errors.Is(err, account.ErrWeakPassword):
		return ErrPasswordTooWeak.WithCause(err)
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict.WithCause(err)
	case errors.Is(err, repository.ErrInvalidInput):
		return ErrBadRequest.WithCause(err)
	default:
		return ErrInternalServerError.WithCause(err)
	}
}

// WriteError escribe una respuesta HTTP basada en el error proporcionado.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
