package middlewares

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/http/errors"
	"github.com/dropDatabas3/quarterdeck/internal/http/session"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
)

// SessionCookie es el nombre de la cookie de sesión del panel.
const SessionCookie = "qd_session"

// bearerToken extrae el token de Authorization: Bearer o de la cookie.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(strings.ToLower(h), "bearer ") {
			return strings.TrimSpace(h[len("bearer "):])
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// RequireSession resuelve el token de sesión y cuelga el snapshot del
// contexto. Sin token o con token inválido corta con 401.
func RequireSession(mgr *session.Manager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearerToken(r)
			if tok == "" {
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}
			d, err := mgr.Get(r.Context(), tok)
			if err != nil {
				errors.WriteError(w, errors.ErrSessionExpired)
				return
			}

			ctx := withSession(r.Context(), d)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(d.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin corta con 403 si la sesión no es de un admin activo.
// Debe aplicarse después de RequireSession.
func RequireAdmin() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := GetSessionData(r.Context())
			if d == nil {
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}
			if d.Suspended {
				errors.WriteError(w, errors.ErrAccountSuspended)
				return
			}
			if d.Role != repository.RoleAdmin {
				errors.WriteError(w, errors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
