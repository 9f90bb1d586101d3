// Package router arma el árbol de rutas del panel sobre chi.
//
// Capas:
//   - /readyz y /metrics: públicos, sin auth.
//   - /auth/*: flujos de token single-use, con rate limit por IP.
//   - /api/client/*: requiere sesión.
//   - /api/admin/*: requiere sesión con rol admin.
//   - /api/remote/*: callbacks de daemons, autenticados por credencial de node.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/quarterdeck/internal/http/controllers"
	httperrors "github.com/dropDatabas3/quarterdeck/internal/http/errors"
	mw "github.com/dropDatabas3/quarterdeck/internal/http/middlewares"
	"github.com/dropDatabas3/quarterdeck/internal/http/session"
	"github.com/dropDatabas3/quarterdeck/internal/rate"
)

// Deps agrupa todo lo que el router necesita para armar handlers.
type Deps struct {
	Auth   *controllers.AuthController
	Client *controllers.ClientController
	Admin  *controllers.AdminController
	Node   *controllers.NodeController
	Health *controllers.HealthController

	Sessions *session.Manager

	// Limiters por flujo; nil deshabilita el rate limit del flujo.
	ForgotLimiter rate.Limiter
	VerifyLimiter rate.Limiter

	CORSAllowedOrigins []string

	// MetricsEnabled monta /metrics e instrumenta requests.
	MetricsEnabled bool
}

// New construye el handler raíz.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	base := []mw.Middleware{mw.WithRecover(), mw.WithRequestID(), mw.WithLogging()}
	if deps.MetricsEnabled {
		base = append(base, mw.WithMetrics())
	}
	for _, m := range base {
		r.Use(m)
	}

	if len(deps.CORSAllowedOrigins) > 0 {
		r.Use(mw.WithCORS(deps.CORSAllowedOrigins))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	r.Get("/readyz", deps.Health.Readyz)

	if deps.MetricsEnabled {
		if h, err := mw.RegisterMetrics(prometheus.DefaultRegisterer); err == nil {
			r.Handle("/metrics", h)
		}
	}

	// Flujos de token: públicos, siempre la misma respuesta para no filtrar
	// existencia de cuentas. Rate limit por IP porque no hay sesión.
	r.Route("/api/auth", func(r chi.Router) {
		r.With(limit(deps.VerifyLimiter, "verify")).Get("/email/verify", deps.Auth.VerifyEmail)
		r.With(limit(deps.ForgotLimiter, "forgot")).Post("/password/forgot", deps.Auth.ForgotPassword)
		r.With(limit(deps.ForgotLimiter, "forgot")).Post("/password/reset", deps.Auth.ResetPassword)
		r.Post("/impersonate", deps.Auth.ConsumeImpersonation)
	})

	r.Route("/api/client", func(r chi.Router) {
		r.Use(mw.RequireSession(deps.Sessions))
		r.Get("/servers/{server}/websocket", deps.Client.Websocket)
		r.Get("/servers/{server}/files", deps.Client.ListFiles)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(mw.RequireSession(deps.Sessions), mw.RequireAdmin())
		r.Post("/users/{user}/suspend", deps.Admin.Suspend)
		r.Post("/users/{user}/unsuspend", deps.Admin.Unsuspend)
		r.Post("/users/{user}/verification", deps.Admin.RequestVerification)
		r.Post("/users/{user}/impersonate", deps.Admin.Impersonate)
		r.Post("/users/{user}/password-reset", deps.Admin.ResetPassword)
		r.Get("/nodes/{node}/configuration", deps.Admin.NodeConfiguration)
		r.Post("/servers/{server}/transfer", deps.Admin.StartTransfer)
		r.Delete("/servers/{server}/transfer", deps.Admin.CancelTransfer)
	})

	// Los daemons se autentican por request; no hay sesión acá.
	r.Route("/api/remote", func(r chi.Router) {
		r.Post("/transfers/{transfer}/status", deps.Node.Status)
	})

	return r
}

// limit adapta un limiter opcional a middleware chi.
func limit(l rate.Limiter, prefix string) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	m := mw.WithRateLimit(l, mw.IPRateKey(prefix))
	return m
}
