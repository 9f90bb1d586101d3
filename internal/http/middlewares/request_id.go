package middlewares

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
)

const requestIDHeader = "X-Request-ID"

// WithRequestID asigna un request id (o respeta el entrante), lo propaga en
// el header de respuesta y cuelga un logger contextualizado del request.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get(requestIDHeader)
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, rid)

			ctx := setRequestID(r.Context(), rid)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.RequestID(rid)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
