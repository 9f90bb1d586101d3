package middlewares

import (
	"math"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/quarterdeck/internal/http/errors"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
	"github.com/dropDatabas3/quarterdeck/internal/rate"
)

// KeyFunc deriva la key de rate limiting de un request.
type KeyFunc func(r *http.Request) string

// IPRateKey limita por IP del cliente.
func IPRateKey(prefix string) KeyFunc {
	return func(r *http.Request) string { return prefix + ":" + clientIP(r) }
}

// WithRateLimit aplica un limiter fixed-window. Si el limiter falla, el
// request pasa: un redis caído no debe tirar el panel.
func WithRateLimit(limiter rate.Limiter, key KeyFunc) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), key(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					secs := int(math.Ceil(res.RetryAfter.Seconds()))
					if secs < 1 {
						secs = 1
					}
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
