// Package middlewares contiene la cadena HTTP del panel: request id,
// recover, logging, autenticación de sesión y rate limiting.
package middlewares

import "net/http"

// Middleware es un decorador estándar de http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain aplica los middlewares en orden: el primero de la lista es el más
// externo.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
