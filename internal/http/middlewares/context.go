package middlewares

import (
	"context"

	"github.com/dropDatabas3/quarterdeck/internal/access"
	"github.com/dropDatabas3/quarterdeck/internal/http/session"
)

type ctxKey string

const (
	// ctxSessionKey guarda el snapshot de la sesión autenticada
	ctxSessionKey ctxKey = "session"
	// ctxRequestIDKey guarda el request ID
	ctxRequestIDKey ctxKey = "request_id"
)

// withSession inyecta la sesión en el contexto (interno)
func withSession(ctx context.Context, d *session.Data) context.Context {
	return context.WithValue(ctx, ctxSessionKey, d)
}

// setRequestID inyecta el request ID en el contexto (interno)
func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetSessionData obtiene la sesión del contexto.
// Retorna nil si el middleware de auth no se aplicó.
func GetSessionData(ctx context.Context) *session.Data {
	if v := ctx.Value(ctxSessionKey); v != nil {
		if d, ok := v.(*session.Data); ok {
			return d
		}
	}
	return nil
}

// GetSession adapta la sesión del contexto al tipo que consume el resolver
// de acceso. Retorna nil si no hay sesión.
func GetSession(ctx context.Context) *access.Session {
	d := GetSessionData(ctx)
	if d == nil {
		return nil
	}
	return &access.Session{UserID: d.UserID, Role: d.Role, Suspended: d.Suspended}
}

// GetRequestID obtiene el request ID del contexto.
// Retorna cadena vacía si no hay request ID.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(ctxRequestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
