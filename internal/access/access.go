// Package access resolves an authenticated browser session against a server
// and a required permission set, producing the per-request access context
// used by everything that talks to a node on the caller's behalf.
package access

import (
	"errors"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

// Session is the minimal view of an authenticated session the gateway needs.
// It is always passed in explicitly, never fetched from ambient state.
type Session struct {
	UserID    string
	Role      repository.Role
	Suspended bool
}

// Resolution error kinds. Callers map these to transport errors; the
// ordering guarantees are documented on Resolver.ServerContext.
var (
	// ErrUnauthenticated indica sesión ausente o inválida.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden indica que el caller conoce el server pero no tiene los
	// permisos requeridos (o su cuenta está suspendida).
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound se retorna cuando el server no existe o cuando el caller
	// no tiene ninguna relación con él: ambos casos son indistinguibles a
	// propósito.
	ErrNotFound = errors.New("server not found")

	// ErrNodeUnavailable indica que el server no tiene un node asignado y
	// alcanzable en este momento.
	ErrNodeUnavailable = errors.New("node unavailable")
)

// Context is the per-request bundle handed to callers after a successful
// resolution. It carries only the permissions that were checked, never the
// caller's full effective set, and it must never be persisted or shared
// across requests. NodeConnection stays server-side.
type Context struct {
	User           *repository.User
	Server         *repository.Server
	Node           *repository.Node
	NodeConnection *repository.NodeConnection
	Permissions    []string
}

// HasPermission reports whether perm was part of the checked set.
func (c *Context) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
