package repository

import "context"

// PermissionGrant es el conjunto de permisos explícitos de un usuario
// (subuser) sobre un server que no le pertenece.
type PermissionGrant struct {
	ServerUUID  string
	UserID      string
	Permissions []string
}

// GrantRepository define operaciones sobre permission grants.
type GrantRepository interface {
	// GetForServerUser retorna el grant del usuario sobre el server, o
	// ErrNotFound si el usuario no tiene ninguna relación con el server.
	GetForServerUser(ctx context.Context, serverUUID, userID string) (*PermissionGrant, error)
}
