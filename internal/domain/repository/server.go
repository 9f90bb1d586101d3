package repository

import (
	"context"
	"time"
)

// ServerStatus es el estado de runtime/instalación de un server.
type ServerStatus string

const (
	ServerStatusInstalling    ServerStatus = "installing"
	ServerStatusInstallFailed ServerStatus = "install_failed"
	ServerStatusNormal        ServerStatus = ""
	ServerStatusSuspended     ServerStatus = "suspended"
	ServerStatusTransferring  ServerStatus = "transferring"
)

// Server representa un game server alojado en un node.
type Server struct {
	UUID         string
	Identifier   string // identificador corto visible al usuario
	Name         string
	OwnerID      string
	NodeID       string
	AllocationID int64 // allocation primaria
	Status       ServerStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ServerRepository define operaciones sobre servers.
type ServerRepository interface {
	// GetByIdentifier resuelve por identifier corto o por UUID completo.
	// Retorna ErrNotFound si no existe.
	GetByIdentifier(ctx context.Context, identifier string) (*Server, error)

	// GetByUUID retorna el server o ErrNotFound.
	GetByUUID(ctx context.Context, uuid string) (*Server, error)

	// ReassignNode mueve el server al node destino con su nueva allocation
	// primaria, en un solo update. Usado al completar un transfer.
	ReassignNode(ctx context.Context, uuid, nodeID string, allocationID int64) error

	// SetStatus cambia el estado del server.
	SetStatus(ctx context.Context, uuid string, status ServerStatus) error
}
