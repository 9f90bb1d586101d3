package repository

import "context"

// Allocation representa un par ip:puerto de un node asignable a un server.
type Allocation struct {
	ID         int64
	NodeID     string
	IP         string
	Port       int
	ServerUUID string // "" si está libre
	TransferID string // "" si no está reservada por un transfer activo
}

// Claimed reporta si la allocation está tomada por un server o un transfer.
func (a *Allocation) Claimed() bool {
	return a.ServerUUID != "" || a.TransferID != ""
}

// AllocationRepository define operaciones sobre allocations.
type AllocationRepository interface {
	// GetByID retorna la allocation o ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Allocation, error)

	// ClaimForTransfer reserva la allocation para un transfer si y solo si
	// pertenece al node dado y no está tomada (claim-if-unclaimed).
	// Retorna ErrNotFound si no existe o no pertenece al node,
	// ErrConflict si ya está tomada por un server u otro transfer.
	ClaimForTransfer(ctx context.Context, id int64, nodeID, transferID string) error

	// ReleaseTransferClaims libera todas las reservas del transfer dado.
	ReleaseTransferClaims(ctx context.Context, transferID string) error

	// CommitTransferClaims convierte las reservas del transfer en asignación
	// definitiva al server (server_uuid = uuid, transfer_id = NULL).
	CommitTransferClaims(ctx context.Context, transferID, serverUUID string) error

	// ReleaseForServer libera las allocations del server en el node origen.
	ReleaseForServer(ctx context.Context, serverUUID, nodeID string) error
}
