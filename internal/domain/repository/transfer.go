package repository

import (
	"context"
	"time"
)

// TransferStatus es el estado de un transfer de server entre nodes.
type TransferStatus string

const (
	TransferPending    TransferStatus = "pending"
	TransferInProgress TransferStatus = "in_progress"
	TransferCompleted  TransferStatus = "completed"
	TransferFailed     TransferStatus = "failed"
	TransferCancelled  TransferStatus = "cancelled"
)

// Active reporta si el estado cuenta como transfer activo.
func (s TransferStatus) Active() bool {
	return s == TransferPending || s == TransferInProgress
}

// Terminal reporta si el estado es terminal.
func (s TransferStatus) Terminal() bool {
	return s == TransferCompleted || s == TransferFailed || s == TransferCancelled
}

// TransferRecord es el registro durable de un transfer.
type TransferRecord struct {
	ID                      string
	ServerUUID              string
	SourceNodeID            string
	TargetNodeID            string
	AllocationID            int64
	AdditionalAllocationIDs []int64
	Status                  TransferStatus
	StartOnCompletion       bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// TransferRepository define operaciones sobre transfers.
type TransferRepository interface {
	// CreateActive persiste un transfer pending garantizando que no exista
	// otro transfer activo para el mismo server. Retorna ErrConflict si ya
	// hay uno pending/in_progress.
	CreateActive(ctx context.Context, t *TransferRecord) error

	// GetByID retorna el transfer o ErrNotFound.
	GetByID(ctx context.Context, id string) (*TransferRecord, error)

	// GetActiveByServer retorna el transfer activo del server o ErrNotFound.
	GetActiveByServer(ctx context.Context, serverUUID string) (*TransferRecord, error)

	// Transition avanza el estado si el estado actual está en from
	// (update condicional). Retorna el registro actualizado, ErrConflict si
	// el estado actual no permite la transición, o ErrNotFound.
	Transition(ctx context.Context, id string, from []TransferStatus, to TransferStatus) (*TransferRecord, error)
}
