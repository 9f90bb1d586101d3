// Package transfer implementa la máquina de estados que mueve un server de
// un node a otro. El movimiento de bytes entre daemons es de un colaborador
// externo; acá vive el registro durable, las reservas de allocations y las
// transiciones que ese colaborador reporta.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dropDatabas3/quarterdeck/internal/audit"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
)

// Conflict reasons. Todos son errors.Is(err, repository.ErrConflict) para el
// mapeo HTTP; el texto distingue la causa para el operador.
var (
	ErrSameNode       = fmt.Errorf("%w: target node equals source node", repository.ErrConflict)
	ErrActiveTransfer = fmt.Errorf("%w: server already has an active transfer", repository.ErrConflict)
	ErrAllocationBusy = fmt.Errorf("%w: allocation already claimed", repository.ErrConflict)
)

// StartQueuer encola un start del server al completar un transfer que lo
// pidió. Colaborador externo: su falla se loguea, no aborta la transición.
type StartQueuer interface {
	QueueStart(ctx context.Context, serverUUID string) error
}

// NoopStarter descarta los starts (dev/tests).
type NoopStarter struct{}

func (NoopStarter) QueueStart(context.Context, string) error { return nil }

// InitiateInput son los parámetros del admin al iniciar un transfer.
// Actor es el user id del admin que lo pidió; vacío queda como "system".
type InitiateInput struct {
	Actor                   string
	AllocationID            int64
	AdditionalAllocationIDs []int64
	StartOnCompletion       bool
}

// Orchestrator coordina transfers contra el store durable.
type Orchestrator struct {
	transfers   repository.TransferRepository
	allocations repository.AllocationRepository
	servers     repository.ServerRepository
	nodes       repository.NodeRepository
	starter     StartQueuer
	recorder    audit.Recorder
}

// New crea el orchestrator. starter y recorder pueden ser nil.
func New(
	transfers repository.TransferRepository,
	allocations repository.AllocationRepository,
	servers repository.ServerRepository,
	nodes repository.NodeRepository,
	starter StartQueuer,
	recorder audit.Recorder,
) *Orchestrator {
	if starter == nil {
		starter = NoopStarter{}
	}
	if recorder == nil {
		recorder = audit.LogRecorder{}
	}
	return &Orchestrator{
		transfers:   transfers,
		allocations: allocations,
		servers:     servers,
		nodes:       nodes,
		starter:     starter,
		recorder:    recorder,
	}
}

// Initiate crea un transfer pending y reserva las allocations destino.
//
// Precondiciones (en orden): el server existe; el node destino existe y es
// distinto del origen; no hay transfer activo para el server (garantizado
// por el insert condicional del store, nunca por un check-then-act acá);
// cada allocation destino pertenece al node destino y está libre
// (claim-if-unclaimed). Si una reserva falla, las ya tomadas se liberan y el
// registro queda cancelado: el caller recibe Conflict y ninguna allocation
// queda tomada.
func (o *Orchestrator) Initiate(ctx context.Context, serverUUID, targetNodeID string, in InitiateInput) (*repository.TransferRecord, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("transfer.Initiate"), logger.ServerID(serverUUID))

	server, err := o.servers.GetByUUID(ctx, serverUUID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("transfer: load server: %w", err)
	}
	if server.NodeID == targetNodeID {
		return nil, ErrSameNode
	}
	if _, err := o.nodes.GetByID(ctx, targetNodeID); err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: target node %s", repository.ErrNotFound, targetNodeID)
		}
		return nil, fmt.Errorf("transfer: load target node: %w", err)
	}

	rec := &repository.TransferRecord{
		ID:                      uuid.NewString(),
		ServerUUID:              server.UUID,
		SourceNodeID:            server.NodeID,
		TargetNodeID:            targetNodeID,
		AllocationID:            in.AllocationID,
		AdditionalAllocationIDs: append([]int64(nil), in.AdditionalAllocationIDs...),
		Status:                  repository.TransferPending,
		StartOnCompletion:       in.StartOnCompletion,
	}

	if err := o.transfers.CreateActive(ctx, rec); err != nil {
		if repository.IsConflict(err) {
			return nil, ErrActiveTransfer
		}
		return nil, fmt.Errorf("transfer: create record: %w", err)
	}

	// Reservar allocations destino. Cualquier falla deshace todo.
	allocIDs := append([]int64{in.AllocationID}, in.AdditionalAllocationIDs...)
	for _, id := range allocIDs {
		if err := o.allocations.ClaimForTransfer(ctx, id, targetNodeID, rec.ID); err != nil {
			o.rollbackInitiate(ctx, rec)
			switch {
			case repository.IsConflict(err):
				return nil, fmt.Errorf("%w: allocation %d", ErrAllocationBusy, id)
			case repository.IsNotFound(err):
				return nil, fmt.Errorf("%w: allocation %d not on node %s", repository.ErrNotFound, id, targetNodeID)
			default:
				return nil, fmt.Errorf("transfer: claim allocation %d: %w", id, err)
			}
		}
	}

	if err := o.servers.SetStatus(ctx, server.UUID, repository.ServerStatusTransferring); err != nil {
		log.Warn("failed to flag server as transferring", logger.Err(err))
	}

	actor, actorType := in.Actor, "user"
	if actor == "" {
		actor, actorType = "system", "system"
	}
	o.recorder.Record(ctx, audit.Event{
		Actor:      actor,
		ActorType:  actorType,
		Action:     "server.transfer.initiate",
		TargetType: "server",
		TargetID:   server.UUID,
		Metadata: map[string]any{
			"transfer_id":    rec.ID,
			"source_node_id": rec.SourceNodeID,
			"target_node_id": rec.TargetNodeID,
		},
	})
	log.Info("transfer initiated", logger.TransferID(rec.ID), logger.NodeID(targetNodeID))
	return rec, nil
}

// rollbackInitiate libera reservas y cancela el registro recién creado.
func (o *Orchestrator) rollbackInitiate(ctx context.Context, rec *repository.TransferRecord) {
	if err := o.allocations.ReleaseTransferClaims(ctx, rec.ID); err != nil {
		logger.From(ctx).Error("transfer rollback: release claims", logger.TransferID(rec.ID), logger.Err(err))
	}
	if _, err := o.transfers.Transition(ctx, rec.ID,
		[]repository.TransferStatus{repository.TransferPending}, repository.TransferCancelled); err != nil {
		logger.From(ctx).Error("transfer rollback: cancel record", logger.TransferID(rec.ID), logger.Err(err))
	}
}

// Start registra que el node origen comenzó la migración (pending -> in_progress).
func (o *Orchestrator) Start(ctx context.Context, transferID string) (*repository.TransferRecord, error) {
	rec, _, err := o.transition(ctx, transferID,
		[]repository.TransferStatus{repository.TransferPending},
		repository.TransferInProgress, nil)
	return rec, err
}

// Complete aplica el éxito reportado: commit de las reservas al server,
// swap atómico del node asignado, liberación de las allocations de origen y,
// si se pidió, encolar el start.
func (o *Orchestrator) Complete(ctx context.Context, transferID string) (*repository.TransferRecord, error) {
	rec, applied, err := o.transition(ctx, transferID,
		[]repository.TransferStatus{repository.TransferInProgress},
		repository.TransferCompleted, func(ctx context.Context, rec *repository.TransferRecord) error {
			if err := o.allocations.CommitTransferClaims(ctx, rec.ID, rec.ServerUUID); err != nil {
				return fmt.Errorf("transfer: commit allocations: %w", err)
			}
			if err := o.servers.ReassignNode(ctx, rec.ServerUUID, rec.TargetNodeID, rec.AllocationID); err != nil {
				return fmt.Errorf("transfer: reassign server: %w", err)
			}
			if err := o.allocations.ReleaseForServer(ctx, rec.ServerUUID, rec.SourceNodeID); err != nil {
				// el server ya vive en el destino; solo queda basura en origen
				logger.From(ctx).Warn("failed to release source allocations",
					logger.TransferID(rec.ID), logger.NodeID(rec.SourceNodeID), logger.Err(err))
			}
			if err := o.servers.SetStatus(ctx, rec.ServerUUID, repository.ServerStatusNormal); err != nil {
				logger.From(ctx).Warn("failed to clear transferring status", logger.Err(err))
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	if !applied {
		return rec, nil
	}

	if rec.StartOnCompletion {
		if err := o.starter.QueueStart(ctx, rec.ServerUUID); err != nil {
			logger.From(ctx).Warn("failed to queue post-transfer start",
				logger.ServerID(rec.ServerUUID), logger.Err(err))
		}
	}

	o.recorder.Record(ctx, audit.Event{
		Actor: "system", ActorType: "system",
		Action: "server.transfer.complete", TargetType: "server", TargetID: rec.ServerUUID,
		Metadata: map[string]any{"transfer_id": rec.ID, "target_node_id": rec.TargetNodeID},
	})
	return rec, nil
}

// Fail aplica la falla reportada: libera reservas y deja el server donde
// estaba.
func (o *Orchestrator) Fail(ctx context.Context, transferID string) (*repository.TransferRecord, error) {
	rec, applied, err := o.transition(ctx, transferID,
		[]repository.TransferStatus{repository.TransferPending, repository.TransferInProgress},
		repository.TransferFailed, o.releaseAndRestore)
	if err != nil || !applied {
		return rec, err
	}
	o.recorder.Record(ctx, audit.Event{
		Actor: "system", ActorType: "system",
		Action: "server.transfer.fail", TargetType: "server", TargetID: rec.ServerUUID,
		Metadata: map[string]any{"transfer_id": rec.ID},
	})
	return rec, nil
}

// Cancel cancela un transfer activo. Para uno in_progress, el abort real
// depende del colaborador de migración; acá solo se registra el desenlace.
func (o *Orchestrator) Cancel(ctx context.Context, transferID string) (*repository.TransferRecord, error) {
	rec, applied, err := o.transition(ctx, transferID,
		[]repository.TransferStatus{repository.TransferPending, repository.TransferInProgress},
		repository.TransferCancelled, o.releaseAndRestore)
	if err != nil || !applied {
		return rec, err
	}
	o.recorder.Record(ctx, audit.Event{
		Actor: "system", ActorType: "system",
		Action: "server.transfer.cancel", TargetType: "server", TargetID: rec.ServerUUID,
		Metadata: map[string]any{"transfer_id": rec.ID},
	})
	return rec, nil
}

func (o *Orchestrator) releaseAndRestore(ctx context.Context, rec *repository.TransferRecord) error {
	if err := o.allocations.ReleaseTransferClaims(ctx, rec.ID); err != nil {
		return fmt.Errorf("transfer: release claims: %w", err)
	}
	if err := o.servers.SetStatus(ctx, rec.ServerUUID, repository.ServerStatusNormal); err != nil {
		logger.From(ctx).Warn("failed to clear transferring status", logger.Err(err))
	}
	return nil
}

// transition ejecuta los efectos de una transición y recién después persiste
// el estado destino. El orden importa: si un efecto falla, el registro sigue
// en el estado previo y el reintento del callback vuelve a ejecutar los
// efectos pendientes en vez de tragarse el reporte. Por eso los efectos
// deben ser idempotentes: un reintento (o una carrera entre callbacks
// duplicados) puede repetirlos.
//
// applied es false cuando el registro YA estaba en el estado destino: un
// reintento retorna el registro sin error ni efectos repetidos. Cualquier
// otro estado no permitido es Conflict.
func (o *Orchestrator) transition(
	ctx context.Context,
	transferID string,
	from []repository.TransferStatus,
	to repository.TransferStatus,
	effects func(context.Context, *repository.TransferRecord) error,
) (rec *repository.TransferRecord, applied bool, err error) {
	rec, err = o.transfers.GetByID(ctx, transferID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, false, repository.ErrNotFound
		}
		return nil, false, fmt.Errorf("transfer: load record: %w", err)
	}
	if rec.Status == to {
		return rec, false, nil
	}
	if !statusIn(rec.Status, from) {
		return nil, false, fmt.Errorf("%w: transfer %s cannot move to %s", repository.ErrConflict, transferID, to)
	}

	if effects != nil {
		if err := effects(ctx, rec); err != nil {
			return nil, false, err
		}
	}

	rec, err = o.transfers.Transition(ctx, transferID, from, to)
	if err != nil {
		if repository.IsConflict(err) {
			// carrera entre callbacks duplicados: el otro ganó la transición
			current, gErr := o.transfers.GetByID(ctx, transferID)
			if gErr == nil && current.Status == to {
				return current, false, nil
			}
			return nil, false, fmt.Errorf("%w: transfer %s cannot move to %s", repository.ErrConflict, transferID, to)
		}
		if repository.IsNotFound(err) {
			return nil, false, repository.ErrNotFound
		}
		return nil, false, fmt.Errorf("transfer: transition to %s: %w", to, err)
	}

	logger.From(ctx).Info("transfer state changed",
		logger.TransferID(rec.ID), logger.ServerID(rec.ServerUUID), logger.String("status", string(to)))
	return rec, true, nil
}

func statusIn(s repository.TransferStatus, set []repository.TransferStatus) bool {
	for _, f := range set {
		if s == f {
			return true
		}
	}
	return false
}

// IsConflict reporta si err es un conflicto de transfer.
func IsConflict(err error) bool { return errors.Is(err, repository.ErrConflict) }
