package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

type allocationRepo Store

func (r *allocationRepo) GetByID(ctx context.Context, id int64) (*repository.Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allocations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ClaimForTransfer es claim-if-unclaimed: mismo contrato que el UPDATE
// condicional del adapter pg.
func (r *allocationRepo) ClaimForTransfer(ctx context.Context, id int64, nodeID, transferID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allocations[id]
	if !ok || a.NodeID != nodeID {
		return repository.ErrNotFound
	}
	if a.ServerUUID != "" || a.TransferID != "" {
		return repository.ErrConflict
	}
	a.TransferID = transferID
	return nil
}

func (r *allocationRepo) ReleaseTransferClaims(ctx context.Context, transferID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.allocations {
		if a.TransferID == transferID {
			a.TransferID = ""
		}
	}
	return nil
}

func (r *allocationRepo) CommitTransferClaims(ctx context.Context, transferID, serverUUID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.allocations {
		if a.TransferID == transferID {
			a.TransferID = ""
			a.ServerUUID = serverUUID
		}
	}
	return nil
}

func (r *allocationRepo) ReleaseForServer(ctx context.Context, serverUUID, nodeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.allocations {
		if a.ServerUUID == serverUUID && a.NodeID == nodeID {
			a.ServerUUID = ""
		}
	}
	return nil
}

type transferRepo Store

// CreateActive garantiza "a lo sumo un transfer activo por server" bajo el
// mismo mutex que protege el resto del estado.
func (r *transferRepo) CreateActive(ctx context.Context, t *repository.TransferRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.transfers {
		if existing.ServerUUID == t.ServerUUID && existing.Status.Active() {
			return repository.ErrConflict
		}
	}
	cp := *t
	cp.AdditionalAllocationIDs = append([]int64(nil), t.AdditionalAllocationIDs...)
	r.transfers[t.ID] = &cp
	return nil
}

func (r *transferRepo) GetByID(ctx context.Context, id string) (*repository.TransferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTransfer(t), nil
}

func (r *transferRepo) GetActiveByServer(ctx context.Context, serverUUID string) (*repository.TransferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transfers {
		if t.ServerUUID == serverUUID && t.Status.Active() {
			return cloneTransfer(t), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *transferRepo) Transition(ctx context.Context, id string, from []repository.TransferStatus, to repository.TransferStatus) (*repository.TransferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	allowed := false
	for _, f := range from {
		if t.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, repository.ErrConflict
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	return cloneTransfer(t), nil
}

func cloneTransfer(t *repository.TransferRecord) *repository.TransferRecord {
	cp := *t
	cp.AdditionalAllocationIDs = append([]int64(nil), t.AdditionalAllocationIDs...)
	return &cp
}

type auditRepo Store

func (r *auditRepo) Insert(ctx context.Context, ev *repository.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ev
	if ev.Metadata != nil {
		cp.Metadata = make(map[string]any, len(ev.Metadata))
		for k, v := range ev.Metadata {
			cp.Metadata[k] = v
		}
	}
	r.audits = append(r.audits, &cp)
	return nil
}
