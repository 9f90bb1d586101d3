package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

const uniqueViolation = "23505"

type allocationRepo Store

const allocationCols = `id, node_id, ip, port, COALESCE(server_uuid, ''), COALESCE(transfer_id, '')`

func scanAllocation(row pgx.Row) (*repository.Allocation, error) {
	var a repository.Allocation
	err := row.Scan(&a.ID, &a.NodeID, &a.IP, &a.Port, &a.ServerUUID, &a.TransferID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *allocationRepo) GetByID(ctx context.Context, id int64) (*repository.Allocation, error) {
	return scanAllocation(r.pool.QueryRow(ctx,
		`SELECT `+allocationCols+` FROM allocations WHERE id = $1`, id))
}

// ClaimForTransfer es claim-if-unclaimed: el UPDATE condicional decide un
// único ganador. 0 filas se desambigua con un SELECT posterior.
func (r *allocationRepo) ClaimForTransfer(ctx context.Context, id int64, nodeID, transferID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE allocations SET transfer_id = $3
		 WHERE id = $1 AND node_id = $2 AND server_uuid IS NULL AND transfer_id IS NULL`,
		id, nodeID, transferID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM allocations WHERE id = $1 AND node_id = $2)`, id, nodeID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *allocationRepo) ReleaseTransferClaims(ctx context.Context, transferID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE allocations SET transfer_id = NULL WHERE transfer_id = $1`, transferID)
	return err
}

func (r *allocationRepo) CommitTransferClaims(ctx context.Context, transferID, serverUUID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE allocations SET transfer_id = NULL, server_uuid = $2 WHERE transfer_id = $1`,
		transferID, serverUUID)
	return err
}

func (r *allocationRepo) ReleaseForServer(ctx context.Context, serverUUID, nodeID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE allocations SET server_uuid = NULL WHERE server_uuid = $1 AND node_id = $2`,
		serverUUID, nodeID)
	return err
}

type transferRepo Store

const transferCols = `id, server_uuid, source_node_id, target_node_id, allocation_id,
	additional_allocation_ids, status, start_on_completion, created_at, updated_at`

func scanTransfer(row pgx.Row) (*repository.TransferRecord, error) {
	var t repository.TransferRecord
	err := row.Scan(&t.ID, &t.ServerUUID, &t.SourceNodeID, &t.TargetNodeID, &t.AllocationID,
		&t.AdditionalAllocationIDs, &t.Status, &t.StartOnCompletion, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CreateActive depende del índice único parcial sobre transfers activos:
// dos inserts concurrentes para el mismo server dejan un único ganador.
func (r *transferRepo) CreateActive(ctx context.Context, t *repository.TransferRecord) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO transfers (id, server_uuid, source_node_id, target_node_id, allocation_id,
		                        additional_allocation_ids, status, start_on_completion)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		t.ID, t.ServerUUID, t.SourceNodeID, t.TargetNodeID, t.AllocationID,
		t.AdditionalAllocationIDs, string(t.Status), t.StartOnCompletion).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

func (r *transferRepo) GetByID(ctx context.Context, id string) (*repository.TransferRecord, error) {
	return scanTransfer(r.pool.QueryRow(ctx,
		`SELECT `+transferCols+` FROM transfers WHERE id = $1`, id))
}

func (r *transferRepo) GetActiveByServer(ctx context.Context, serverUUID string) (*repository.TransferRecord, error) {
	return scanTransfer(r.pool.QueryRow(ctx,
		`SELECT `+transferCols+` FROM transfers
		 WHERE server_uuid = $1 AND status IN ('pending', 'in_progress')`, serverUUID))
}

func (r *transferRepo) Transition(ctx context.Context, id string, from []repository.TransferStatus, to repository.TransferStatus) (*repository.TransferRecord, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	rec, err := scanTransfer(r.pool.QueryRow(ctx,
		`UPDATE transfers SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status = ANY($3)
		 RETURNING `+transferCols, id, string(to), states))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	// 0 filas: desambiguar inexistente vs estado no permitido
	var exists bool
	if qErr := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transfers WHERE id = $1)`, id).Scan(&exists); qErr != nil {
		return nil, qErr
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrConflict
}
