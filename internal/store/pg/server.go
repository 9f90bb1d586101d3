package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

type serverRepo Store

const serverCols = `uuid, identifier, name, owner_id, node_id, allocation_id, status`

func scanServer(row pgx.Row) (*repository.Server, error) {
	var sv repository.Server
	err := row.Scan(&sv.UUID, &sv.Identifier, &sv.Name, &sv.OwnerID, &sv.NodeID, &sv.AllocationID, &sv.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &sv, nil
}

func (r *serverRepo) GetByIdentifier(ctx context.Context, identifier string) (*repository.Server, error) {
	return scanServer(r.pool.QueryRow(ctx,
		`SELECT `+serverCols+` FROM servers WHERE identifier = $1`, identifier))
}

func (r *serverRepo) GetByUUID(ctx context.Context, uuid string) (*repository.Server, error) {
	return scanServer(r.pool.QueryRow(ctx,
		`SELECT `+serverCols+` FROM servers WHERE uuid = $1`, uuid))
}

func (r *serverRepo) ReassignNode(ctx context.Context, uuid, nodeID string, allocationID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE servers SET node_id = $2, allocation_id = $3 WHERE uuid = $1`, uuid, nodeID, allocationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *serverRepo) SetStatus(ctx context.Context, uuid string, status repository.ServerStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE servers SET status = $2 WHERE uuid = $1`, uuid, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type nodeRepo Store

func (r *nodeRepo) GetByID(ctx context.Context, id string) (*repository.Node, error) {
	var n repository.Node
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, fqdn, scheme, daemon_listen, maintenance FROM nodes WHERE id = $1`, id).
		Scan(&n.ID, &n.Name, &n.FQDN, &n.Scheme, &n.DaemonListen, &n.Maintenance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *nodeRepo) GetConnection(ctx context.Context, id string) (*repository.NodeConnection, error) {
	var c repository.NodeConnection
	err := r.pool.QueryRow(ctx,
		`SELECT token_id, token_secret FROM nodes WHERE id = $1`, id).
		Scan(&c.TokenID, &c.TokenSecret)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

type grantRepo Store

func (r *grantRepo) GetForServerUser(ctx context.Context, serverUUID, userID string) (*repository.PermissionGrant, error) {
	g := repository.PermissionGrant{ServerUUID: serverUUID, UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT permissions FROM permission_grants WHERE server_uuid = $1 AND user_id = $2`,
		serverUUID, userID).Scan(&g.Permissions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}
