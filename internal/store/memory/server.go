package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

type userRepo Store

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) MarkEmailVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if u.EmailVerifiedAt != nil {
		return false, nil
	}
	cp := at
	u.EmailVerifiedAt = &cp
	u.UpdatedAt = at
	return true, nil
}

func (r *userRepo) SetPassword(ctx context.Context, id, passwordHash string, resetRequired bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordResetRequired = resetRequired
	u.UpdatedAt = time.Now()
	return nil
}

func (r *userRepo) SetSuspended(ctx context.Context, id string, suspended bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Suspended = suspended
	u.UpdatedAt = time.Now()
	return nil
}

type serverRepo Store

func (r *serverRepo) GetByIdentifier(ctx context.Context, identifier string) (*repository.Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uuid := identifier
	if mapped, ok := r.serverIdent[identifier]; ok {
		uuid = mapped
	}
	sv, ok := r.servers[uuid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sv
	return &cp, nil
}

func (r *serverRepo) GetByUUID(ctx context.Context, uuid string) (*repository.Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sv, ok := r.servers[uuid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sv
	return &cp, nil
}

func (r *serverRepo) ReassignNode(ctx context.Context, uuid, nodeID string, allocationID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sv, ok := r.servers[uuid]
	if !ok {
		return repository.ErrNotFound
	}
	sv.NodeID = nodeID
	sv.AllocationID = allocationID
	sv.UpdatedAt = time.Now()
	return nil
}

func (r *serverRepo) SetStatus(ctx context.Context, uuid string, status repository.ServerStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sv, ok := r.servers[uuid]
	if !ok {
		return repository.ErrNotFound
	}
	sv.Status = status
	sv.UpdatedAt = time.Now()
	return nil
}

type nodeRepo Store

func (r *nodeRepo) GetByID(ctx context.Context, id string) (*repository.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *nodeRepo) GetConnection(ctx context.Context, id string) (*repository.NodeConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.nodeConns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type grantRepo Store

func (r *grantRepo) GetForServerUser(ctx context.Context, serverUUID, userID string) (*repository.PermissionGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.grants[serverUUID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	perms, ok := m[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &repository.PermissionGrant{
		ServerUUID:  serverUUID,
		UserID:      userID,
		Permissions: append([]string(nil), perms...),
	}, nil
}
