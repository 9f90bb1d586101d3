package access

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/quarterdeck/internal/cache"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
)

// nodeCacheTTL acota cuánto tiempo un node resuelto puede servirse desde
// cache. El secreto de conexión no se cachea nunca.
const nodeCacheTTL = 30 * time.Second

// Resolver implements the session -> access context pipeline.
type Resolver struct {
	users   repository.UserRepository
	servers repository.ServerRepository
	nodes   repository.NodeRepository
	grants  repository.GrantRepository

	cache cache.Client // optional
	sf    singleflight.Group
}

// NewResolver creates a Resolver. c may be nil to disable node caching.
func NewResolver(
	users repository.UserRepository,
	servers repository.ServerRepository,
	nodes repository.NodeRepository,
	grants repository.GrantRepository,
	c cache.Client,
) *Resolver {
	return &Resolver{users: users, servers: servers, nodes: nodes, grants: grants, cache: c}
}

// ServerContext resolves (session, server identifier, required permissions)
// into a checked access context.
//
// The check order is fixed and observable, so it must not be reordered:
// authenticate -> server exists -> permissions -> node. A caller with zero
// relationship to the server gets ErrNotFound, never ErrForbidden, whether
// or not the server exists. Admin role satisfies any permission set but goes
// through the same order. A suspended account keeps its relationships but
// loses every permission, so it gets ErrForbidden.
func (r *Resolver) ServerContext(ctx context.Context, sess *Session, identifier string, required ...string) (*Context, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("access.ServerContext"))

	// 1) authenticate
	if sess == nil || sess.UserID == "" {
		return nil, ErrUnauthenticated
	}
	user, err := r.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("access: load user: %w", err)
	}

	// 2) server exists
	server, err := r.servers.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("access: load server: %w", err)
	}

	// 3) permissions
	checked, err := r.checkPermissions(ctx, user, server, required)
	if err != nil {
		return nil, err
	}

	// 4) node
	node, conn, err := r.resolveNode(ctx, server)
	if err != nil {
		return nil, err
	}

	log.Debug("access context resolved",
		logger.UserID(user.ID), logger.ServerID(server.UUID), logger.NodeID(node.ID))

	return &Context{
		User:           user,
		Server:         server,
		Node:           node,
		NodeConnection: conn,
		Permissions:    checked,
	}, nil
}

// checkPermissions computes the caller's effective permission set for the
// server and verifies required ⊆ effective. It returns the checked set (not
// the effective one) on success.
func (r *Resolver) checkPermissions(ctx context.Context, user *repository.User, server *repository.Server, required []string) ([]string, error) {
	owner := server.OwnerID == user.ID
	admin := user.IsAdmin()

	var granted []string
	if !owner && !admin {
		grant, err := r.grants.GetForServerUser(ctx, server.UUID, user.ID)
		if err != nil {
			if repository.IsNotFound(err) {
				// zero relationship: hide existence
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("access: load grant: %w", err)
		}
		granted = grant.Permissions
	}

	// Suspension voids all permissions but not relationships: a suspended
	// owner still learns the server exists.
	if user.Suspended {
		return nil, ErrForbidden
	}

	if owner || admin {
		return append([]string(nil), required...), nil
	}

	for _, need := range required {
		if !containsPerm(granted, need) {
			return nil, ErrForbidden
		}
	}
	return append([]string(nil), required...), nil
}

// resolveNode loads the server's node and its connection secret. Node
// details may come from cache; the secret always comes from the repository.
func (r *Resolver) resolveNode(ctx context.Context, server *repository.Server) (*repository.Node, *repository.NodeConnection, error) {
	if server.NodeID == "" || server.Status == repository.ServerStatusTransferring {
		return nil, nil, ErrNodeUnavailable
	}

	node, err := r.lookupNode(ctx, server.NodeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, ErrNodeUnavailable
		}
		return nil, nil, fmt.Errorf("access: load node %s for server %s: %w", server.NodeID, server.UUID, err)
	}
	if node.Maintenance {
		return nil, nil, ErrNodeUnavailable
	}

	conn, err := r.nodes.GetConnection(ctx, server.NodeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, ErrNodeUnavailable
		}
		return nil, nil, fmt.Errorf("access: load node connection %s: %w", server.NodeID, err)
	}
	return node, conn, nil
}

// lookupNode deduplicates concurrent lookups with singleflight and keeps a
// short-lived cached copy of the node details.
func (r *Resolver) lookupNode(ctx context.Context, nodeID string) (*repository.Node, error) {
	key := "node:" + nodeID

	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, key); err == nil {
			var n repository.Node
			if json.Unmarshal([]byte(raw), &n) == nil {
				return &n, nil
			}
			// entrada corrupta: descartar y resolver de nuevo
			_ = r.cache.Delete(ctx, key)
		}
	}

	v, err, _ := r.sf.Do(key, func() (any, error) {
		n, err := r.nodes.GetByID(ctx, nodeID)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			if raw, mErr := json.Marshal(n); mErr == nil {
				_ = r.cache.Set(ctx, key, string(raw), nodeCacheTTL)
			}
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*repository.Node), nil
}

func containsPerm(perms []string, need string) bool {
	for _, p := range perms {
		if p == need || p == "*" {
			return true
		}
	}
	return false
}
