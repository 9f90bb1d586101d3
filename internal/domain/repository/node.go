package repository

import (
	"context"
	"strconv"
)

// Node representa un daemon remoto que aloja servers.
type Node struct {
	ID           string
	Name         string
	FQDN         string
	Scheme       string // "http" | "https"
	DaemonListen int    // puerto del daemon
	Maintenance  bool
}

// BaseURL retorna la URL base del daemon (scheme://fqdn:port).
func (n *Node) BaseURL() string {
	scheme := n.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + n.FQDN + ":" + strconv.Itoa(n.DaemonListen)
}

// SocketScheme retorna el scheme websocket correspondiente.
func (n *Node) SocketScheme() string {
	if n.Scheme == "https" {
		return "wss"
	}
	return "ws"
}

// NodeConnection contiene el secreto compartido con un node.
// Nunca debe cruzar el límite del proceso hacia el browser.
type NodeConnection struct {
	TokenID     string
	TokenSecret string
}

// NodeRepository define operaciones sobre nodes.
type NodeRepository interface {
	// GetByID retorna el node o ErrNotFound.
	GetByID(ctx context.Context, id string) (*Node, error)

	// GetConnection retorna el secreto de conexión del node o ErrNotFound.
	GetConnection(ctx context.Context, id string) (*NodeConnection, error)
}
