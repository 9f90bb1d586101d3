package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
)

// Starter asks a server's node to boot it. It implements the post-transfer
// start hook: the caller only has a server uuid, so the node and its
// connection are resolved here.
type Starter struct {
	servers repository.ServerRepository
	nodes   repository.NodeRepository
	signer  *Signer
	http    *http.Client
}

func NewStarter(servers repository.ServerRepository, nodes repository.NodeRepository, signer *Signer, httpClient *http.Client) *Starter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Starter{servers: servers, nodes: nodes, signer: signer, http: httpClient}
}

// QueueStart signs a panel credential and posts a start power action to the
// node currently owning the server.
func (s *Starter) QueueStart(ctx context.Context, serverUUID string) error {
	server, err := s.servers.GetByUUID(ctx, serverUUID)
	if err != nil {
		return fmt.Errorf("daemon: resolve server for start: %w", err)
	}
	conn, err := s.nodes.GetConnection(ctx, server.NodeID)
	if err != nil {
		return fmt.Errorf("daemon: resolve node connection: %w", err)
	}
	node, err := s.nodes.GetByID(ctx, server.NodeID)
	if err != nil {
		return fmt.Errorf("daemon: resolve node: %w", err)
	}

	cred, err := s.signer.Sign(conn, DelegationClaims{
		ServerUUID:   server.UUID,
		Permissions:  []string{"control.start"},
		IdentifiedBy: "panel:" + server.UUID,
	}, proxyCredentialTTL)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/api/servers/%s/power", node.BaseURL(), server.UUID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(`{"action":"start"}`))
	if err != nil {
		return fmt.Errorf("daemon: build power request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return &UpstreamError{NodeID: node.ID, ServerUUID: server.UUID, Reason: sanitizeTransportError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.From(ctx).Warn("node rejected queued start",
			logger.NodeID(node.ID), logger.ServerID(server.UUID), logger.Status(resp.StatusCode))
		return &UpstreamError{NodeID: node.ID, ServerUUID: server.UUID, Status: resp.StatusCode, Reason: "power action rejected"}
	}
	return nil
}
