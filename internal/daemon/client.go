package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/quarterdeck/internal/access"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
)

// ErrUpstreamUnavailable marks failures talking to a node daemon, as opposed
// to authorization failures, so callers can choose to retry or back off.
var ErrUpstreamUnavailable = errors.New("node daemon unavailable")

// UpstreamError carries operator-facing context about a failed node call.
// It never contains credential material.
type UpstreamError struct {
	NodeID     string
	ServerUUID string
	Status     int // 0 cuando la request ni llegó
	Reason     string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("node %s returned %d for server %s: %s", e.NodeID, e.Status, e.ServerUUID, e.Reason)
	}
	return fmt.Sprintf("node %s unreachable for server %s: %s", e.NodeID, e.ServerUUID, e.Reason)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstreamUnavailable }

// FileEntry is one directory listing entry as reported by the node.
type FileEntry struct {
	Name      string    `json:"name"`
	Mode      string    `json:"mode"`
	Size      int64     `json:"size"`
	Directory bool      `json:"directory"`
	File      bool      `json:"file"`
	Symlink   bool      `json:"symlink"`
	Mime      string    `json:"mime"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"modified"`
}

// Client proxies panel-side requests to a node daemon. Every call signs a
// fresh short-lived credential; timeouts are bounded by the caller's context
// plus a hard per-request cap. Failures are reported, never retried here.
type Client struct {
	signer *Signer
	http   *http.Client
}

// proxyCredentialTTL acota la vida del credential interno que el panel firma
// para sus propias llamadas proxy.
const proxyCredentialTTL = 2 * time.Minute

// NewClient creates a node client. httpClient may be nil for a default with
// a conservative timeout.
func NewClient(signer *Signer, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{signer: signer, http: httpClient}
}

// ListDirectory lists a server directory through its node.
func (c *Client) ListDirectory(ctx context.Context, actx *access.Context, directory string) ([]FileEntry, error) {
	if directory == "" {
		directory = "/"
	}

	cred, err := c.signer.Sign(actx.NodeConnection, DelegationClaims{
		ServerUUID:   actx.Server.UUID,
		UserID:       actx.User.ID,
		Permissions:  actx.Permissions,
		IdentifiedBy: "panel:" + actx.Server.UUID,
	}, proxyCredentialTTL)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/servers/%s/files/list?%s",
		actx.Node.BaseURL(), actx.Server.UUID,
		url.Values{"directory": {directory}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("daemon: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{
			NodeID:     actx.Node.ID,
			ServerUUID: actx.Server.UUID,
			Reason:     sanitizeTransportError(err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		logger.From(ctx).Warn("node daemon rejected proxy request",
			logger.NodeID(actx.Node.ID), logger.ServerID(actx.Server.UUID), logger.Status(resp.StatusCode))
		return nil, &UpstreamError{
			NodeID:     actx.Node.ID,
			ServerUUID: actx.Server.UUID,
			Status:     resp.StatusCode,
			Reason:     truncate(string(body), 200),
		}
	}

	var entries []FileEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, &UpstreamError{
			NodeID:     actx.Node.ID,
			ServerUUID: actx.Server.UUID,
			Status:     resp.StatusCode,
			Reason:     "malformed listing payload",
		}
	}
	return entries, nil
}

// sanitizeTransportError keeps the transport failure readable without
// leaking query strings or headers that may ride along in url.Error.
func sanitizeTransportError(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err.Error()
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
