package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/quarterdeck/internal/access"
	"github.com/dropDatabas3/quarterdeck/internal/daemon"
	"github.com/dropDatabas3/quarterdeck/internal/http/dto"
	httperrors "github.com/dropDatabas3/quarterdeck/internal/http/errors"
	"github.com/dropDatabas3/quarterdeck/internal/http/middlewares"
	"github.com/dropDatabas3/quarterdeck/internal/metrics"
)

// Permisos requeridos por los endpoints client.
const (
	PermWebsocketConnect = "websocket.connect"
	PermFileRead         = "file.read"
)

// ClientController maneja los endpoints de usuarios sobre sus servers. Cada
// handler resuelve sesión + server + permisos en un solo paso; el orden de
// chequeo (y qué error ve el caller) es responsabilidad del resolver.
type ClientController struct {
	resolver *access.Resolver
	signer   *daemon.Signer
	nodes    *daemon.Client
	credTTL  time.Duration
}

func NewClientController(resolver *access.Resolver, signer *daemon.Signer, nodes *daemon.Client, credTTL time.Duration) *ClientController {
	if credTTL <= 0 {
		credTTL = daemon.DefaultCredentialTTL
	}
	return &ClientController{resolver: resolver, signer: signer, nodes: nodes, credTTL: credTTL}
}

// Websocket emite la credencial firmada para abrir la consola del server.
// GET /api/client/servers/{server}/websocket
func (c *ClientController) Websocket(w http.ResponseWriter, r *http.Request) {
	sess := middlewares.GetSession(r.Context())
	identifier := chi.URLParam(r, "server")

	actx, err := c.resolver.ServerContext(r.Context(), sess, identifier, PermWebsocketConnect)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	cred, err := c.signer.ConsoleCredential(actx, c.credTTL)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	metrics.DaemonCredentialsSigned.Inc()

	writeJSON(w, http.StatusOK, dto.WebsocketResponse{Data: dto.WebsocketCredential{
		Token:     cred.Token,
		Socket:    cred.SocketURL,
		ExpiresAt: cred.ExpiresAt,
	}})
}

// ListFiles lista un directorio del server a través de su node.
// GET /api/client/servers/{server}/files/list?directory=/
func (c *ClientController) ListFiles(w http.ResponseWriter, r *http.Request) {
	sess := middlewares.GetSession(r.Context())
	identifier := chi.URLParam(r, "server")

	actx, err := c.resolver.ServerContext(r.Context(), sess, identifier, PermFileRead)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	entries, err := c.nodes.ListDirectory(r.Context(), actx, r.URL.Query().Get("directory"))
	if err != nil {
		metrics.DaemonProxyErrors.WithLabelValues(actx.Node.ID).Inc()
		httperrors.WriteError(w, err)
		return
	}

	out := make([]dto.FileEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.FileEntryView{
			Name:      e.Name,
			Mode:      e.Mode,
			Size:      e.Size,
			Directory: e.Directory,
			File:      e.File,
			Symlink:   e.Symlink,
			Mime:      e.Mime,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, dto.FileListResponse{Data: out})
}
