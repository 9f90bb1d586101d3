package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	httperrors "github.com/dropDatabas3/quarterdeck/internal/http/errors"
	"github.com/dropDatabas3/quarterdeck/internal/metrics"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
	token "github.com/dropDatabas3/quarterdeck/internal/security/token"
	"github.com/dropDatabas3/quarterdeck/internal/transfer"
)

// NodeController recibe los callbacks de los daemons durante un transfer.
// El daemon se autentica con su credencial de conexión (token_id.token_secret)
// y solo puede reportar transfers en los que participa como source o target.
type NodeController struct {
	transfers *transfer.Orchestrator
	records   repository.TransferRepository
	nodes     repository.NodeRepository
}

func NewNodeController(transfers *transfer.Orchestrator, records repository.TransferRepository, nodes repository.NodeRepository) *NodeController {
	return &NodeController{transfers: transfers, records: records, nodes: nodes}
}

// authenticate resuelve el transfer de la URL y valida que la credencial
// Bearer pertenezca a su node source o target. Cualquier falla de credencial
// responde 401 sin distinguir la causa.
func (c *NodeController) authenticate(r *http.Request) (*repository.TransferRecord, string, error) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	tokenID, secret, ok := strings.Cut(raw, ".")
	if !ok || tokenID == "" || secret == "" {
		return nil, "", httperrors.ErrUnauthorized
	}

	rec, err := c.records.GetByID(r.Context(), chi.URLParam(r, "transfer"))
	if err != nil {
		// un transfer inexistente responde igual que una credencial mala
		return nil, "", httperrors.ErrUnauthorized
	}

	for _, nodeID := range []string{rec.SourceNodeID, rec.TargetNodeID} {
		conn, err := c.nodes.GetConnection(r.Context(), nodeID)
		if err != nil {
			continue
		}
		if token.HashEquals(conn.TokenID, tokenID) && token.HashEquals(conn.TokenSecret, secret) {
			return rec, nodeID, nil
		}
	}
	return nil, "", httperrors.ErrUnauthorized
}

// Status procesa el reporte de progreso de un transfer.
// POST /api/remote/transfers/{transfer}/status  body {"status": "started|success|failure"}
func (c *NodeController) Status(w http.ResponseWriter, r *http.Request) {
	rec, nodeID, err := c.authenticate(r)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	var updated *repository.TransferRecord
	switch req.Status {
	case "started":
		updated, err = c.transfers.Start(r.Context(), rec.ID)
	case "success":
		updated, err = c.transfers.Complete(r.Context(), rec.ID)
	case "failure":
		updated, err = c.transfers.Fail(r.Context(), rec.ID)
	default:
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("status must be started, success or failure"))
		return
	}
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	metrics.TransferTransitions.WithLabelValues(string(updated.Status)).Inc()
	logger.From(r.Context()).Info("transfer callback",
		logger.TransferID(rec.ID),
		logger.NodeID(nodeID),
		logger.String("reported", req.Status),
		logger.String("transfer_status", string(updated.Status)),
	)
	writeNoContent(w)
}
