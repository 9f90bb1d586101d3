package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/quarterdeck/internal/account"
	"github.com/dropDatabas3/quarterdeck/internal/audit"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/http/dto"
	httperrors "github.com/dropDatabas3/quarterdeck/internal/http/errors"
	"github.com/dropDatabas3/quarterdeck/internal/http/middlewares"
	"github.com/dropDatabas3/quarterdeck/internal/metrics"
	"github.com/dropDatabas3/quarterdeck/internal/transfer"
)

// AdminController maneja las acciones administrativas sobre cuentas y
// transfers. Todas las rutas pasan por RequireAdmin antes de llegar acá.
type AdminController struct {
	accounts  *account.Service
	transfers *transfer.Orchestrator
	active    repository.TransferRepository
	users     repository.UserRepository
	nodes     repository.NodeRepository
	recorder  audit.Recorder

	// panelURL es la base pública que los daemons usan para hablar con el
	// panel; viaja en la configuración generada para un node.
	panelURL string
}

func NewAdminController(
	accounts *account.Service,
	transfers *transfer.Orchestrator,
	active repository.TransferRepository,
	users repository.UserRepository,
	nodes repository.NodeRepository,
	recorder audit.Recorder,
	panelURL string,
) *AdminController {
	if recorder == nil {
		recorder = audit.LogRecorder{}
	}
	return &AdminController{
		accounts:  accounts,
		transfers: transfers,
		active:    active,
		users:     users,
		nodes:     nodes,
		recorder:  recorder,
		panelURL:  panelURL,
	}
}

func (c *AdminController) setSuspended(w http.ResponseWriter, r *http.Request, suspended bool) {
	adminID := middlewares.GetSessionData(r.Context()).UserID
	userID := chi.URLParam(r, "user")

	if err := c.users.SetSuspended(r.Context(), userID, suspended); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	action := "admin.user.suspend"
	if !suspended {
		action = "admin.user.unsuspend"
	}
	c.recorder.Record(r.Context(), audit.Event{
		Actor: adminID, ActorType: "user",
		Action: action, TargetType: "user", TargetID: userID,
	})
	writeNoContent(w)
}

// Suspend suspende la cuenta: sus permisos quedan anulados de inmediato.
// POST /api/admin/users/{user}/suspend
func (c *AdminController) Suspend(w http.ResponseWriter, r *http.Request) {
	c.setSuspended(w, r, true)
}

// Unsuspend reactiva la cuenta.
// POST /api/admin/users/{user}/unsuspend
func (c *AdminController) Unsuspend(w http.ResponseWriter, r *http.Request) {
	c.setSuspended(w, r, false)
}

// RequestVerification re-emite el email de verificación del usuario.
// POST /api/admin/users/{user}/verification
func (c *AdminController) RequestVerification(w http.ResponseWriter, r *http.Request) {
	if err := c.accounts.RequestVerification(r.Context(), chi.URLParam(r, "user")); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	writeNoContent(w)
}

// Impersonate emite un token single-use para actuar como el usuario target.
// El valor se entrega una única vez en esta respuesta.
// POST /api/admin/users/{user}/impersonate
func (c *AdminController) Impersonate(w http.ResponseWriter, r *http.Request) {
	adminID := middlewares.GetSessionData(r.Context()).UserID

	issued, err := c.accounts.IssueImpersonation(r.Context(), adminID, chi.URLParam(r, "user"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ImpersonateIssueResponse{
		Token:     issued.Value,
		ExpiresAt: issued.ExpiresAt,
	})
}

// ResetPassword fija un password temporal para el usuario y fuerza el
// cambio en el próximo login. El valor se muestra una única vez.
// POST /api/admin/users/{user}/password-reset
func (c *AdminController) ResetPassword(w http.ResponseWriter, r *http.Request) {
	adminID := middlewares.GetSessionData(r.Context()).UserID

	temp, err := c.accounts.SetTemporaryPassword(r.Context(), adminID, chi.URLParam(r, "user"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.TemporaryPasswordResponse{Password: temp})
}

// NodeConfiguration genera el bloque de configuración que el daemon del
// node necesita para registrarse contra el panel. Es el único endpoint que
// expone el secreto de conexión, y sólo a admins.
// GET /api/admin/nodes/{node}/configuration
func (c *AdminController) NodeConfiguration(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "node")

	node, err := c.nodes.GetByID(r.Context(), nodeID)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	conn, err := c.nodes.GetConnection(r.Context(), nodeID)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	resp := dto.NodeConfigurationResponse{
		UUID:    node.ID,
		TokenID: conn.TokenID,
		Token:   conn.TokenSecret,
		Remote:  c.panelURL,
	}
	resp.API.Host = "0.0.0.0"
	resp.API.Port = node.DaemonListen
	resp.API.SSL.Enabled = node.Scheme == "https"

	c.recorder.Record(r.Context(), audit.Event{
		Actor: middlewares.GetSessionData(r.Context()).UserID, ActorType: "user",
		Action: "admin.node.configuration_read", TargetType: "node", TargetID: nodeID,
	})
	writeJSON(w, http.StatusOK, resp)
}

// StartTransfer inicia la migración del server hacia otro node.
// POST /api/admin/servers/{server}/transfer
func (c *AdminController) StartTransfer(w http.ResponseWriter, r *http.Request) {
	var req dto.TransferStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TargetNodeID == "" || req.AllocationID == 0 {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("target_node_id and allocation_id are required"))
		return
	}

	rec, err := c.transfers.Initiate(r.Context(), chi.URLParam(r, "server"), req.TargetNodeID, transfer.InitiateInput{
		Actor:                   middlewares.GetSessionData(r.Context()).UserID,
		AllocationID:            req.AllocationID,
		AdditionalAllocationIDs: req.AdditionalAllocationIDs,
		StartOnCompletion:       req.StartOnCompletion,
	})
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	metrics.TransferTransitions.WithLabelValues(string(rec.Status)).Inc()

	writeJSON(w, http.StatusAccepted, dto.TransferResponse{Data: transferView(rec)})
}

// CancelTransfer cancela el transfer activo del server.
// DELETE /api/admin/servers/{server}/transfer
func (c *AdminController) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	active, err := c.active.GetActiveByServer(r.Context(), chi.URLParam(r, "server"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	rec, err := c.transfers.Cancel(r.Context(), active.ID)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	metrics.TransferTransitions.WithLabelValues(string(rec.Status)).Inc()

	writeJSON(w, http.StatusOK, dto.TransferResponse{Data: transferView(rec)})
}

func transferView(rec *repository.TransferRecord) dto.TransferView {
	return dto.TransferView{
		ID:                rec.ID,
		ServerUUID:        rec.ServerUUID,
		SourceNodeID:      rec.SourceNodeID,
		TargetNodeID:      rec.TargetNodeID,
		AllocationID:      rec.AllocationID,
		Status:            string(rec.Status),
		StartOnCompletion: rec.StartOnCompletion,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}
