// Package dto define los cuerpos de request/response de la API. Los tokens
// de cuenta solo viajan en requests; ninguna respuesta repite su valor.
package dto

import "time"

// ---- requests ----

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ImpersonateConsumeRequest struct {
	Token string `json:"token"`
}

type TransferStartRequest struct {
	TargetNodeID            string  `json:"target_node_id"`
	AllocationID            int64   `json:"allocation_id"`
	AdditionalAllocationIDs []int64 `json:"additional_allocation_ids,omitempty"`
	StartOnCompletion       bool    `json:"start_on_completion"`
}

// ---- responses ----

type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// SessionResponse es el resultado de consumir un token de impersonación:
// una sesión nueva actuando como el usuario target.
type SessionResponse struct {
	SessionToken   string   `json:"session_token"`
	User           UserView `json:"user"`
	ImpersonatedBy string   `json:"impersonated_by,omitempty"`
}

// TemporaryPasswordResponse entrega el password temporal generado. Se emite
// una sola vez; el panel no lo vuelve a mostrar.
type TemporaryPasswordResponse struct {
	Password string `json:"password"`
}

// NodeConfigurationResponse es el bloque de configuración que un daemon
/// necesita para registrarse. Incluye el secreto de conexión: solo se sirve
// por el endpoint admin de configuración.
type NodeConfigurationResponse struct {
	Debug   bool   `json:"debug"`
	UUID    string `json:"uuid"`
	TokenID string `json:"token_id"`
	Token   string `json:"token"`
	API     struct {
		Host string `json:"host"`
		Port int    `json:"port"`
		SSL  struct {
			Enabled bool `json:"enabled"`
		} `json:"ssl"`
	} `json:"api"`
	Remote string `json:"remote"`
}

// ImpersonateIssueResponse entrega el token single-use al admin que lo pidió.
type ImpersonateIssueResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WebsocketCredential es el par token + URL que el browser usa para abrir la
// consola directo contra el node.
type WebsocketCredential struct {
	Token     string    `json:"token"`
	Socket    string    `json:"socket"`
	ExpiresAt time.Time `json:"expires_at"`
}

type WebsocketResponse struct {
	Data WebsocketCredential `json:"data"`
}

type FileEntryView struct {
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

type FileListResponse struct {
	Data []FileEntryView `json:"data"`
}

type TransferView struct {
	ID                string    `json:"id"`
	ServerUUID        string    `json:"server_uuid"`
	SourceNodeID      string    `json:"source_node_id"`
	TargetNodeID      string    `json:"target_node_id"`
	AllocationID      int64     `json:"allocation_id"`
	Status            string    `json:"status"`
	StartOnCompletion bool      `json:"start_on_completion"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type TransferResponse struct {
	Data TransferView `json:"data"`
}
