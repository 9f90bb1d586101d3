// Package session implementa sesiones bearer opacas respaldadas por el
// cache compartido. El token de sesión es aleatorio y el cache guarda solo
// el snapshot serializado de la sesión; no hay estado en el proceso.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/quarterdeck/internal/cache"
	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	token "github.com/dropDatabas3/quarterdeck/internal/security/token"
)

// ErrNotFound indica sesión inexistente o vencida.
var ErrNotFound = errors.New("session not found")

// DefaultTTL es la vida de una sesión sin actividad.
const DefaultTTL = 2 * time.Hour

const tokenBytes = 32

// Data es el snapshot que se persiste en el cache.
type Data struct {
	UserID    string          `json:"user_id"`
	Role      repository.Role `json:"role"`
	Suspended bool            `json:"suspended"`
	// ImpersonatedBy es el admin que originó la sesión, "" si es directa.
	ImpersonatedBy string    `json:"impersonated_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Manager crea y resuelve sesiones.
type Manager struct {
	cache cache.Client
	ttl   time.Duration
}

func NewManager(c cache.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{cache: c, ttl: ttl}
}

func sessionKey(tok string) string { return "session:" + token.SHA256Hex(tok) }

// Create emite una sesión nueva y retorna el token opaco.
func (m *Manager) Create(ctx context.Context, d Data) (string, error) {
	tok, err := token.GenerateOpaqueToken(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	d.CreatedAt = time.Now().UTC()
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("session: marshal: %w", err)
	}
	if err := m.cache.Set(ctx, sessionKey(tok), string(b), m.ttl); err != nil {
		return "", fmt.Errorf("session: store: %w", err)
	}
	return tok, nil
}

// Get resuelve un token de sesión. ErrNotFound si no existe o venció.
func (m *Manager) Get(ctx context.Context, tok string) (*Data, error) {
	raw, err := m.cache.Get(ctx, sessionKey(tok))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: load: %w", err)
	}
	var d Data
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &d, nil
}

// Destroy invalida la sesión. Idempotente.
func (m *Manager) Destroy(ctx context.Context, tok string) error {
	return m.cache.Delete(ctx, sessionKey(tok))
}
