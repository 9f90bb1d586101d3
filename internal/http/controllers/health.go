package controllers

import (
	"context"
	"net/http"
	"time"
)

// HealthController maneja GET /readyz. Público, sin auth.
type HealthController struct {
	version string
	checks  map[string]func(ctx context.Context) error
}

func NewHealthController(version string, checks map[string]func(ctx context.Context) error) *HealthController {
	return &HealthController{version: version, checks: checks}
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// Readyz responde 200 mientras todos los componentes estén sanos y 503 si
// alguno falla. Los checks corren con un timeout corto para no colgar los
// probes del orquestador.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ready", Version: c.version}
	if len(c.checks) > 0 {
		resp.Components = make(map[string]string, len(c.checks))
	}
	status := http.StatusOK
	for name, check := range c.checks {
		if err := check(ctx); err != nil {
			resp.Components[name] = "unavailable"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}

	if c.version != "" {
		w.Header().Set("X-Service-Version", c.version)
	}
	writeJSON(w, status, resp)
}
