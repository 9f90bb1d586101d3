package repository

import (
	"context"
	"time"
)

// AuditEvent es un registro estructurado de una acción relevante.
type AuditEvent struct {
	ID         string
	Actor      string
	ActorType  string // "user" | "system" | "node"
	Action     string // p.ej. "admin.user.impersonate"
	TargetType string // "user" | "server" | "node" | "transfer"
	TargetID   string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// AuditEventRepository persiste eventos de auditoría.
type AuditEventRepository interface {
	Insert(ctx context.Context, ev *AuditEvent) error
}
