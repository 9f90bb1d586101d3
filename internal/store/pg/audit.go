package pg

import (
	"context"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
)

type auditRepo Store

func (r *auditRepo) Insert(ctx context.Context, ev *repository.AuditEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_events (id, actor, actor_type, action, target_type, target_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.Actor, ev.ActorType, ev.Action, ev.TargetType, ev.TargetID, ev.Metadata, ev.CreatedAt)
	return err
}
