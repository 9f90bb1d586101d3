// Package audit records structured audit events. Recording is
// fire-and-forget: a failing or slow sink must never block nor fail the
// operation that produced the event.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/quarterdeck/internal/domain/repository"
	"github.com/dropDatabas3/quarterdeck/internal/observability/logger"
)

// Event es el registro que emiten los componentes del core.
type Event struct {
	Actor      string
	ActorType  string // "user" | "system" | "node"
	Action     string // p.ej. "admin.user.impersonate"
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

// Recorder recibe eventos de auditoría.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// LogRecorder escribe eventos solo al logger. Sirve de fallback y para dev.
type LogRecorder struct{}

func (LogRecorder) Record(ctx context.Context, ev Event) {
	logger.From(ctx).Info("audit",
		logger.String("actor", ev.Actor),
		logger.String("actor_type", ev.ActorType),
		logger.String("action", ev.Action),
		logger.String("target_type", ev.TargetType),
		logger.String("target_id", ev.TargetID),
	)
}

// StoreRecorder persiste eventos vía repositorio en un worker propio, con
// una cola acotada: si la cola se llena, el evento se descarta con un warn
// en vez de bloquear al caller.
type StoreRecorder struct {
	repo  repository.AuditEventRepository
	queue chan *repository.AuditEvent
	done  chan struct{}
}

// NewStoreRecorder crea el recorder y arranca su worker.
func NewStoreRecorder(repo repository.AuditEventRepository) *StoreRecorder {
	r := &StoreRecorder{
		repo:  repo,
		queue: make(chan *repository.AuditEvent, 256),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *StoreRecorder) Record(ctx context.Context, ev Event) {
	rec := &repository.AuditEvent{
		ID:         uuid.NewString(),
		Actor:      ev.Actor,
		ActorType:  ev.ActorType,
		Action:     ev.Action,
		TargetType: ev.TargetType,
		TargetID:   ev.TargetID,
		Metadata:   ev.Metadata,
		CreatedAt:  time.Now().UTC(),
	}
	select {
	case r.queue <- rec:
	default:
		logger.From(ctx).Warn("audit queue full, event dropped",
			logger.String("action", ev.Action), logger.String("target_id", ev.TargetID))
	}
}

func (r *StoreRecorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.repo.Insert(ctx, rec); err != nil {
			logger.L().Warn("audit event insert failed",
				logger.String("action", rec.Action), logger.Err(err))
		}
		cancel()
	}
}

// Close drena la cola y detiene el worker.
func (r *StoreRecorder) Close() {
	close(r.queue)
	<-r.done
}
