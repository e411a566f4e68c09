// Package audit appends the append-only audit trail for authentication,
// authorization, data access, configuration and signal events.
package audit

import (
	"context"

	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

// RequestMeta carries the client attribution recorded on every event.
type RequestMeta struct {
	ActorID   *int64
	IP        string
	UserAgent string
}

// Recorder writes audit events. A failed append is logged, never propagated:
// audit must not fail the operation it describes.
type Recorder struct {
	events store.AuditStore
	logger *zap.Logger
}

// NewRecorder creates an audit recorder.
func NewRecorder(events store.AuditStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		events: events,
		logger: logger.With(zap.String("engine", "audit")),
	}
}

// Record appends one audit event with a typed detail payload.
func (r *Recorder) Record(ctx context.Context, meta RequestMeta, kind models.AuditKind, resource, action, outcome string, detail any) {
	event := &models.AuditEvent{
		ActorID:   meta.ActorID,
		Kind:      kind,
		Resource:  resource,
		Action:    action,
		Outcome:   outcome,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Details:   models.MarshalDetail(detail),
	}
	if err := r.events.Append(ctx, event); err != nil {
		r.logger.Error("Failed to append audit event",
			zap.Error(err),
			zap.String("kind", string(kind)),
			zap.String("action", action))
	}
}

// Success records a success-outcome event.
func (r *Recorder) Success(ctx context.Context, meta RequestMeta, kind models.AuditKind, resource, action string, detail any) {
	r.Record(ctx, meta, kind, resource, action, models.AuditOutcomeSuccess, detail)
}

// Failure records an error-outcome event.
func (r *Recorder) Failure(ctx context.Context, meta RequestMeta, kind models.AuditKind, resource, action string, detail any) {
	r.Record(ctx, meta, kind, resource, action, models.AuditOutcomeError, detail)
}
