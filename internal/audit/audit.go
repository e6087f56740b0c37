// Package audit appends state-change events to the audit trail. Writes are
// best-effort: a failed audit write is logged and dropped, never surfaced to
// the mutation that triggered it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/cargo-dispatch/internal/models"
)

// Recorder is the write-only sink for audit events.
type Recorder interface {
	Record(ctx context.Context, e models.AuditEvent)
}

// StoreRecorder appends events to the relational audit_log table.
type StoreRecorder struct {
	Appender interface {
		AppendAudit(ctx context.Context, e models.AuditEvent) error
	}
	Logger *slog.Logger
}

func (r *StoreRecorder) Record(ctx context.Context, e models.AuditEvent) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if err := r.Appender.AppendAudit(ctx, e); err != nil && r.Logger != nil {
		r.Logger.Error("audit write failed", "action", e.Action, "record_id", e.RecordID, "error", err)
	}
}

// Multi fans one event out to several recorders.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e models.AuditEvent) {
	for _, r := range m {
		r.Record(ctx, e)
	}
}

// Nop discards everything; handy when no sink is configured.
type Nop struct{}

func (Nop) Record(context.Context, models.AuditEvent) {}

// StatusUpdate builds the event appended on every successful transition.
func StatusUpdate(tripID string, from, to models.TripStatus) models.AuditEvent {
	return models.AuditEvent{
		TableName: "trips",
		RecordID:  tripID,
		Action:    models.ActionStatusUpdate,
		OldData:   map[string]any{"status": string(from)},
		NewData:   map[string]any{"status": string(to)},
		Message:   string(from) + " -> " + string(to),
		CreatedAt: time.Now(),
	}
}
