// internal/audit/audit.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"equipledger/internal/storage"
)

// Entry is an immutable record of one state-changing operation.
type Entry struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Actor     uuid.UUID `json:"actor"`
	Operation string    `json:"operation"`
	EntityID  uuid.UUID `json:"entity_id"`
	Before    string    `json:"before,omitempty"`
	After     string    `json:"after,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Filter narrows a trail query. Nil/zero fields match everything.
type Filter struct {
	EntityID *uuid.UUID
	Actor    *uuid.UUID
	From     time.Time
	To       time.Time
}

// Trail is the append-only audit log. Appends serialize on the trail's own
// mutex and carry a monotonic sequence counter that breaks timestamp ties.
// Each append is persisted through the storage engine before it becomes
// visible; a failed persist surfaces storage.ErrUnavailable and leaves the
// trail unchanged.
type Trail struct {
	mu      sync.RWMutex
	entries []Entry
	seq     int64
	engine  storage.Engine
	now     func() time.Time
	tracer  trace.Tracer
}

// NewTrail returns an empty trail persisting through engine.
func NewTrail(engine storage.Engine, now func() time.Time) *Trail {
	if now == nil {
		now = time.Now
	}
	return &Trail{
		engine: engine,
		now:    now,
		tracer: otel.Tracer("equipledger/audit"),
	}
}

// Append records one entry. The caller never sets Seq or Timestamp.
func (t *Trail) Append(ctx context.Context, entry Entry) error {
	ctx, span := t.tracer.Start(ctx, "audit.append",
		trace.WithAttributes(
			attribute.String("audit.operation", entry.Operation),
			attribute.String("audit.entity", entry.EntityID.String()),
		),
	)
	defer span.End()

	t.mu.Lock()
	defer t.mu.Unlock()

	entry.Seq = t.seq + 1
	entry.Timestamp = t.now()

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	if err := t.engine.AtomicWrite(ctx, fmt.Sprintf("audit/%012d", entry.Seq), payload); err != nil {
		span.SetAttributes(attribute.Bool("audit.persist_failed", true))
		return fmt.Errorf("audit write failed: %w", err)
	}

	t.seq = entry.Seq
	t.entries = append(t.entries, entry)
	span.SetAttributes(attribute.Int64("audit.seq", entry.Seq))
	return nil
}

// Query returns matching entries ordered by timestamp ascending, sequence
// breaking ties. The result is a finite copy; re-running the query re-executes
// the scan.
func (t *Trail) Query(ctx context.Context, filter Filter) []Entry {
	_, span := t.tracer.Start(ctx, "audit.query")
	defer span.End()

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Entry
	for _, e := range t.entries {
		if filter.EntityID != nil && e.EntityID != *filter.EntityID {
			continue
		}
		if filter.Actor != nil && e.Actor != *filter.Actor {
			continue
		}
		if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.Timestamp.After(filter.To) {
			continue
		}
		out = append(out, e)
	}
	span.SetAttributes(attribute.Int("audit.matched", len(out)))
	return out
}

// Entries returns a copy of the full trail, used by snapshot capture.
func (t *Trail) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Restore replaces the trail contents wholesale, used by snapshot restore.
func (t *Trail) Restore(entries []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make([]Entry, len(entries))
	copy(t.entries, entries)
	t.seq = 0
	if n := len(t.entries); n > 0 {
		t.seq = t.entries[n-1].Seq
	}
}
