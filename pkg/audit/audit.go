// Package audit provides the append-only audit trail. The Sink interface
// deliberately exposes no update or delete operation.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// Sink appends audit events. Ordering across events is not guaranteed;
// durability is preferred. Implementations must be safe for concurrent
// append from many request tasks.
type Sink interface {
	Append(ctx context.Context, event models.AuditEvent) error
}

// Recorder builds well-formed events and forwards them to the sink.
type Recorder struct {
	sink  Sink
	clock interface{ Now() time.Time }
	idgen interface{ NewID() string }
}

// NewRecorder creates a recorder over a sink.
func NewRecorder(sink Sink, clock interface{ Now() time.Time }, idgen interface{ NewID() string }) *Recorder {
	return &Recorder{sink: sink, clock: clock, idgen: idgen}
}

// SafetyBlock records a request blocked by the input safety stage.
func (r *Recorder) SafetyBlock(ctx context.Context, traceID, userID, tenantID, layer, reason string) error {
	return r.sink.Append(ctx, models.AuditEvent{
		EventID:   r.idgen.NewID(),
		EventType: models.AuditSafetyBlock,
		Timestamp: r.clock.Now(),
		Actor:     models.AuditActor{Type: "user", ID: userID},
		Resource:  models.AuditResource{Type: "trace", ID: traceID},
		Action:    "block",
		TenantID:  tenantID,
		Details:   map[string]any{"layer": layer, "reason": reason},
	})
}

// VariantAssignment records the experiment arm resolved for a request.
func (r *Recorder) VariantAssignment(ctx context.Context, traceID, userID, tenantID, flag, variant string) error {
	return r.sink.Append(ctx, models.AuditEvent{
		EventID:   r.idgen.NewID(),
		EventType: models.AuditVariantAssignment,
		Timestamp: r.clock.Now(),
		Actor:     models.AuditActor{Type: "system", ID: "feature_flags"},
		Resource:  models.AuditResource{Type: "trace", ID: traceID},
		Action:    "assign",
		TenantID:  tenantID,
		Details:   map[string]any{"user_id": userID, "flag": flag, "variant": variant},
	})
}

// FeedbackWrite records user feedback attached to a trace.
func (r *Recorder) FeedbackWrite(ctx context.Context, traceID, userID, tenantID, rating string) error {
	return r.sink.Append(ctx, models.AuditEvent{
		EventID:   r.idgen.NewID(),
		EventType: models.AuditFeedbackWrite,
		Timestamp: r.clock.Now(),
		Actor:     models.AuditActor{Type: "user", ID: userID},
		Resource:  models.AuditResource{Type: "trace", ID: traceID},
		Action:    "write",
		TenantID:  tenantID,
		Details:   map[string]any{"rating": rating},
	})
}

// UserDataDeletion records a deletion forwarded from the external
// compliance service.
func (r *Recorder) UserDataDeletion(ctx context.Context, actorID, tenantID, userID string, chunksDeleted int) error {
	return r.sink.Append(ctx, models.AuditEvent{
		EventID:   r.idgen.NewID(),
		EventType: models.AuditUserDataDeletion,
		Timestamp: r.clock.Now(),
		Actor:     models.AuditActor{Type: "service", ID: actorID},
		Resource:  models.AuditResource{Type: "user_data", ID: userID},
		Action:    "delete",
		TenantID:  tenantID,
		Details:   map[string]any{"chunks_deleted": chunksDeleted},
	})
}

// MemorySink buffers events in memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Append stores the event.
func (s *MemorySink) Append(_ context.Context, event models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of appended events.
func (s *MemorySink) Events() []models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}
