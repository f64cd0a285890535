package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

type fixedIDGen struct{}

func (fixedIDGen) NewID() string { return "event-1" }

func TestRecorderSafetyBlock(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(sink, fixedClock{}, fixedIDGen{})

	require.NoError(t, rec.SafetyBlock(context.Background(), "tr-1", "u1", "t1", "L1", "injection"))

	events := sink.Events()
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, models.AuditSafetyBlock, e.EventType)
	assert.Equal(t, "event-1", e.EventID)
	assert.Equal(t, "t1", e.TenantID)
	assert.Equal(t, models.AuditActor{Type: "user", ID: "u1"}, e.Actor)
	assert.Equal(t, models.AuditResource{Type: "trace", ID: "tr-1"}, e.Resource)
	assert.Equal(t, "L1", e.Details["layer"])
}

func TestRecorderVariantAssignment(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(sink, fixedClock{}, fixedIDGen{})

	require.NoError(t, rec.VariantAssignment(context.Background(), "tr-1", "u1", "t1", "prompt_v2", "treatment"))

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.AuditVariantAssignment, events[0].EventType)
	assert.Equal(t, "treatment", events[0].Details["variant"])
}

func TestRecorderUserDataDeletion(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(sink, fixedClock{}, fixedIDGen{})

	require.NoError(t, rec.UserDataDeletion(context.Background(), "compliance-svc", "t1", "u9", 42))

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.AuditUserDataDeletion, events[0].EventType)
	assert.Equal(t, 42, events[0].Details["chunks_deleted"])
}

func TestMemorySinkSnapshotIsolated(t *testing.T) {
	sink := NewMemorySink()
	rec := NewRecorder(sink, fixedClock{}, fixedIDGen{})
	require.NoError(t, rec.FeedbackWrite(context.Background(), "tr-1", "u1", "t1", "up"))

	snapshot := sink.Events()
	snapshot[0].TenantID = "mutated"
	assert.Equal(t, "t1", sink.Events()[0].TenantID, "snapshot mutation must not leak back")
}
