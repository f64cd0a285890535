package experiment

import (
	"context"
	"log/slog"

	"github.com/musicofhel/enterprise-pipeline/pkg/audit"
	"github.com/musicofhel/enterprise-pipeline/pkg/metrics"
)

// VariantRecorder emits the variant_assignment audit event and metric on
// every primary request, before the pipeline begins.
type VariantRecorder struct {
	audit   *audit.Recorder
	metrics metrics.Sink
}

// NewVariantRecorder builds a recorder.
func NewVariantRecorder(auditRecorder *audit.Recorder, sink metrics.Sink) *VariantRecorder {
	return &VariantRecorder{audit: auditRecorder, metrics: sink}
}

// Record emits the assignment. Sink failures are logged, never fatal.
func (r *VariantRecorder) Record(ctx context.Context, traceID, userID, tenantID, flag, variant string) {
	if err := r.audit.VariantAssignment(ctx, traceID, userID, tenantID, flag, variant); err != nil {
		slog.Warn("Failed to append variant assignment audit event",
			"trace_id", traceID, "flag", flag, "error", err)
	}
	r.metrics.Inc(ctx, metrics.VariantAssignedTotal,
		map[string]string{"flag": flag, "variant": variant}, 1)
}
