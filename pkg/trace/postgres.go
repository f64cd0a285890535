package trace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists traces as JSON documents in the traces table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a sink over an existing connection pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Save inserts the trace. Conflicting trace IDs are rejected; the
// orchestrator guarantees one Save per request.
func (s *PostgresSink) Save(ctx context.Context, t *Trace) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshalling trace %s: %w", t.TraceID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO traces (trace_id, tenant_id, user_id, created_at, pipeline_version, config_hash, variant, latency_ms, cost_usd, document)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.TraceID, t.TenantID, t.UserID, t.Timestamp, t.PipelineVersion,
		t.ConfigHash, t.Variant, t.TraceTotals.LatencyMS, t.TraceTotals.CostUSD, doc)
	if err != nil {
		return fmt.Errorf("inserting trace %s: %w", t.TraceID, err)
	}
	return nil
}
