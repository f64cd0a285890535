package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// PostgresSink appends audit events to the audit_events table. The table
// carries no UPDATE or DELETE path in this codebase.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a sink over an existing connection pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Append inserts one event.
func (s *PostgresSink) Append(ctx context.Context, event models.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshalling audit details for %s: %w", event.EventID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_events (event_id, event_type, created_at, actor_type, actor_id, resource_type, resource_id, action, tenant_id, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.EventID, string(event.EventType), event.Timestamp,
		event.Actor.Type, event.Actor.ID,
		event.Resource.Type, event.Resource.ID,
		event.Action, event.TenantID, details)
	if err != nil {
		return fmt.Errorf("appending audit event %s: %w", event.EventID, err)
	}
	return nil
}
