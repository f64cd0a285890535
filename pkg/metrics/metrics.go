// Package metrics defines the MetricSink consumed by the orchestrator
// and an OpenTelemetry-backed implementation.
package metrics

import "context"

// Metric names recorded by the pipeline. Label keys are fixed per metric.
const (
	// Counters.
	RequestsTotal        = "requests_total"              // route, status
	SafetyBlockedTotal   = "safety_blocked_total"        // layer, reason
	PIIDetectedTotal     = "pii_detected_total"          // type
	VerdictTotal         = "hallucination_verdict_total" // level
	LLMErrorsTotal       = "llm_errors_total"            // stage
	FeedbackTotal        = "feedback_received_total"     // rating
	VariantAssignedTotal = "variant_assigned_total"      // flag, variant
	ShadowDroppedTotal   = "shadow_dropped_total"        // reason

	// Histograms.
	RequestDuration = "request_duration_seconds" // stage
	RetrievalCosine = "retrieval_cosine_similarity"
	TokensIn        = "tokens_in_total"
	TokensOut       = "tokens_out_total"
	LLMCostUSD      = "llm_cost_usd"

	// Gauges.
	CentroidShift         = "embedding_centroid_shift"
	RetrievalEmptyRate    = "retrieval_empty_result_rate"
	ShadowBudgetRemaining = "shadow_budget_remaining_usd"
)

// Sink records metrics. Implementations must be safe for concurrent use.
type Sink interface {
	Inc(ctx context.Context, name string, labels map[string]string, value float64)
	Observe(ctx context.Context, name string, labels map[string]string, value float64)
	Set(ctx context.Context, name string, labels map[string]string, value float64)
}

// Noop discards all metrics.
type Noop struct{}

func (Noop) Inc(context.Context, string, map[string]string, float64)     {}
func (Noop) Observe(context.Context, string, map[string]string, float64) {}
func (Noop) Set(context.Context, string, map[string]string, float64)     {}
