// Package trace implements the per-request trace model: one Trace per
// request owning an append-only list of stage Spans, flushed to a
// TraceSink exactly once at finalize.
package trace

import (
	"fmt"
	"sync"
	"time"
)

// Stage names form the fixed span vocabulary. Span names outside this
// list are a programming error.
const (
	StageTraceOpen      = "trace_open"
	StageSafety         = "input_safety"
	StageRouting        = "routing"
	StageDispatch       = "dispatch"
	StageExpansion      = "query_expansion"
	StageRetrieval      = "retrieval"
	StageDedupFuse      = "dedup_fuse"
	StageRerank         = "rerank"
	StageCompression    = "compression"
	StageGeneration     = "generation"
	StageGrounding      = "grounding"
	StageOutputValidate = "output_validation"
	StageFinalize       = "finalize"
)

// SpanStatus is the terminal state of one stage span.
type SpanStatus string

const (
	SpanOK      SpanStatus = "ok"
	SpanSkipped SpanStatus = "skipped"
	SpanFailed  SpanStatus = "failed"
)

// Span is one stage's trace record.
type Span struct {
	Name       string         `json:"name"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	Status     SpanStatus     `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// DurationMS returns the span duration in milliseconds.
func (s *Span) DurationMS() int64 {
	return s.End.Sub(s.Start).Milliseconds()
}

// Totals aggregates request-level cost and latency.
type Totals struct {
	LatencyMS int64   `json:"latency_ms"`
	CostUSD   float64 `json:"cost_usd"`
}

// Trace is the per-request record handed to the TraceSink at finalize.
// Spans are append-only during the request; Freeze makes further appends
// a no-op error.
type Trace struct {
	mu     sync.Mutex
	frozen bool

	TraceID         string             `json:"trace_id"`
	Timestamp       time.Time          `json:"timestamp"`
	UserID          string             `json:"user_id"`
	SessionID       string             `json:"session_id,omitempty"`
	TenantID        string             `json:"tenant_id"`
	PipelineVersion string             `json:"pipeline_version"`
	ConfigHash      string             `json:"config_hash"`
	Variant         string             `json:"variant"`
	Spans           []Span             `json:"spans"`
	Scores          map[string]float64 `json:"scores"`
	TraceTotals     Totals             `json:"totals"`
}

// New creates an open trace bound to one request.
func New(traceID, userID, sessionID, tenantID, pipelineVersion, configHash, variant string, now time.Time) *Trace {
	return &Trace{
		TraceID:         traceID,
		Timestamp:       now,
		UserID:          userID,
		SessionID:       sessionID,
		TenantID:        tenantID,
		PipelineVersion: pipelineVersion,
		ConfigHash:      configHash,
		Variant:         variant,
		Scores:          make(map[string]float64),
	}
}

// Append adds a completed span. Append order matches stage start order;
// the orchestrator appends each span when its stage returns.
func (t *Trace) Append(span Span) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return fmt.Errorf("trace %s is frozen", t.TraceID)
	}
	if span.End.Before(span.Start) {
		return fmt.Errorf("span %s: end precedes start", span.Name)
	}
	t.Spans = append(t.Spans, span)
	return nil
}

// SetScore records a scalar score (faithfulness, route confidence, ...).
func (t *Trace) SetScore(name string, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return
	}
	t.Scores[name] = value
}

// Freeze seals the trace and records totals. Called once at finalize,
// immediately before the sink hand-off.
func (t *Trace) Freeze(totals Totals) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frozen = true
	t.TraceTotals = totals
}

// Frozen reports whether the trace has been sealed.
func (t *Trace) Frozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frozen
}

// SpanBuilder accumulates one stage span. The orchestrator opens a
// builder before the stage runs and closes it with the outcome.
type SpanBuilder struct {
	span Span
}

// StartSpan opens a span builder for a stage.
func StartSpan(name string, now time.Time) *SpanBuilder {
	return &SpanBuilder{span: Span{
		Name:       name,
		Start:      now,
		Status:     SpanOK,
		Attributes: make(map[string]any),
	}}
}

// SetAttr records one typed attribute.
func (b *SpanBuilder) SetAttr(key string, value any) *SpanBuilder {
	b.span.Attributes[key] = value
	return b
}

// Skip marks the span skipped with a reason.
func (b *SpanBuilder) Skip(reason string) *SpanBuilder {
	b.span.Status = SpanSkipped
	b.span.Reason = reason
	return b
}

// Fail marks the span failed with a reason.
func (b *SpanBuilder) Fail(reason string) *SpanBuilder {
	b.span.Status = SpanFailed
	b.span.Reason = reason
	return b
}

// End closes the span at the given time and returns it.
func (b *SpanBuilder) End(now time.Time) Span {
	b.span.End = now
	if len(b.span.Attributes) == 0 {
		b.span.Attributes = nil
	}
	return b.span
}
