package trace

import (
	"context"
	"log/slog"
	"sync"
)

// Sink receives completed traces. Save is called exactly once per trace,
// after Freeze. Implementations must be safe for concurrent use.
type Sink interface {
	Save(ctx context.Context, t *Trace) error
}

// FallbackSink tries the primary sink and falls back to a secondary
// writer on error. The orchestrator never fails a request over a sink
// error; this type absorbs both failures.
type FallbackSink struct {
	primary  Sink
	fallback Sink
}

// NewFallbackSink wraps primary with fallback.
func NewFallbackSink(primary, fallback Sink) *FallbackSink {
	return &FallbackSink{primary: primary, fallback: fallback}
}

// Save attempts the primary sink, then the fallback. Always returns nil;
// a double failure is logged and dropped.
func (s *FallbackSink) Save(ctx context.Context, t *Trace) error {
	if err := s.primary.Save(ctx, t); err != nil {
		slog.Error("Primary trace sink failed, engaging fallback",
			"trace_id", t.TraceID, "error", err)
		if fbErr := s.fallback.Save(ctx, t); fbErr != nil {
			slog.Error("Fallback trace sink failed, dropping trace",
				"trace_id", t.TraceID, "error", fbErr)
		}
	}
	return nil
}

// MemorySink buffers traces in memory. Used by tests and as a last-resort
// fallback when no file path is configured.
type MemorySink struct {
	mu     sync.Mutex
	traces []*Trace
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Save appends the trace.
func (s *MemorySink) Save(_ context.Context, t *Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = append(s.traces, t)
	return nil
}

// Traces returns a snapshot of saved traces.
func (s *MemorySink) Traces() []*Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Trace, len(s.traces))
	copy(out, s.traces)
	return out
}
