package trace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTrace() *Trace {
	return New("trace-1", "u1", "s1", "t1", "1.0.0", "abc123def456", "control",
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestTraceAppendOrder(t *testing.T) {
	tr := newTestTrace()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, name := range []string{StageTraceOpen, StageSafety, StageRouting} {
		span := StartSpan(name, base.Add(time.Duration(i)*time.Millisecond)).
			End(base.Add(time.Duration(i+1) * time.Millisecond))
		require.NoError(t, tr.Append(span))
	}

	require.Len(t, tr.Spans, 3)
	assert.Equal(t, StageTraceOpen, tr.Spans[0].Name)
	assert.Equal(t, StageRouting, tr.Spans[2].Name)
}

func TestTraceRejectsInvertedSpan(t *testing.T) {
	tr := newTestTrace()
	now := time.Now()

	span := Span{Name: StageSafety, Start: now, End: now.Add(-time.Second), Status: SpanOK}
	assert.Error(t, tr.Append(span))
}

func TestTraceFrozenRejectsAppend(t *testing.T) {
	tr := newTestTrace()
	tr.Freeze(Totals{LatencyMS: 42, CostUSD: 0.01})

	assert.True(t, tr.Frozen())
	now := time.Now()
	err := tr.Append(StartSpan(StageFinalize, now).End(now))
	assert.Error(t, err)
	assert.Equal(t, int64(42), tr.TraceTotals.LatencyMS)
}

func TestSpanBuilder(t *testing.T) {
	start := time.Now()
	span := StartSpan(StageRerank, start).
		SetAttr("top_n", 5).
		Skip("rerank_error").
		End(start.Add(10 * time.Millisecond))

	assert.Equal(t, SpanSkipped, span.Status)
	assert.Equal(t, "rerank_error", span.Reason)
	assert.Equal(t, 5, span.Attributes["top_n"])
	assert.Equal(t, int64(10), span.DurationMS())
}

func TestFallbackSinkEngagesOnPrimaryFailure(t *testing.T) {
	primary := &failSink{}
	fallback := NewMemorySink()
	sink := NewFallbackSink(primary, fallback)

	tr := newTestTrace()
	tr.Freeze(Totals{})
	require.NoError(t, sink.Save(context.Background(), tr))

	require.Len(t, fallback.Traces(), 1)
	assert.Equal(t, "trace-1", fallback.Traces()[0].TraceID)
}

type failSink struct{}

func (failSink) Save(context.Context, *Trace) error {
	return assert.AnError
}

func TestMemorySinkConcurrentAppend(t *testing.T) {
	sink := NewMemorySink()
	done := make(chan struct{})

	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = sink.Save(context.Background(), newTestTrace())
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	assert.Len(t, sink.Traces(), 10)
}
