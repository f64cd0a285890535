package metrics

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelSink records metrics through an OpenTelemetry meter. Instruments
// are created lazily and cached by name; updates are atomic inside the
// SDK, so the sink is safe for concurrent use.
type OTelSink struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
}

// NewOTelSink creates a sink over the given meter provider.
func NewOTelSink(provider *sdkmetric.MeterProvider) *OTelSink {
	return &OTelSink{
		meter:      provider.Meter("enterprise-pipeline"),
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

// Inc adds value to the named counter.
func (s *OTelSink) Inc(ctx context.Context, name string, labels map[string]string, value float64) {
	s.mu.Lock()
	counter, ok := s.counters[name]
	if !ok {
		var err error
		counter, err = s.meter.Float64Counter(name)
		if err != nil {
			s.mu.Unlock()
			slog.Warn("Failed to create counter", "metric", name, "error", err)
			return
		}
		s.counters[name] = counter
	}
	s.mu.Unlock()

	counter.Add(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

// Observe records value into the named histogram.
func (s *OTelSink) Observe(ctx context.Context, name string, labels map[string]string, value float64) {
	s.mu.Lock()
	hist, ok := s.histograms[name]
	if !ok {
		var err error
		hist, err = s.meter.Float64Histogram(name)
		if err != nil {
			s.mu.Unlock()
			slog.Warn("Failed to create histogram", "metric", name, "error", err)
			return
		}
		s.histograms[name] = hist
	}
	s.mu.Unlock()

	hist.Record(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

// Set records the current value of the named gauge.
func (s *OTelSink) Set(ctx context.Context, name string, labels map[string]string, value float64) {
	s.mu.Lock()
	gauge, ok := s.gauges[name]
	if !ok {
		var err error
		gauge, err = s.meter.Float64Gauge(name)
		if err != nil {
			s.mu.Unlock()
			slog.Warn("Failed to create gauge", "metric", name, "error", err)
			return
		}
		s.gauges[name] = gauge
	}
	s.mu.Unlock()

	gauge.Record(ctx, value, metric.WithAttributes(toAttributes(labels)...))
}

func toAttributes(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
