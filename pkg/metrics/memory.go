package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process sink used by tests and local development.
type Memory struct {
	mu       sync.Mutex
	counters map[string]float64
	observed map[string][]float64
	gauges   map[string]float64
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{
		counters: make(map[string]float64),
		observed: make(map[string][]float64),
		gauges:   make(map[string]float64),
	}
}

// key renders name plus sorted labels so lookups are deterministic.
func key(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := name
	for _, k := range keys {
		out += fmt.Sprintf("{%s=%s}", k, labels[k])
	}
	return out
}

func (m *Memory) Inc(_ context.Context, name string, labels map[string]string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key(name, labels)] += value
}

func (m *Memory) Observe(_ context.Context, name string, labels map[string]string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(name, labels)
	m.observed[k] = append(m.observed[k], value)
}

func (m *Memory) Set(_ context.Context, name string, labels map[string]string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[key(name, labels)] = value
}

// Counter returns the accumulated counter value for name+labels.
func (m *Memory) Counter(name string, labels map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key(name, labels)]
}

// Gauge returns the last gauge value for name+labels.
func (m *Memory) Gauge(name string, labels map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[key(name, labels)]
}

// Observations returns recorded histogram samples for name+labels.
func (m *Memory) Observations(name string, labels map[string]string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.observed[key(name, labels)]...)
}
