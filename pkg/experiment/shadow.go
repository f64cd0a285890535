package experiment

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/musicofhel/enterprise-pipeline/pkg/config"
	"github.com/musicofhel/enterprise-pipeline/pkg/metrics"
)

// Shadow skip reasons. All but dropDisabled are recorded on the
// shadow_dropped_total counter.
const (
	dropDisabled = "disabled"
	dropSampled  = "sampled_out"
	dropBudget   = "budget_exhausted"
	dropCircuit  = "circuit_open"
	dropInflight = "inflight_cap"
)

// circuitWindowSize bounds the rolling latency window.
const circuitWindowSize = 20

// ShadowTask re-runs generation + grounding with the candidate variant.
// It receives its own context and returns the observed cost in USD and
// latency in milliseconds. It must not touch primary request state.
type ShadowTask func(ctx context.Context) (costUSD float64, latencyMS int64)

// latencyPair is one completed shadow run versus its primary.
type latencyPair struct {
	shadowMS  int64
	primaryMS int64
}

// Runner gates and launches fire-and-forget shadow tasks. All mutable
// state (spend, inflight count, circuit window) is process-local;
// multi-process deployments drift from the stated budget.
type Runner struct {
	cfg     config.ShadowConfig
	metrics metrics.Sink

	spentMicroUSD atomic.Int64
	inflight      atomic.Int32

	mu     sync.Mutex
	window []latencyPair

	// sample returns a uniform [0,1) draw; replaced in tests.
	sample func() float64

	// wg tracks launched tasks so tests and shutdown can wait.
	wg sync.WaitGroup
}

// NewRunner builds a shadow runner.
func NewRunner(cfg config.ShadowConfig, sink metrics.Sink) *Runner {
	return &Runner{
		cfg:     cfg,
		metrics: sink,
		sample:  rand.Float64,
	}
}

// MaybeFork checks the gates in order (enabled, sample rate, budget,
// circuit breaker, inflight cap) and, if all pass, launches the task in
// its own goroutine. The task outlives the primary response; panics are
// caught at the task boundary and never propagate.
func (r *Runner) MaybeFork(primaryLatencyMS int64, task ShadowTask) bool {
	reason := r.gate()
	if reason != "" {
		if reason != dropDisabled {
			r.metrics.Inc(context.Background(), metrics.ShadowDroppedTotal,
				map[string]string{"reason": reason}, 1)
		}
		return false
	}

	if n := r.inflight.Add(1); int(n) > r.cfg.MaxInflight {
		r.inflight.Add(-1)
		r.metrics.Inc(context.Background(), metrics.ShadowDroppedTotal,
			map[string]string{"reason": dropInflight}, 1)
		return false
	}

	r.wg.Add(1)
	go r.run(primaryLatencyMS, task)
	return true
}

func (r *Runner) gate() string {
	if !r.cfg.Enabled {
		return dropDisabled
	}
	if r.sample() >= r.cfg.SampleRate {
		return dropSampled
	}
	if r.spentUSD() >= r.cfg.BudgetUSD {
		return dropBudget
	}
	if r.circuitOpen() {
		return dropCircuit
	}
	return ""
}

func (r *Runner) run(primaryLatencyMS int64, task ShadowTask) {
	defer r.wg.Done()
	defer r.inflight.Add(-1)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Shadow task panicked", "panic", rec)
		}
	}()

	cost, latencyMS := task(context.Background())

	r.spentMicroUSD.Add(int64(math.Round(cost * 1e6)))
	r.metrics.Set(context.Background(), metrics.ShadowBudgetRemaining, nil, r.remainingUSD())

	r.mu.Lock()
	r.window = append(r.window, latencyPair{shadowMS: latencyMS, primaryMS: primaryLatencyMS})
	if len(r.window) > circuitWindowSize {
		r.window = r.window[len(r.window)-circuitWindowSize:]
	}
	r.mu.Unlock()
}

// circuitOpen reports whether shadow latency over the rolling window
// exceeds circuit_multiplier times primary latency.
func (r *Runner) circuitOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.window) < circuitWindowSize/2 {
		return false
	}
	var shadowSum, primarySum int64
	for _, p := range r.window {
		shadowSum += p.shadowMS
		primarySum += p.primaryMS
	}
	if primarySum == 0 {
		return false
	}
	return float64(shadowSum) > r.cfg.CircuitMultiplier*float64(primarySum)
}

func (r *Runner) spentUSD() float64 {
	return float64(r.spentMicroUSD.Load()) / 1e6
}

func (r *Runner) remainingUSD() float64 {
	remaining := r.cfg.BudgetUSD - r.spentUSD()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Wait blocks until all launched shadow tasks finish. Used at shutdown
// and in tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}
