package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/musicofhel/enterprise-pipeline/pkg/audit"
	"github.com/musicofhel/enterprise-pipeline/pkg/config"
	"github.com/musicofhel/enterprise-pipeline/pkg/experiment"
	"github.com/musicofhel/enterprise-pipeline/pkg/llm"
	"github.com/musicofhel/enterprise-pipeline/pkg/metrics"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
	"github.com/musicofhel/enterprise-pipeline/pkg/retrieval"
	"github.com/musicofhel/enterprise-pipeline/pkg/safety"
	"github.com/musicofhel/enterprise-pipeline/pkg/trace"
)

// Deps bundles every collaborator the orchestrator composes. The
// composition root constructs concrete implementations; stages never
// reference the orchestrator or each other.
type Deps struct {
	Config *config.Config
	Clock  trace.Clock
	IDGen  trace.IDGen

	Injection InjectionDetector
	PII       PIIDetector
	MLGuard   safety.MLGuard // optional; nil disables the L2 layer

	Router    Router
	Expander  Expander
	Retriever Retriever
	Deduper   *retrieval.Deduper
	Reranker  retrieval.Reranker

	Compressor Compressor
	TierPolicy *llm.TierPolicy
	LLM        llm.Client

	Judge     GroundingJudge
	Validator OutputValidator

	Flags           FlagResolver
	VariantRecorder *experiment.VariantRecorder
	Shadow          ShadowForker // optional; nil disables shadow mode

	TraceSink trace.Sink
	Audit     *audit.Recorder
	Metrics   metrics.Sink
}

// Orchestrator runs the stage graph for one request at a time per call.
// It is safe for concurrent use; all per-request state lives in the run.
type Orchestrator struct {
	deps Deps
}

// New creates the orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// Handle runs the pipeline for one validated query. It never returns an
// error and never panics out: every failure maps to a Response with
// blocked or fallback set and a populated trace id, and the trace is
// flushed exactly once regardless of exit path.
func (o *Orchestrator) Handle(ctx context.Context, query models.Query) (resp models.Response) {
	r := o.newRun(ctx, query)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Request task panicked", "trace_id", r.reqCtx.TraceID, "panic", rec)
			resp = r.terminalFallback(models.RouteKind("unknown"), "panic")
		}
	}()

	return r.execute()
}

// run holds all per-request state. Stages borrow the trace and request
// context; nothing survives past the response.
type run struct {
	o     *Orchestrator
	ctx   context.Context
	query models.Query

	reqCtx RequestContext
	trace  *trace.Trace

	route      models.RouteDecision
	compressed *models.CompressedContext
	generation models.Generation
	sources    []models.Source
	flushed    bool
}

func (o *Orchestrator) newRun(ctx context.Context, query models.Query) *run {
	now := o.deps.Clock.Now()
	traceID := o.deps.IDGen.NewID()
	variant := o.deps.Flags.Resolve(PrimaryFlag, query.UserID, query.TenantID)

	reqCtx := RequestContext{
		TraceID:            traceID,
		StartedAt:          now,
		Variant:            variant,
		ConfigSnapshotHash: o.deps.Config.Hash(),
	}
	if deadline, ok := ctx.Deadline(); ok {
		reqCtx.Deadline = deadline
	}

	t := trace.New(traceID, query.UserID, query.SessionID, query.TenantID,
		o.deps.Config.PipelineVersion, o.deps.Config.Hash(), variant, now)

	return &run{o: o, ctx: ctx, query: query, reqCtx: reqCtx, trace: t}
}

// execute walks the stage sequence. Short-circuits return early; every
// exit path runs finalize exactly once.
func (r *run) execute() models.Response {
	d := &r.o.deps

	// Stage 1: trace open. Variant assignment is recorded before the
	// pipeline begins.
	open := trace.StartSpan(trace.StageTraceOpen, d.Clock.Now())
	open.SetAttr("variant", r.reqCtx.Variant)
	if err := r.query.Validate(); err != nil {
		r.appendSpan(open.Fail("input_rejected").End(d.Clock.Now()))
		return r.terminalFallback("invalid", "input_rejected")
	}
	r.appendSpan(open.End(d.Clock.Now()))
	d.VariantRecorder.Record(r.ctx, r.reqCtx.TraceID, r.query.UserID, r.query.TenantID,
		PrimaryFlag, r.reqCtx.Variant)

	// Stage 2: input safety.
	if resp, blocked := r.stageSafety(); blocked {
		return resp
	}
	if resp, cancelled := r.checkCancelled(trace.StageRouting); cancelled {
		return resp
	}

	// Stage 3: routing.
	if resp, failed := r.stageRouting(); failed {
		return resp
	}

	// Stage 4: dispatch.
	if resp, done := r.stageDispatch(); done {
		return resp
	}

	var chunks []models.Chunk
	if r.route.Kind == models.RouteRAG {
		// Stage 5: query expansion.
		plan := r.stageExpansion()
		if resp, cancelled := r.checkCancelled(trace.StageRetrieval); cancelled {
			return resp
		}

		// Stage 6: retrieval.
		result, allFailed := r.stageRetrieval(plan)
		if resp, cancelled := r.checkCancelled(trace.StageDedupFuse); cancelled {
			return resp
		}

		if allFailed {
			return r.retrievalFallback()
		}

		// Stage 7: dedup + fuse.
		chunks = r.stageDedupFuse(result)
		if len(chunks) == 0 {
			return r.retrievalFallback()
		}

		// Stage 8: rerank.
		chunks = r.stageRerank(chunks)
	}
	if resp, cancelled := r.checkCancelled(trace.StageCompression); cancelled {
		return resp
	}

	// Stage 9: compression. The DIRECT route arrives with no chunks and
	// an empty context.
	if resp, cancelled := r.stageCompression(chunks); cancelled {
		return resp
	}
	for _, c := range r.compressed.OrderedChunks {
		r.sources = append(r.sources, models.SourceFromChunk(c))
	}
	if resp, cancelled := r.checkCancelled(trace.StageGeneration); cancelled {
		return resp
	}

	// Stage 10: generation. Failure is terminal.
	if resp, failed := r.stageGeneration(); failed {
		return resp
	}
	if resp, cancelled := r.checkCancelled(trace.StageGrounding); cancelled {
		return resp
	}

	// Stages 11-12: grounding and output validation.
	answer, verdict, scored, fallback, wasCancelled, warn := r.stageGrounding()
	if wasCancelled {
		return r.cancelled()
	}
	schemaValid := r.stageOutputValidation(answer)

	// Stage 13: finalize.
	return r.finalizeSuccess(answer, verdict, scored, fallback, warn, schemaValid)
}

// --- stage implementations ---

func (r *run) stageSafety() (models.Response, bool) {
	d := &r.o.deps
	span := trace.StartSpan(trace.StageSafety, d.Clock.Now())

	if result := d.Injection.Detect(r.query.Text); result.Flagged {
		span.SetAttr("blocked", true).SetAttr("layer", "L1").SetAttr("pattern_id", result.MatchedPatternID)
		r.appendSpan(span.End(d.Clock.Now()))
		return r.block("L1", blockReasonInjection), true
	}

	findings := d.PII.Detect(r.query.Text)
	if len(findings) > 0 {
		types := make([]string, 0, len(findings))
		seen := map[string]bool{}
		for _, f := range findings {
			if !seen[f.Type] {
				seen[f.Type] = true
				types = append(types, f.Type)
			}
			d.Metrics.Inc(r.ctx, metrics.PIIDetectedTotal, map[string]string{"type": f.Type}, 1)
		}
		span.SetAttr("pii_types", strings.Join(types, ","))

		if d.Config.Safety.BlockOnPII {
			span.SetAttr("blocked", true).SetAttr("layer", "pii")
			r.appendSpan(span.End(d.Clock.Now()))
			return r.block("pii", blockReasonPII), true
		}
	}

	if d.Config.Safety.L2Enabled && d.MLGuard != nil {
		guard, err := d.MLGuard.Check(r.ctx, r.query.Text)
		switch {
		case err != nil:
			// The optional layer degrades silently; L1 already passed.
			span.SetAttr("l2_error", err.Error())
		case guard.Flagged:
			span.SetAttr("blocked", true).SetAttr("layer", "L2").SetAttr("reason", guard.Reason)
			r.appendSpan(span.End(d.Clock.Now()))
			return r.block("L2", blockReasonMLGuard), true
		}
	}

	r.appendSpan(span.End(d.Clock.Now()))
	return models.Response{}, false
}

func (r *run) stageRouting() (models.Response, bool) {
	d := &r.o.deps
	span := trace.StartSpan(trace.StageRouting, d.Clock.Now())

	if forced := r.forcedRoute(); forced != "" {
		r.route = models.RouteDecision{Kind: forced, Confidence: 1.0}
		span.SetAttr("route", string(forced)).SetAttr("forced", true)
		r.appendSpan(span.End(d.Clock.Now()))
		return models.Response{}, false
	}

	decision, err := d.Router.Route(r.ctx, r.query.Text)
	if err != nil {
		// Routing needs one embedding call; treat failure like low
		// confidence and take the default route.
		slog.Warn("Router failed, using default route",
			"trace_id", r.reqCtx.TraceID, "error", err)
		decision = models.RouteDecision{
			Kind:      models.RouteKind(d.Config.Routing.DefaultRoute),
			Defaulted: true,
		}
		span.SetAttr("router_error", err.Error())
	}

	r.route = decision
	span.SetAttr("route", string(decision.Kind)).
		SetAttr("confidence", decision.Confidence).
		SetAttr("defaulted", decision.Defaulted)
	for kind, score := range decision.Scores {
		span.SetAttr("score_"+strings.ToLower(string(kind)), score)
	}
	r.trace.SetScore("route_confidence", decision.Confidence)
	r.appendSpan(span.End(d.Clock.Now()))
	return models.Response{}, false
}

func (r *run) forcedRoute() models.RouteKind {
	if r.query.Options == nil || r.query.Options.ForceRoute == "" {
		return ""
	}
	kind := models.RouteKind(r.query.Options.ForceRoute)
	if !kind.IsValid() {
		return ""
	}
	return kind
}

func (r *run) stageDispatch() (models.Response, bool) {
	d := &r.o.deps
	span := trace.StartSpan(trace.StageDispatch, d.Clock.Now())

	switch r.route.Kind {
	case models.RouteEscalate:
		span.SetAttr("fallback", true)
		r.appendSpan(span.End(d.Clock.Now()))
		return r.escalate(), true

	case models.RouteSQLStructured, models.RouteAPILookup:
		span.SetAttr("not_implemented", true).SetAttr("route", string(r.route.Kind))
		r.appendSpan(span.End(d.Clock.Now()))
		return r.notImplemented(), true

	default:
		span.SetAttr("route", string(r.route.Kind))
		r.appendSpan(span.End(d.Clock.Now()))
		return models.Response{}, false
	}
}

func (r *run) stageExpansion() *models.QueryPlan {
	d := &r.o.deps
	span := trace.StartSpan(trace.StageExpansion, d.Clock.Now())
	plan := &models.QueryPlan{PrimaryText: r.query.Text, SkipExpansion: true}

	switch {
	case !d.Config.Expansion.Enabled:
		r.appendSpan(span.Skip("disabled").End(d.Clock.Now()))
	case r.route.Confidence >= d.Config.Expansion.SkipThreshold:
		r.appendSpan(span.Skip("high_confidence").End(d.Clock.Now()))
	default:
		ctx, cancel := r.stageCtx(trace.StageExpansion)
		defer cancel()
		variants, err := d.Expander.Expand(ctx, r.query.Text, d.Config.Expansion.Variants)
		if err != nil {
			// Degrade: original only, span stays ok with the reason.
			span.SetAttr("skipped", true).SetAttr("reason", "expander_error")
			r.appendSpan(span.End(d.Clock.Now()))
			return plan
		}
		plan.SkipExpansion = false
		plan.Variants = variants[1:]
		span.SetAttr("variants", len(plan.Variants))
		r.appendSpan(span.End(d.Clock.Now()))
	}
	return plan
}

func (r *run) stageRetrieval(plan *models.QueryPlan) (*retrieval.FanOutResult, bool) {
	d := &r.o.deps
	span := trace.StartSpan(trace.StageRetrieval, d.Clock.Now())

	ctx, cancel := r.stageCtx(trace.StageRetrieval)
	defer cancel()
	result := d.Retriever.Retrieve(ctx, plan.All(), r.query.TenantID)

	failures := 0
	for i, outcome := range result.Outcomes {
		key := fmt.Sprintf("query_%d", i)
		if outcome.Err != nil {
			failures++
			span.SetAttr(key+"_error", outcome.Err.Error())
			continue
		}
		span.SetAttr(key+"_count", len(outcome.Chunks))
		for _, c := range outcome.Chunks {
			d.Metrics.Observe(r.ctx, metrics.RetrievalCosine, nil, c.Score)
		}
	}
	allFailed := result.AllFailed()
	span.SetAttr("queries", len(result.Outcomes)).SetAttr("failures", failures)
	if allFailed {
		span.Fail("all_queries_failed")
	}
	r.appendSpan(span.End(d.Clock.Now()))
	return result, allFailed
}

func (r *run) stageDedupFuse(result *retrieval.FanOutResult) []models.Chunk {
	d := &r.o.deps
	span := trace.StartSpan(trace.StageDedupFuse, d.Clock.Now())

	fused := retrieval.FuseRanks(result.Lists())
	deduped := d.Deduper.Dedup(fused)

	empty := len(deduped) == 0
	span.SetAttr("fused", len(fused)).SetAttr("kept", len(deduped)).SetAttr("empty", empty)
	r.appendSpan(span.End(d.Clock.Now()))

	if empty {
		d.Metrics.Set(r.ctx, metrics.RetrievalEmptyRate, nil, 1)
	} else {
		d.Metrics.Set(r.ctx, metrics.RetrievalEmptyRate, nil, 0)
	}
	return deduped
}

func (r *run) stageRerank(chunks []models.Chunk) []models.Chunk {
	d := &r.o.deps
	span := trace.StartSpan(trace.StageRerank, d.Clock.Now())

	reranked, err := d.Reranker.Rerank(r.ctx, r.query.Text, chunks, d.Config.Rerank.TopN)
	if err != nil {
		// Degrade to passthrough.
		span.SetAttr("skipped", true).SetAttr("reason", "rerank_error")
		reranked, _ = retrieval.Passthrough{}.Rerank(r.ctx, r.query.Text, chunks, d.Config.Rerank.TopN)
	} else {
		span.SetAttr("top_n", len(reranked))
	}
	r.appendSpan(span.End(d.Clock.Now()))
	return reranked
}

func (r *run) stageCompression(chunks []models.Chunk) (models.Response, bool) {
	d := &r.o.deps
	span := trace.StartSpan(trace.StageCompression, d.Clock.Now())

	// Every chunk entering compression must satisfy the metadata
	// invariant; a violation here is an ingest bug.
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			panic(fmt.Sprintf("chunk %s violates metadata invariant: %v", c.VectorID, err))
		}
	}

	compressed, err := d.Compressor.Compress(r.ctx, r.query.Text, chunks)
	if err != nil {
		r.appendSpan(span.Fail("cancelled").End(d.Clock.Now()))
		return r.cancelled(), true
	}
	r.compressed = compressed

	span.SetAttr("chunks", len(compressed.OrderedChunks)).
		SetAttr("total_tokens", compressed.TotalTokens).
		SetAttr("dropped_sentences", compressed.DroppedSentenceCount)
	r.appendSpan(span.End(d.Clock.Now()))
	return models.Response{}, false
}

func (r *run) stageGeneration() (models.Response, bool) {
	d := &r.o.deps
	span := trace.StartSpan(trace.StageGeneration, d.Clock.Now())

	tier, modelID := d.TierPolicy.Resolve(r.route.Kind, r.query.Text, r.compressed.TotalTokens)
	span.SetAttr("tier", string(tier)).SetAttr("model", modelID)

	genCtx := r.ctx
	if timeout := d.Config.Generation.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(genCtx, timeout)
		defer cancel()
	}

	gen, err := d.LLM.Generate(genCtx, llm.Request{
		System:   d.Config.Generation.SystemPrompt,
		Context:  r.contextText(),
		Question: r.query.Text,
		ModelID:  modelID,
		Limits:   r.limits(),
	})
	if err != nil {
		d.Metrics.Inc(r.ctx, metrics.LLMErrorsTotal, map[string]string{"stage": trace.StageGeneration}, 1)
		if r.ctx.Err() != nil {
			r.appendSpan(span.Fail("cancelled").End(d.Clock.Now()))
			return r.cancelled(), true
		}
		r.appendSpan(span.Fail("generation_error").End(d.Clock.Now()))
		md := r.baseMetadata()
		resp := fallbackResponse(r.reqCtx.TraceID, r.route.Kind, nil, r.sources, md)
		r.finalize("fallback")
		return resp, true
	}

	r.generation = gen
	span.SetAttr("tokens_in", gen.TokensIn).
		SetAttr("tokens_out", gen.TokensOut).
		SetAttr("cost_usd", gen.CostUSD).
		SetAttr("finish_reason", gen.FinishReason)
	r.appendSpan(span.End(d.Clock.Now()))

	d.Metrics.Observe(r.ctx, metrics.TokensIn, nil, float64(gen.TokensIn))
	d.Metrics.Observe(r.ctx, metrics.TokensOut, nil, float64(gen.TokensOut))
	d.Metrics.Observe(r.ctx, metrics.LLMCostUSD, nil, gen.CostUSD)
	return models.Response{}, false
}

// stageGrounding scores the answer and applies the three-way decision.
// Returns the possibly replaced answer text; scored is false when the
// stage was skipped and no faithfulness score exists.
func (r *run) stageGrounding() (answer string, verdict models.GroundingVerdict, scored, fallback, wasCancelled, warn bool) {
	d := &r.o.deps
	span := trace.StartSpan(trace.StageGrounding, d.Clock.Now())

	// DIRECT requests carry no retrieved context by construction; there
	// is nothing to ground the answer against.
	if r.route.Kind == models.RouteDirect && r.compressed.Empty() {
		r.appendSpan(span.Skip("no_context").End(d.Clock.Now()))
		return r.generation.AnswerText, verdict, false, false, false, false
	}

	var err error
	verdict, err = d.Judge.Verdict(r.ctx, r.compressed.OrderedChunks, r.generation.AnswerText)
	if err != nil {
		// Grounding is CPU-local; an error here is cancellation.
		r.appendSpan(span.Fail("cancelled").End(d.Clock.Now()))
		return "", verdict, false, false, true, false
	}

	d.Metrics.Inc(r.ctx, metrics.VerdictTotal,
		map[string]string{"level": string(verdict.Level)}, 1)
	r.trace.SetScore("faithfulness", verdict.Score)
	span.SetAttr("score", verdict.Score).
		SetAttr("level", string(verdict.Level)).
		SetAttr("aggregation", string(verdict.Aggregation))

	switch verdict.Level {
	case models.GroundingFail:
		answer = d.Config.Grounding.FallbackText
		fallback = true
	case models.GroundingWarn:
		answer = d.Config.Grounding.WarnDisclaimer + r.generation.AnswerText
		warn = true
	default:
		answer = r.generation.AnswerText
	}
	r.appendSpan(span.End(d.Clock.Now()))
	return answer, verdict, true, fallback, false, warn
}

func (r *run) stageOutputValidation(answer string) bool {
	d := &r.o.deps
	span := trace.StartSpan(trace.StageOutputValidate, d.Clock.Now())

	valid := d.Validator.Validate(answer, r.route.Kind)
	span.SetAttr("schema_valid", valid)
	r.appendSpan(span.End(d.Clock.Now()))
	return valid
}

// --- terminal paths ---

func (r *run) block(layer, reason string) models.Response {
	d := &r.o.deps
	if err := d.Audit.SafetyBlock(r.ctx, r.reqCtx.TraceID, r.query.UserID, r.query.TenantID, layer, reason); err != nil {
		slog.Warn("Failed to append safety block audit event",
			"trace_id", r.reqCtx.TraceID, "error", err)
	}
	d.Metrics.Inc(r.ctx, metrics.SafetyBlockedTotal,
		map[string]string{"layer": layer, "reason": reason}, 1)

	resp := blockedResponse(r.reqCtx.TraceID, reason, r.elapsedMS())
	r.finalize("blocked")
	resp.Metadata.LatencyMS = r.elapsedMS()
	return resp
}

func (r *run) escalate() models.Response {
	md := r.baseMetadata()
	resp := fallbackResponse(r.reqCtx.TraceID, models.RouteEscalate, nil, nil, md)
	r.finalize("escalated")
	resp.Metadata.LatencyMS = r.elapsedMS()
	return resp
}

func (r *run) notImplemented() models.Response {
	md := r.baseMetadata()
	resp := fallbackResponse(r.reqCtx.TraceID, r.route.Kind, nil, nil, md)
	r.finalize("not_implemented")
	resp.Metadata.LatencyMS = r.elapsedMS()
	return resp
}

func (r *run) retrievalFallback() models.Response {
	md := r.baseMetadata()
	resp := fallbackResponse(r.reqCtx.TraceID, r.route.Kind, nil, nil, md)
	r.finalize("fallback")
	resp.Metadata.LatencyMS = r.elapsedMS()
	return resp
}

func (r *run) cancelled() models.Response {
	md := r.baseMetadata()
	md.Cancelled = true
	resp := fallbackResponse(r.reqCtx.TraceID, r.route.Kind, nil, r.sources, md)
	r.finalize("cancelled")
	resp.Metadata.LatencyMS = r.elapsedMS()
	return resp
}

// checkCancelled writes the terminal span for nextStage if the request
// context is already done.
func (r *run) checkCancelled(nextStage string) (models.Response, bool) {
	if r.ctx.Err() == nil {
		return models.Response{}, false
	}
	d := &r.o.deps
	span := trace.StartSpan(nextStage, d.Clock.Now())
	r.appendSpan(span.Fail("cancelled").End(d.Clock.Now()))
	return r.cancelled(), true
}

func (r *run) terminalFallback(route models.RouteKind, status string) models.Response {
	md := r.baseMetadata()
	resp := fallbackResponse(r.reqCtx.TraceID, route, nil, nil, md)
	r.finalize(status)
	resp.Metadata.LatencyMS = r.elapsedMS()
	return resp
}

// finalizeSuccess closes out the happy path: totals, trace hand-off,
// metrics, and the shadow fork.
func (r *run) finalizeSuccess(answer string, verdict models.GroundingVerdict, scored, fallback, warn, schemaValid bool) models.Response {
	md := r.baseMetadata()
	if scored {
		md.FaithfulnessScore = &verdict.Score
	}
	md.Model = &r.generation.ModelID
	tokens := r.generation.TokensIn + r.generation.TokensOut
	md.TokensUsed = &tokens
	md.SchemaValid = schemaValid
	md.Warn = warn
	md.RouteUsed = string(r.route.Kind)

	// On FAIL the generated answer was already replaced with the
	// configured fallback text; sources stay attached either way.
	resp := models.Response{
		Answer:   strPtr(answer),
		TraceID:  r.reqCtx.TraceID,
		Sources:  r.sources,
		Metadata: md,
		Fallback: fallback,
	}
	if resp.Sources == nil {
		resp.Sources = []models.Source{}
	}

	status := "ok"
	if fallback {
		status = "fallback"
	}
	r.finalize(status)
	resp.Metadata.LatencyMS = r.elapsedMS()

	r.maybeShadow()
	return resp
}

// finalize freezes the trace, hands it to the sink, and records the
// request metrics. Guarded so every exit path runs it exactly once.
func (r *run) finalize(status string) {
	if r.flushed {
		return
	}
	r.flushed = true
	d := &r.o.deps

	span := trace.StartSpan(trace.StageFinalize, d.Clock.Now())
	span.SetAttr("status", status)
	r.appendSpan(span.End(d.Clock.Now()))

	r.trace.Freeze(trace.Totals{
		LatencyMS: r.elapsedMS(),
		CostUSD:   r.generation.CostUSD,
	})
	if err := d.TraceSink.Save(r.ctx, r.trace); err != nil {
		slog.Error("Trace sink failed", "trace_id", r.reqCtx.TraceID, "error", err)
	}

	route := string(r.route.Kind)
	if route == "" {
		route = "none"
	}
	d.Metrics.Inc(r.ctx, metrics.RequestsTotal,
		map[string]string{"route": route, "status": status}, 1)
	for _, s := range r.trace.Spans {
		d.Metrics.Observe(r.ctx, metrics.RequestDuration,
			map[string]string{"stage": s.Name}, float64(s.DurationMS())/1000.0)
	}
}

// maybeShadow forks the candidate-variant re-run of generation plus
// grounding. The task reuses the primary's compressed context but shares
// no mutable state with the primary response.
func (r *run) maybeShadow() {
	d := &r.o.deps
	if d.Shadow == nil || r.compressed == nil {
		return
	}

	// Copy everything the task needs; the run dies with the response.
	cfg := d.Config
	contextChunks := append([]models.Chunk(nil), r.compressed.OrderedChunks...)
	contextText := r.contextText()
	question := r.query.Text
	userID, sessionID, tenantID := r.query.UserID, r.query.SessionID, r.query.TenantID
	limits := r.limits()
	primaryLatency := r.elapsedMS()

	d.Shadow.MaybeFork(primaryLatency, func(ctx context.Context) (float64, int64) {
		started := d.Clock.Now()
		shadowTrace := trace.New(d.IDGen.NewID(), userID, sessionID, tenantID,
			cfg.PipelineVersion, cfg.Hash(), ShadowVariant, started)

		genSpan := trace.StartSpan(trace.StageGeneration, d.Clock.Now())
		genCtx := ctx
		if timeout := cfg.Generation.Timeout(); timeout > 0 {
			var cancel context.CancelFunc
			genCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		gen, err := d.LLM.Generate(genCtx, llm.Request{
			System:   cfg.Generation.SystemPrompt,
			Context:  contextText,
			Question: question,
			ModelID:  cfg.Shadow.ModelID,
			Limits:   limits,
		})
		if err != nil {
			shadowTrace.Append(genSpan.Fail("generation_error").End(d.Clock.Now()))
			shadowTrace.Freeze(trace.Totals{LatencyMS: d.Clock.Now().Sub(started).Milliseconds()})
			_ = d.TraceSink.Save(ctx, shadowTrace)
			d.Metrics.Inc(ctx, metrics.LLMErrorsTotal, map[string]string{"stage": "shadow_generation"}, 1)
			return 0, d.Clock.Now().Sub(started).Milliseconds()
		}
		genSpan.SetAttr("model", cfg.Shadow.ModelID).
			SetAttr("tokens_in", gen.TokensIn).
			SetAttr("tokens_out", gen.TokensOut)
		shadowTrace.Append(genSpan.End(d.Clock.Now()))

		groundSpan := trace.StartSpan(trace.StageGrounding, d.Clock.Now())
		verdict, vErr := d.Judge.Verdict(ctx, contextChunks, gen.AnswerText)
		if vErr == nil {
			groundSpan.SetAttr("score", verdict.Score).SetAttr("level", string(verdict.Level))
			shadowTrace.SetScore("faithfulness", verdict.Score)
		} else {
			groundSpan.Fail("grounding_error")
		}
		shadowTrace.Append(groundSpan.End(d.Clock.Now()))

		latency := d.Clock.Now().Sub(started).Milliseconds()
		shadowTrace.Freeze(trace.Totals{LatencyMS: latency, CostUSD: gen.CostUSD})
		_ = d.TraceSink.Save(ctx, shadowTrace)
		return gen.CostUSD, latency
	})
}

// --- helpers ---

// stageCtx derives the stage context, applying the soft timeout from
// config when one is set. Timeout behavior follows the stage's failure
// disposition: a timed-out expansion degrades, a timed-out retrieval
// fails its in-flight sub-queries.
func (r *run) stageCtx(stage string) (context.Context, context.CancelFunc) {
	if timeout := r.o.deps.Config.StageTimeout(stage); timeout > 0 {
		return context.WithTimeout(r.ctx, timeout)
	}
	return r.ctx, func() {}
}

func (r *run) appendSpan(span trace.Span) {
	if err := r.trace.Append(span); err != nil {
		slog.Warn("Failed to append span", "trace_id", r.reqCtx.TraceID,
			"span", span.Name, "error", err)
	}
}

func (r *run) elapsedMS() int64 {
	return r.o.deps.Clock.Now().Sub(r.reqCtx.StartedAt).Milliseconds()
}

func (r *run) baseMetadata() models.ResponseMetadata {
	return models.ResponseMetadata{
		RouteUsed:   string(r.route.Kind),
		LatencyMS:   r.elapsedMS(),
		SchemaValid: true,
	}
}

func (r *run) contextText() string {
	if r.compressed.Empty() {
		return ""
	}
	parts := make([]string, len(r.compressed.OrderedChunks))
	for i, c := range r.compressed.OrderedChunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}

func (r *run) limits() llm.Limits {
	d := &r.o.deps
	limits := llm.Limits{
		MaxOutputTokens: d.Config.Generation.MaxOutputTokens,
		Temperature:     d.Config.Generation.Temperature,
	}
	if opts := r.query.Options; opts != nil {
		if opts.MaxTokens != nil && *opts.MaxTokens > 0 && *opts.MaxTokens < limits.MaxOutputTokens {
			limits.MaxOutputTokens = *opts.MaxTokens
		}
		if opts.Temperature != nil {
			limits.Temperature = *opts.Temperature
		}
	}
	return limits
}
