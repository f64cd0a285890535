// Package orchestrator drives the twelve-stage request graph: safety,
// routing, retrieval, compression, generation, grounding, observation,
// and experimentation composed into one dataflow with uniform failure,
// cancellation, and tracing semantics.
package orchestrator

import (
	"context"
	"time"

	"github.com/musicofhel/enterprise-pipeline/pkg/experiment"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
	"github.com/musicofhel/enterprise-pipeline/pkg/retrieval"
	"github.com/musicofhel/enterprise-pipeline/pkg/safety"
)

// PrimaryFlag is the feature flag whose variant tags every primary trace.
const PrimaryFlag = "pipeline_variant"

// ShadowVariant tags the trace written by a shadow execution.
const ShadowVariant = "shadow"

// Router classifies query text. Satisfied by routing.Router.
type Router interface {
	Route(ctx context.Context, text string) (models.RouteDecision, error)
}

// Expander produces query paraphrases. Satisfied by expansion.Expander.
type Expander interface {
	Expand(ctx context.Context, text string, n int) ([]string, error)
}

// Retriever fans out embed+search over the query plan. Satisfied by
// retrieval.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, queries []string, tenantID string) *retrieval.FanOutResult
}

// Compressor shapes chunks to the token budget. Satisfied by
// compress.Compressor.
type Compressor interface {
	Compress(ctx context.Context, query string, chunks []models.Chunk) (*models.CompressedContext, error)
}

// GroundingJudge scores answer faithfulness. Satisfied by
// grounding.Judge.
type GroundingJudge interface {
	Verdict(ctx context.Context, contextChunks []models.Chunk, answer string) (models.GroundingVerdict, error)
}

// OutputValidator checks the answer's per-route shape. Satisfied by
// grounding.OutputValidator.
type OutputValidator interface {
	Validate(answer string, route models.RouteKind) bool
}

// InjectionDetector matches attack patterns. Satisfied by
// safety.InjectionDetector.
type InjectionDetector interface {
	Detect(text string) safety.InjectionResult
}

// PIIDetector finds PII spans. Satisfied by safety.PIIDetector.
type PIIDetector interface {
	Detect(text string) []safety.PIIFinding
}

// FlagResolver assigns experiment arms. Satisfied by
// experiment.FlagResolver.
type FlagResolver interface {
	Resolve(flagName, userID, tenantID string) string
}

// ShadowForker gates and launches shadow tasks. Satisfied by
// experiment.Runner.
type ShadowForker interface {
	MaybeFork(primaryLatencyMS int64, task experiment.ShadowTask) bool
}

// RequestContext is the per-request state every stage borrows. Only the
// orchestrator mutates it; it dies when the response returns.
type RequestContext struct {
	TraceID            string
	StartedAt          time.Time
	Deadline           time.Time
	Variant            string
	ConfigSnapshotHash string
}
