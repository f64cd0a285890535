package orchestrator

import "github.com/musicofhel/enterprise-pipeline/pkg/models"

// Block reasons surfaced to the client.
const (
	blockReasonInjection = "injection"
	blockReasonMLGuard   = "ml_guard"
	blockReasonPII       = "pii"
)

func strPtr(s string) *string { return &s }

// blockedResponse is the terminal response for a safety block. The
// answer is always null.
func blockedResponse(traceID, reason string, latencyMS int64) models.Response {
	return models.Response{
		TraceID: traceID,
		Sources: []models.Source{},
		Metadata: models.ResponseMetadata{
			RouteUsed: "blocked",
			LatencyMS: latencyMS,
		},
		Blocked:     true,
		BlockReason: strPtr(reason),
	}
}

// fallbackResponse is the terminal response when the pipeline cannot
// produce a grounded answer. Sources already retrieved are preserved so
// the user can self-verify.
func fallbackResponse(traceID string, route models.RouteKind, answer *string, sources []models.Source, md models.ResponseMetadata) models.Response {
	if sources == nil {
		sources = []models.Source{}
	}
	md.RouteUsed = string(route)
	if md.RouteUsed == "" {
		md.RouteUsed = "none"
	}
	return models.Response{
		Answer:   answer,
		TraceID:  traceID,
		Sources:  sources,
		Metadata: md,
		Fallback: true,
	}
}
