// Package llm wraps the LLM provider behind the Client interface and
// maps queries to model tiers.
package llm

import (
	"context"
	"errors"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// ErrGenerationFailed wraps provider errors; generation failure is
// terminal for the request.
var ErrGenerationFailed = errors.New("generation failed")

// Limits carries per-call generation bounds.
type Limits struct {
	MaxOutputTokens int
	Temperature     float64
}

// Request is one generation call.
type Request struct {
	System   string
	Context  string
	Question string
	ModelID  string
	Limits   Limits
}

// Client generates an answer from context plus question. Implementations
// must honor ctx cancellation and deadline, and must report token and
// cost usage on success.
type Client interface {
	Generate(ctx context.Context, req Request) (models.Generation, error)
}
