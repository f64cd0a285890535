package retrieval

import (
	"context"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// Reranker reorders retrieved chunks by relevance to the query. It must
// only reorder and truncate; it never introduces new chunks. A failed
// rerank degrades to passthrough at the orchestrator.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []models.Chunk, topN int) ([]models.Chunk, error)
}

// Passthrough is the no-provider reranker: first topN chunks unchanged.
type Passthrough struct{}

// Rerank returns the first topN chunks in their incoming order.
func (Passthrough) Rerank(_ context.Context, _ string, chunks []models.Chunk, topN int) ([]models.Chunk, error) {
	if len(chunks) <= topN {
		return chunks, nil
	}
	return chunks[:topN], nil
}
