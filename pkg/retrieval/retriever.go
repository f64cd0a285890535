package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// QueryOutcome is the per-query result of the fan-out.
type QueryOutcome struct {
	Query  string
	Chunks []models.Chunk
	Err    error
}

// FanOutResult carries every per-query outcome. Failures are partial:
// the pipeline continues as long as one query succeeded.
type FanOutResult struct {
	Outcomes []QueryOutcome
}

// Lists returns the successful per-query chunk lists in plan order.
func (r *FanOutResult) Lists() [][]models.Chunk {
	var lists [][]models.Chunk
	for _, o := range r.Outcomes {
		if o.Err == nil {
			lists = append(lists, o.Chunks)
		}
	}
	return lists
}

// RawCounts returns per-query result counts keyed by query text.
func (r *FanOutResult) RawCounts() map[string]int {
	counts := make(map[string]int, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Err == nil {
			counts[o.Query] = len(o.Chunks)
		}
	}
	return counts
}

// AllFailed reports whether no query produced a result.
func (r *FanOutResult) AllFailed() bool {
	for _, o := range r.Outcomes {
		if o.Err == nil {
			return false
		}
	}
	return true
}

// Retriever fans out embed+search across the query plan with bounded
// parallelism.
type Retriever struct {
	embedder    Embedder
	store       Store
	topK        int
	maxParallel int
}

// NewRetriever builds a retriever.
func NewRetriever(embedder Embedder, store Store, topK, maxParallel int) *Retriever {
	return &Retriever{embedder: embedder, store: store, topK: topK, maxParallel: maxParallel}
}

// Retrieve runs one embed+search per query concurrently. Individual
// failures are captured per outcome, never aborting sibling queries;
// only context cancellation stops the group early.
func (r *Retriever) Retrieve(ctx context.Context, queries []string, tenantID string) *FanOutResult {
	result := &FanOutResult{Outcomes: make([]QueryOutcome, len(queries))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)

	for i, query := range queries {
		result.Outcomes[i].Query = query
		g.Go(func() error {
			chunks, err := r.searchOne(gctx, query, tenantID)
			if err != nil {
				slog.Warn("Retrieval sub-query failed",
					"tenant_id", tenantID, "error", err)
				result.Outcomes[i].Err = err
				// Per-query failure is partial; keep siblings running.
				return nil
			}
			result.Outcomes[i].Chunks = chunks
			return nil
		})
	}
	_ = g.Wait()

	return result
}

func (r *Retriever) searchOne(ctx context.Context, query, tenantID string) ([]models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCancelled, err)
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	chunks, err := r.store.Search(ctx, embedding, tenantID, r.topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return chunks, nil
}
