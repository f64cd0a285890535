package compress

import (
	"context"
	"sort"
	"strings"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// scoredSentence is one sentence with its chunk position and BM25 score.
type scoredSentence struct {
	chunkIndex int
	order      int
	text       string
	score      float64
	tokens     int
	dropped    bool
}

// Compressor selects the most query-relevant sentences per chunk, then
// enforces the global token budget. Deterministic for a given input and
// config; sentence order within a chunk is always preserved.
type Compressor struct {
	sentencesPerChunk int
	contextBudget     int
}

// New creates a compressor. contextBudget is the token budget after the
// prompt overhead reservation.
func New(sentencesPerChunk, contextBudget int) *Compressor {
	return &Compressor{sentencesPerChunk: sentencesPerChunk, contextBudget: contextBudget}
}

// Compress runs sentence selection and token budgeting over the chunks.
// ctx is checked between chunks so CPU-bound work stays cancellable.
func (c *Compressor) Compress(ctx context.Context, query string, chunks []models.Chunk) (*models.CompressedContext, error) {
	var all []scoredSentence
	dropped := 0

	for chunkIndex, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, models.ErrCancelled
		}

		sentences := SplitSentences(chunk.Text)
		scorer := newBM25Scorer(query, sentences)

		scored := make([]scoredSentence, len(sentences))
		for i, text := range sentences {
			scored[i] = scoredSentence{
				chunkIndex: chunkIndex,
				order:      i,
				text:       text,
				score:      scorer.score(i),
				tokens:     EstimateTokens(text),
			}
		}

		// Keep the top sentences_per_chunk by score; the rest are
		// dropped before budgeting.
		if len(scored) > c.sentencesPerChunk {
			byScore := make([]scoredSentence, len(scored))
			copy(byScore, scored)
			sort.SliceStable(byScore, func(i, j int) bool {
				return byScore[i].score > byScore[j].score
			})
			cut := map[int]bool{}
			for _, s := range byScore[c.sentencesPerChunk:] {
				cut[s.order] = true
			}
			kept := scored[:0]
			for _, s := range scored {
				if cut[s.order] {
					dropped++
					continue
				}
				kept = append(kept, s)
			}
			scored = kept
		}
		all = append(all, scored...)
	}

	budgetDropped := c.applyBudget(all)
	dropped += budgetDropped

	return c.assemble(chunks, all, dropped), nil
}

// applyBudget greedily drops the lowest-scored remaining sentence across
// all chunks until the total fits. Returns the number dropped.
func (c *Compressor) applyBudget(sentences []scoredSentence) int {
	total := 0
	for _, s := range sentences {
		total += s.tokens
	}

	// Ascending score order; ties drop the later sentence first so
	// earlier context survives.
	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		si, sj := sentences[order[i]], sentences[order[j]]
		if si.score != sj.score {
			return si.score < sj.score
		}
		if si.chunkIndex != sj.chunkIndex {
			return si.chunkIndex > sj.chunkIndex
		}
		return si.order > sj.order
	})

	dropped := 0
	for _, idx := range order {
		if total <= c.contextBudget {
			break
		}
		sentences[idx].dropped = true
		total -= sentences[idx].tokens
		dropped++
	}
	return dropped
}

// assemble rebuilds chunks from surviving sentences, preserving sentence
// order within each chunk and dropping chunks left empty.
func (c *Compressor) assemble(chunks []models.Chunk, sentences []scoredSentence, dropped int) *models.CompressedContext {
	perChunk := make(map[int][]scoredSentence)
	for _, s := range sentences {
		if s.dropped {
			continue
		}
		perChunk[s.chunkIndex] = append(perChunk[s.chunkIndex], s)
	}

	out := &models.CompressedContext{DroppedSentenceCount: dropped}
	for chunkIndex, chunk := range chunks {
		kept := perChunk[chunkIndex]
		if len(kept) == 0 {
			continue
		}
		sort.Slice(kept, func(i, j int) bool { return kept[i].order < kept[j].order })

		parts := make([]string, len(kept))
		for i, s := range kept {
			parts[i] = s.text
			out.TotalTokens += s.tokens
		}
		compressed := chunk
		compressed.Text = strings.Join(parts, " ")
		out.OrderedChunks = append(out.OrderedChunks, compressed)
	}
	return out
}
