package retrieval

import (
	"sort"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// Deduper removes near-duplicate chunks. Greedy by descending score: a
// chunk is accepted unless it is above-threshold similar to an already
// accepted chunk. O(n²) is fine; n is bounded by top_k × query variants.
type Deduper struct {
	threshold float64
}

// NewDeduper creates a deduper with the given similarity threshold.
func NewDeduper(threshold float64) *Deduper {
	return &Deduper{threshold: threshold}
}

// Dedup returns the accepted chunks in descending score order. On equal
// scores the lexicographically smaller chunk id sorts first, so it is
// the one kept when the pair is near-duplicate.
func (d *Deduper) Dedup(chunks []models.Chunk) []models.Chunk {
	if len(chunks) <= 1 {
		return chunks
	}

	sorted := make([]models.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ChunkID < sorted[j].ChunkID
	})

	accepted := make([]models.Chunk, 0, len(sorted))
	for _, candidate := range sorted {
		duplicate := false
		for _, kept := range accepted {
			if similarity(candidate, kept) > d.threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			accepted = append(accepted, candidate)
		}
	}
	return accepted
}

// similarity prefers embedding cosine when both chunks carry embeddings
// and falls back to the character trigram proxy otherwise.
func similarity(a, b models.Chunk) float64 {
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		return Cosine(a.Embedding, b.Embedding)
	}
	return trigramSimilarity(a.Text, b.Text)
}
