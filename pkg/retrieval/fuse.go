package retrieval

import (
	"sort"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// rrfK is the Reciprocal Rank Fusion constant.
const rrfK = 60

// FuseRanks merges per-query ranked chunk lists with Reciprocal Rank
// Fusion: fused = Σ 1/(60 + rank_i) over the lists the chunk appears in,
// ranks 1-based. Output is sorted by fused score descending; ties break
// on the highest original retrieval score, then on the smaller chunk id.
// Order of the input lists does not affect the result.
func FuseRanks(lists [][]models.Chunk) []models.Chunk {
	type fused struct {
		chunk    models.Chunk
		score    float64
		bestOrig float64
	}

	byID := make(map[string]*fused)
	for _, list := range lists {
		for rank, chunk := range list {
			contribution := 1.0 / float64(rrfK+rank+1)
			entry, ok := byID[chunk.ChunkID]
			if !ok {
				entry = &fused{chunk: chunk, bestOrig: chunk.Score}
				byID[chunk.ChunkID] = entry
			}
			entry.score += contribution
			if chunk.Score > entry.bestOrig {
				entry.bestOrig = chunk.Score
				entry.chunk = chunk
			}
		}
	}

	entries := make([]*fused, 0, len(byID))
	for _, entry := range byID {
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		if entries[i].bestOrig != entries[j].bestOrig {
			return entries[i].bestOrig > entries[j].bestOrig
		}
		return entries[i].chunk.ChunkID < entries[j].chunk.ChunkID
	})

	out := make([]models.Chunk, len(entries))
	for i, entry := range entries {
		out[i] = entry.chunk
	}
	return out
}
