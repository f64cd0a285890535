package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

func TestFuseRanksTopEverywhereWins(t *testing.T) {
	winner := chunk("winner", 0.5, nil)
	lists := [][]models.Chunk{
		{winner, chunk("x", 0.9, nil), chunk("y", 0.8, nil)},
		{winner, chunk("y", 0.8, nil), chunk("z", 0.7, nil)},
		{winner, chunk("z", 0.7, nil), chunk("x", 0.9, nil)},
	}

	out := FuseRanks(lists)
	require.NotEmpty(t, out)
	assert.Equal(t, "winner", out[0].ChunkID,
		"rank 1 in every list must yield the strictly highest fused score")
}

func TestFuseRanksOrderIndependent(t *testing.T) {
	a := chunk("a", 0.9, nil)
	b := chunk("b", 0.8, nil)
	c := chunk("c", 0.7, nil)

	forward := FuseRanks([][]models.Chunk{{a, b}, {b, c}})
	reversed := FuseRanks([][]models.Chunk{{b, c}, {a, b}})

	ids := func(chunks []models.Chunk) []string {
		out := make([]string, len(chunks))
		for i, ch := range chunks {
			out[i] = ch.ChunkID
		}
		return out
	}
	assert.Equal(t, ids(forward), ids(reversed))
}

func TestFuseRanksTieBreakByOriginalScore(t *testing.T) {
	// a and b each appear once at rank 1 in different lists: identical
	// fused score, so the higher retrieval score wins.
	a := chunk("a", 0.95, nil)
	b := chunk("b", 0.60, nil)

	out := FuseRanks([][]models.Chunk{{a}, {b}})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ChunkID)
}

func TestFuseRanksScoreFormula(t *testing.T) {
	// Single list: fused score of rank r is 1/(60+r); ordering must be
	// preserved.
	lists := [][]models.Chunk{{
		chunk("first", 0.9, nil),
		chunk("second", 0.8, nil),
		chunk("third", 0.7, nil),
	}}

	out := FuseRanks(lists)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{out[0].ChunkID, out[1].ChunkID, out[2].ChunkID})
}

func TestFuseRanksEmpty(t *testing.T) {
	assert.Empty(t, FuseRanks(nil))
	assert.Empty(t, FuseRanks([][]models.Chunk{{}, {}}))
}
