package compress

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

func testChunk(id, text string) models.Chunk {
	return models.Chunk{
		VectorID: id, DocID: "d1", ChunkID: id, TenantID: "t1", UserID: "u1",
		Text: text, Score: 0.8,
	}
}

func TestCompressorKeepsRelevantSentences(t *testing.T) {
	c := New(2, 10000)

	chunks := []models.Chunk{testChunk("c1",
		"The retention policy keeps records seven years. "+
			"Unrelated filler about cafeteria menus. "+
			"Policy exceptions require legal approval.")}

	out, err := c.Compress(context.Background(), "what is the retention policy", chunks)
	require.NoError(t, err)
	require.Len(t, out.OrderedChunks, 1)

	text := out.OrderedChunks[0].Text
	assert.Contains(t, text, "retention policy")
	assert.NotContains(t, text, "cafeteria")
	assert.Equal(t, 1, out.DroppedSentenceCount)
}

func TestCompressorPreservesSentenceOrder(t *testing.T) {
	c := New(3, 10000)

	chunks := []models.Chunk{testChunk("c1",
		"Alpha policy statement one. Beta policy statement two. Gamma policy statement three.")}

	out, err := c.Compress(context.Background(), "policy statement", chunks)
	require.NoError(t, err)
	require.Len(t, out.OrderedChunks, 1)

	text := out.OrderedChunks[0].Text
	alpha := strings.Index(text, "Alpha")
	beta := strings.Index(text, "Beta")
	gamma := strings.Index(text, "Gamma")
	assert.True(t, alpha < beta && beta < gamma, "sentence order must be preserved: %q", text)
}

func TestCompressorHonorsBudget(t *testing.T) {
	budget := 30
	c := New(10, budget)

	chunks := []models.Chunk{
		testChunk("c1", "The policy covers retention of records. Another sentence about policy retention rules. A third sentence with more policy detail."),
		testChunk("c2", "Completely different topic sentence here. More words that take tokens."),
	}

	out, err := c.Compress(context.Background(), "policy retention", chunks)
	require.NoError(t, err)
	assert.LessOrEqual(t, out.TotalTokens, budget)
	assert.Greater(t, out.DroppedSentenceCount, 0)
}

func TestCompressorExactFitRoundTrip(t *testing.T) {
	// Context that already fits exactly must come back unchanged.
	text := "Policy retention is seven years."
	tokens := EstimateTokens(text)

	c := New(5, tokens)
	out, err := c.Compress(context.Background(), "policy retention", []models.Chunk{testChunk("c1", text)})
	require.NoError(t, err)

	require.Len(t, out.OrderedChunks, 1)
	assert.Equal(t, text, out.OrderedChunks[0].Text)
	assert.Equal(t, tokens, out.TotalTokens)
	assert.Equal(t, 0, out.DroppedSentenceCount)
}

func TestCompressorDropsEmptiedChunks(t *testing.T) {
	c := New(5, 12)

	chunks := []models.Chunk{
		testChunk("c1", "Retention policy is seven years for records."),
		testChunk("c2", "Nothing relevant whatsoever in this chunk text."),
	}

	out, err := c.Compress(context.Background(), "retention policy records", chunks)
	require.NoError(t, err)
	require.Len(t, out.OrderedChunks, 1, "chunk emptied by budgeting is dropped")
	assert.Equal(t, "c1", out.OrderedChunks[0].ChunkID)
}

func TestCompressorDeterministic(t *testing.T) {
	c := New(2, 40)
	chunks := []models.Chunk{
		testChunk("c1", "One about policy. Two about records. Three about nothing. Four about policy records."),
		testChunk("c2", "Five about records. Six filler. Seven policy filler."),
	}

	first, err := c.Compress(context.Background(), "policy records", chunks)
	require.NoError(t, err)
	second, err := c.Compress(context.Background(), "policy records", chunks)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompressorEmptyInput(t *testing.T) {
	c := New(3, 100)
	out, err := c.Compress(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.True(t, out.Empty())
	assert.Zero(t, out.TotalTokens)
}

func TestCompressorCancelled(t *testing.T) {
	c := New(3, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Compress(ctx, "query", []models.Chunk{testChunk("c1", "text.")})
	assert.ErrorIs(t, err, models.ErrCancelled)
}
