package grounding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicofhel/enterprise-pipeline/pkg/config"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

func groundingConfig() config.GroundingConfig {
	return config.GroundingConfig{
		Aggregation:    models.AggregationMax,
		PassThreshold:  0.7,
		WarnThreshold:  0.4,
		FallbackText:   "fallback",
		WarnDisclaimer: "disclaimer: ",
	}
}

func ctxChunk(text string) models.Chunk {
	return models.Chunk{DocID: "d", ChunkID: "c", TenantID: "t", UserID: "u", Text: text}
}

func TestLexicalScorerSupportedAnswer(t *testing.T) {
	scorer := LexicalScorer{}
	chunks := []models.Chunk{
		ctxChunk("customer records are retained seven years from contract end"),
		ctxChunk("unrelated text about invoices"),
	}

	scores, err := scorer.Score(context.Background(), chunks, "records retained seven years")
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Greater(t, scores[0], 0.9)
	assert.Less(t, scores[1], 0.3)
}

func TestLexicalScorerEmptyContext(t *testing.T) {
	scores, err := LexicalScorer{}.Score(context.Background(), nil, "any answer")
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestJudgeLevels(t *testing.T) {
	judge := NewJudge(LexicalScorer{}, groundingConfig())

	tests := []struct {
		name   string
		chunks []models.Chunk
		answer string
		level  models.GroundingLevel
	}{
		{
			name:   "pass on supported answer",
			chunks: []models.Chunk{ctxChunk("retention period is seven years from contract end")},
			answer: "retention period seven years",
			level:  models.GroundingPass,
		},
		{
			name:   "fail on unsupported answer",
			chunks: []models.Chunk{ctxChunk("the cafeteria opens at nine")},
			answer: "customers must rotate passwords quarterly",
			level:  models.GroundingFail,
		},
		{
			name:   "fail on empty context",
			chunks: nil,
			answer: "a confident but unsupported answer",
			level:  models.GroundingFail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := judge.Verdict(context.Background(), tt.chunks, tt.answer)
			require.NoError(t, err)
			assert.Equal(t, tt.level, verdict.Level)

			// Threshold invariants.
			if verdict.Level == models.GroundingPass {
				assert.GreaterOrEqual(t, verdict.Score, 0.7)
			}
			if verdict.Level == models.GroundingFail {
				assert.Less(t, verdict.Score, 0.4)
			}
		})
	}
}

func TestAggregationModes(t *testing.T) {
	scores := []float64{0.2, 0.9, 0.5}

	assert.InDelta(t, 0.9, aggregate(scores, models.AggregationMax), 1e-9)
	assert.InDelta(t, 0.2, aggregate(scores, models.AggregationMin), 1e-9)
	assert.InDelta(t, (0.2+0.9+0.5)/3, aggregate(scores, models.AggregationMean), 1e-9)
	assert.Zero(t, aggregate(nil, models.AggregationMax))
}

func TestJudgeRecordsPerChunkScores(t *testing.T) {
	judge := NewJudge(LexicalScorer{}, groundingConfig())
	chunks := []models.Chunk{
		ctxChunk("retention is seven years"),
		ctxChunk("something else entirely"),
	}

	verdict, err := judge.Verdict(context.Background(), chunks, "retention seven years")
	require.NoError(t, err)
	assert.Len(t, verdict.PerChunkScores, 2)
	assert.Equal(t, models.AggregationMax, verdict.Aggregation)
}
