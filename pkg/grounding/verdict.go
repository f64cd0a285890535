package grounding

import (
	"context"
	"fmt"

	"github.com/musicofhel/enterprise-pipeline/pkg/config"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// Judge runs the scorer, aggregates, and maps the score to a level.
type Judge struct {
	scorer Scorer
	cfg    config.GroundingConfig
}

// NewJudge builds a judge over a scorer.
func NewJudge(scorer Scorer, cfg config.GroundingConfig) *Judge {
	return &Judge{scorer: scorer, cfg: cfg}
}

// Verdict scores the answer against the context chunks. Zero chunks
// aggregate to zero, which maps to FAIL under any sane thresholds.
func (j *Judge) Verdict(ctx context.Context, contextChunks []models.Chunk, answer string) (models.GroundingVerdict, error) {
	perChunk, err := j.scorer.Score(ctx, contextChunks, answer)
	if err != nil {
		return models.GroundingVerdict{}, fmt.Errorf("grounding score: %w", err)
	}

	score := aggregate(perChunk, j.cfg.Aggregation)
	return models.GroundingVerdict{
		Score:          score,
		Level:          j.level(score),
		PerChunkScores: perChunk,
		Aggregation:    j.cfg.Aggregation,
	}, nil
}

func (j *Judge) level(score float64) models.GroundingLevel {
	switch {
	case score >= j.cfg.PassThreshold:
		return models.GroundingPass
	case score >= j.cfg.WarnThreshold:
		return models.GroundingWarn
	default:
		return models.GroundingFail
	}
}

func aggregate(scores []float64, mode models.Aggregation) float64 {
	if len(scores) == 0 {
		return 0
	}
	switch mode {
	case models.AggregationMean:
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		return sum / float64(len(scores))
	case models.AggregationMin:
		min := scores[0]
		for _, s := range scores[1:] {
			if s < min {
				min = s
			}
		}
		return min
	default: // MAX: best-chunk semantics for mixed-relevance retrieval.
		max := scores[0]
		for _, s := range scores[1:] {
			if s > max {
				max = s
			}
		}
		return max
	}
}
