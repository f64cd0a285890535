// Package grounding scores how well a generated answer is supported by
// its retrieved context and maps the score to a pass/warn/fail decision.
package grounding

import (
	"context"

	"github.com/musicofhel/enterprise-pipeline/pkg/compress"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// Scorer computes per-chunk grounding scores for an answer. Pair order is
// contractual: context first, answer second.
type Scorer interface {
	Score(ctx context.Context, contextChunks []models.Chunk, answer string) ([]float64, error)
}

// LexicalScorer is the local CPU scorer: per-chunk grounding is the
// fraction of answer content terms that appear in the chunk. It stands in
// where no NLI scoring model is deployed and keeps the stage free of I/O.
type LexicalScorer struct{}

// Score returns one score per chunk, each in [0,1]. The cancellation
// signal is checked between chunks.
func (LexicalScorer) Score(ctx context.Context, contextChunks []models.Chunk, answer string) ([]float64, error) {
	answerTerms := contentTerms(answer)
	scores := make([]float64, len(contextChunks))
	if len(answerTerms) == 0 {
		return scores, nil
	}

	for i, chunk := range contextChunks {
		if err := ctx.Err(); err != nil {
			return nil, models.ErrCancelled
		}

		chunkTerms := make(map[string]bool)
		for _, t := range compress.Tokenize(chunk.Text) {
			chunkTerms[t] = true
		}

		supported := 0
		for _, t := range answerTerms {
			if chunkTerms[t] {
				supported++
			}
		}
		scores[i] = float64(supported) / float64(len(answerTerms))
	}
	return scores, nil
}

// stopwords excluded from grounding comparison; they match everywhere.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "to": true, "of": true, "in": true,
	"on": true, "for": true, "and": true, "or": true, "it": true, "its": true,
	"this": true, "that": true, "with": true, "as": true, "at": true, "by": true,
	"from": true, "not": true, "no": true, "can": true, "will": true, "has": true,
	"have": true, "had": true, "do": true, "does": true, "their": true, "there": true,
}

func contentTerms(text string) []string {
	var out []string
	for _, t := range compress.Tokenize(text) {
		if len(t) < 2 || stopwords[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}
