// Package expansion generates query paraphrases for multi-query
// retrieval. Failure never propagates: the expander degrades to the
// original query alone.
package expansion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/musicofhel/enterprise-pipeline/pkg/llm"
)

const expansionSystemPrompt = "You rewrite search queries. Given a query, produce the requested number " +
	"of alternative phrasings that preserve the meaning. Output one paraphrase per line, no numbering."

// Expander produces paraphrases of a query via the LLM.
type Expander struct {
	client  llm.Client
	modelID string
}

// New creates an expander that uses the given model.
func New(client llm.Client, modelID string) *Expander {
	return &Expander{client: client, modelID: modelID}
}

// Expand returns [original, paraphrases...] with at most n paraphrases.
// The result is nonempty, case-insensitively deduplicated, and capped at
// 1+n entries. On any provider failure it returns ([original], err) so
// the caller can record the degradation and continue.
func (e *Expander) Expand(ctx context.Context, text string, n int) ([]string, error) {
	result := []string{text}
	if n <= 0 {
		return result, nil
	}

	gen, err := e.client.Generate(ctx, llm.Request{
		System:   expansionSystemPrompt,
		Question: fmt.Sprintf("Produce %d paraphrases of: %s", n, text),
		ModelID:  e.modelID,
		Limits:   llm.Limits{MaxOutputTokens: 256, Temperature: 0.7},
	})
	if err != nil {
		slog.Debug("Query expansion failed, continuing with original", "error", err)
		return result, err
	}

	seen := map[string]bool{strings.ToLower(strings.TrimSpace(text)): true}
	for _, line := range strings.Split(gen.AnswerText, "\n") {
		paraphrase := strings.TrimSpace(line)
		paraphrase = strings.TrimLeft(paraphrase, "-*0123456789. ")
		if paraphrase == "" {
			continue
		}
		key := strings.ToLower(paraphrase)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, paraphrase)
		if len(result) == 1+n {
			break
		}
	}
	return result, nil
}
