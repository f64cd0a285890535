// Package routing classifies queries into route kinds using max-sim
// against pre-embedded utterance sets. All computation after startup is
// local: one embedding call per query, then cosine math.
package routing

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/musicofhel/enterprise-pipeline/pkg/config"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// Embedder is the subset of the embedding service the router consumes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// embeddedUtterance is one reference phrasing with its vector.
type embeddedUtterance struct {
	text   string
	vector []float32
}

// Router scores a query against every route's utterance set and picks
// the route with the highest max-sim. Max-sim, not mean: utterance sets
// span multiple phrasings, and the best match carries the intent signal.
type Router struct {
	threshold    float64
	defaultRoute models.RouteKind
	embedder     Embedder
	utterances   map[models.RouteKind][]embeddedUtterance
}

// New builds the router, embedding every configured utterance once.
func New(ctx context.Context, cfg config.RoutingConfig, embedder Embedder) (*Router, error) {
	r := &Router{
		threshold:    cfg.Threshold,
		defaultRoute: models.RouteKind(cfg.DefaultRoute),
		embedder:     embedder,
		utterances:   make(map[models.RouteKind][]embeddedUtterance),
	}

	for routeName, texts := range cfg.Utterances {
		kind := models.RouteKind(routeName)
		for _, text := range texts {
			vec, err := embedder.Embed(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("embedding utterance for route %s: %w", routeName, err)
			}
			r.utterances[kind] = append(r.utterances[kind], embeddedUtterance{text: text, vector: vec})
		}
	}
	return r, nil
}

// Route classifies the query text. Deterministic for a fixed config and
// embedding model version.
func (r *Router) Route(ctx context.Context, text string) (models.RouteDecision, error) {
	queryVec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return models.RouteDecision{}, fmt.Errorf("embedding query: %w", err)
	}

	scores := make(map[models.RouteKind]float64, len(r.utterances))
	matched := make(map[models.RouteKind]string, len(r.utterances))
	for kind, utterances := range r.utterances {
		best := math.Inf(-1)
		bestText := ""
		for _, u := range utterances {
			sim := cosine(queryVec, u.vector)
			if sim > best {
				best = sim
				bestText = u.text
			}
		}
		scores[kind] = best
		matched[kind] = bestText
	}

	kinds := make([]models.RouteKind, 0, len(scores))
	for kind := range scores {
		kinds = append(kinds, kind)
	}
	// Alphabetical iteration makes the ">" comparison below a
	// deterministic tie-break on the smaller name.
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var bestKind models.RouteKind
	best := math.Inf(-1)
	for _, kind := range kinds {
		if scores[kind] > best {
			best = scores[kind]
			bestKind = kind
		}
	}

	decision := models.RouteDecision{
		Kind:             bestKind,
		Confidence:       best,
		Scores:           scores,
		MatchedUtterance: matched[bestKind],
	}
	if best < r.threshold {
		decision.Kind = r.defaultRoute
		decision.Defaulted = true
	}
	return decision, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
