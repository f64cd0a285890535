package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/musicofhel/enterprise-pipeline/pkg/config"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

func tierConfig() config.GenerationConfig {
	return config.GenerationConfig{
		Tiers: map[models.ModelTier]string{
			models.TierFast:     "fast-model",
			models.TierStandard: "standard-model",
			models.TierComplex:  "complex-model",
		},
	}
}

func TestTierPolicy(t *testing.T) {
	p := NewTierPolicy(tierConfig())

	tests := []struct {
		name          string
		route         models.RouteKind
		query         string
		contextTokens int
		wantTier      models.ModelTier
	}{
		{
			name:     "short direct query goes fast",
			route:    models.RouteDirect,
			query:    "summarize this",
			wantTier: models.TierFast,
		},
		{
			name:          "short rag query small context goes fast",
			route:         models.RouteRAG,
			query:         "what is the policy",
			contextTokens: 400,
			wantTier:      models.TierFast,
		},
		{
			name:          "medium context goes standard",
			route:         models.RouteRAG,
			query:         "what is the policy",
			contextTokens: 1500,
			wantTier:      models.TierStandard,
		},
		{
			name:          "large context goes complex",
			route:         models.RouteRAG,
			query:         "what is the policy",
			contextTokens: 2500,
			wantTier:      models.TierComplex,
		},
		{
			name:     "very long query goes complex",
			route:    models.RouteRAG,
			query:    strings.Repeat("analyze ", 100),
			wantTier: models.TierComplex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, modelID := p.Resolve(tt.route, tt.query, tt.contextTokens)
			assert.Equal(t, tt.wantTier, tier)
			assert.Equal(t, tierConfig().Tiers[tt.wantTier], modelID)
		})
	}
}
