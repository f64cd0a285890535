package llm

import (
	"unicode/utf8"

	"github.com/musicofhel/enterprise-pipeline/pkg/config"
	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// Tier selection boundaries. Short direct queries over small contexts go
// to the fast tier; large contexts or long analytical queries go complex.
const (
	fastContextTokenLimit    = 800
	fastQueryRuneLimit       = 120
	complexContextTokenFloor = 2200
	complexQueryRuneFloor    = 600
)

// TierPolicy maps (route, context size, query length) to a model tier
// and resolves the tier to a concrete model id from config. Pure; no I/O.
type TierPolicy struct {
	tiers map[models.ModelTier]string
}

// NewTierPolicy builds the policy from the generation config.
func NewTierPolicy(cfg config.GenerationConfig) *TierPolicy {
	return &TierPolicy{tiers: cfg.Tiers}
}

// Resolve picks the tier and returns (tier, model id).
func (p *TierPolicy) Resolve(route models.RouteKind, queryText string, contextTokens int) (models.ModelTier, string) {
	tier := p.tier(route, queryText, contextTokens)
	return tier, p.tiers[tier]
}

func (p *TierPolicy) tier(route models.RouteKind, queryText string, contextTokens int) models.ModelTier {
	queryLen := utf8.RuneCountInString(queryText)

	if contextTokens >= complexContextTokenFloor || queryLen >= complexQueryRuneFloor {
		return models.TierComplex
	}
	if route == models.RouteDirect && contextTokens == 0 && queryLen <= fastQueryRuneLimit {
		return models.TierFast
	}
	if contextTokens <= fastContextTokenLimit && queryLen <= fastQueryRuneLimit {
		return models.TierFast
	}
	return models.TierStandard
}
