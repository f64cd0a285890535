package config

import (
	"fmt"
	"math"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// Validate checks cross-field invariants the type system cannot express.
// It is called once by Initialize; stages may assume a valid snapshot.
func (c *Config) Validate() error {
	if c.PipelineVersion == "" {
		return fmt.Errorf("pipeline_version is required")
	}

	if c.Routing.Threshold < 0 || c.Routing.Threshold > 1 {
		return fmt.Errorf("routing.threshold must be in [0,1], got %v", c.Routing.Threshold)
	}
	defaultRoute := models.RouteKind(c.Routing.DefaultRoute)
	if !defaultRoute.IsValid() || !defaultRoute.Implemented() {
		return fmt.Errorf("routing.default_route %q is not an implemented route", c.Routing.DefaultRoute)
	}
	for name, utterances := range c.Routing.Utterances {
		if !models.RouteKind(name).IsValid() {
			return fmt.Errorf("routing.utterances: unknown route %q", name)
		}
		if len(utterances) == 0 {
			return fmt.Errorf("routing.utterances: route %q has no utterances", name)
		}
	}

	if c.Expansion.Variants < 0 {
		return fmt.Errorf("expansion.variants must be >= 0, got %d", c.Expansion.Variants)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MaxParallel <= 0 {
		return fmt.Errorf("retrieval.max_parallel must be > 0, got %d", c.Retrieval.MaxParallel)
	}
	switch c.Retrieval.Backend {
	case VectorBackendPgvector, VectorBackendQdrant:
	default:
		return fmt.Errorf("retrieval.backend %q is not one of %s, %s",
			c.Retrieval.Backend, VectorBackendPgvector, VectorBackendQdrant)
	}

	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be in (0,1], got %v", c.Dedup.Threshold)
	}

	if c.Rerank.TopN <= 0 {
		return fmt.Errorf("rerank.top_n must be > 0, got %d", c.Rerank.TopN)
	}

	if c.Compression.ContextBudget() <= 0 {
		return fmt.Errorf("compression.max_tokens (%d) must exceed prompt_overhead_tokens (%d)",
			c.Compression.MaxTokens, c.Compression.PromptOverheadTokens)
	}
	if c.Compression.SentencesPerChunk <= 0 {
		return fmt.Errorf("compression.sentences_per_chunk must be > 0, got %d", c.Compression.SentencesPerChunk)
	}

	if !c.Grounding.Aggregation.IsValid() {
		return fmt.Errorf("grounding.aggregation %q is not one of MAX, MEAN, MIN", c.Grounding.Aggregation)
	}
	if c.Grounding.WarnThreshold > c.Grounding.PassThreshold {
		return fmt.Errorf("grounding.warn_threshold (%v) must not exceed pass_threshold (%v)",
			c.Grounding.WarnThreshold, c.Grounding.PassThreshold)
	}
	if c.Grounding.FallbackText == "" {
		return fmt.Errorf("grounding.fallback_text is required")
	}

	for _, tier := range []models.ModelTier{models.TierFast, models.TierStandard, models.TierComplex} {
		if c.Generation.Tiers[tier] == "" {
			return fmt.Errorf("generation.tiers.%s is required", tier)
		}
	}
	if c.Generation.MaxOutputTokens <= 0 {
		return fmt.Errorf("generation.max_output_tokens must be > 0, got %d", c.Generation.MaxOutputTokens)
	}

	if c.Shadow.Enabled {
		if c.Shadow.SampleRate < 0 || c.Shadow.SampleRate > 1 {
			return fmt.Errorf("shadow.sample_rate must be in [0,1], got %v", c.Shadow.SampleRate)
		}
		if c.Shadow.MaxInflight <= 0 {
			return fmt.Errorf("shadow.max_inflight must be > 0 when shadow is enabled")
		}
		if c.Shadow.ModelID == "" {
			return fmt.Errorf("shadow.model_id is required when shadow is enabled")
		}
	}

	for name, flag := range c.Flags {
		if err := validateFlag(name, flag); err != nil {
			return err
		}
	}

	return nil
}

func validateFlag(name string, flag FlagConfig) error {
	if len(flag.Variants) == 0 {
		return fmt.Errorf("flags.%s: at least one variant is required", name)
	}
	total := 0.0
	seen := make(map[string]bool, len(flag.Variants))
	for _, v := range flag.Variants {
		if v.Name == "" {
			return fmt.Errorf("flags.%s: variant with empty name", name)
		}
		if seen[v.Name] {
			return fmt.Errorf("flags.%s: duplicate variant %q", name, v.Name)
		}
		seen[v.Name] = true
		if v.Weight < 0 {
			return fmt.Errorf("flags.%s: variant %q has negative weight", name, v.Name)
		}
		total += v.Weight
	}
	if math.Abs(total-1.0) > 1e-6 {
		return fmt.Errorf("flags.%s: variant weights sum to %v, want 1.0", name, total)
	}
	if flag.Default != "" && !seen[flag.Default] {
		return fmt.Errorf("flags.%s: default %q is not a declared variant", name, flag.Default)
	}
	for user, variant := range flag.UserOverrides {
		if !seen[variant] {
			return fmt.Errorf("flags.%s: user override %q names unknown variant %q", name, user, variant)
		}
	}
	for tenant, variant := range flag.TenantOverrides {
		if !seen[variant] {
			return fmt.Errorf("flags.%s: tenant override %q names unknown variant %q", name, tenant, variant)
		}
	}
	return nil
}
