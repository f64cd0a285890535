package config

import "github.com/musicofhel/enterprise-pipeline/pkg/models"

// builtinDefaults returns the built-in configuration that user YAML is
// merged over. Every threshold has a working default so a minimal config
// file can run the pipeline end to end.
func builtinDefaults() *Config {
	return &Config{
		PipelineVersion: "1.0.0",
		Routing: RoutingConfig{
			Threshold:    0.55,
			DefaultRoute: string(models.RouteRAG),
			Utterances: map[string][]string{
				string(models.RouteRAG): {
					"what is our policy on",
					"where can I find documentation about",
					"explain how the system handles",
					"what does the contract say about",
				},
				string(models.RouteDirect): {
					"summarize the following text",
					"rewrite this paragraph",
					"translate this sentence",
				},
				string(models.RouteEscalate): {
					"I want to speak with a human",
					"connect me to support",
					"let me talk to an agent",
					"I need to file a complaint",
				},
			},
		},
		Expansion: ExpansionConfig{
			Enabled:       true,
			Variants:      2,
			SkipThreshold: 0.92,
		},
		Retrieval: RetrievalConfig{
			TopK:        8,
			MaxParallel: 4,
			Backend:     VectorBackendPgvector,
		},
		Dedup: DedupConfig{
			Threshold: 0.95,
		},
		Rerank: RerankConfig{
			TopN: 6,
		},
		Compression: CompressionConfig{
			SentencesPerChunk:    5,
			MaxTokens:            3000,
			PromptOverheadTokens: 400,
		},
		Grounding: GroundingConfig{
			Aggregation:    models.AggregationMax,
			PassThreshold:  0.70,
			WarnThreshold:  0.40,
			FallbackText:   "I could not produce a well-supported answer to this question. Please review the retrieved documents below.",
			WarnDisclaimer: "Note: this answer may not be fully supported by the retrieved documents.\n\n",
		},
		Generation: GenerationConfig{
			Tiers: map[models.ModelTier]string{
				models.TierFast:     "gpt-4o-mini",
				models.TierStandard: "gpt-4o",
				models.TierComplex:  "o3-mini",
			},
			Temperature:     0.1,
			MaxOutputTokens: 1024,
			TimeoutMS:       30000,
			SystemPrompt: "You are an enterprise assistant. Answer strictly from the provided context. " +
				"If the context does not contain the answer, say so.",
		},
		Safety: SafetyConfig{
			L2Enabled:  false,
			BlockOnPII: false,
		},
		Shadow: ShadowConfig{
			Enabled:           false,
			SampleRate:        0.1,
			BudgetUSD:         5.0,
			CircuitMultiplier: 3.0,
			MaxInflight:       16,
		},
		Flags: map[string]FlagConfig{},
	}
}
