// Package config loads and validates the immutable pipeline configuration
// snapshot. The snapshot is built once at startup from built-in defaults
// plus a YAML file plus an optional local overlay; reload is process
// restart only.
package config

import (
	"time"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// Config is the umbrella configuration object. Every stage reads its
// thresholds from here; nothing mutates it after Initialize returns.
type Config struct {
	configDir string
	hash      string

	PipelineVersion string `yaml:"pipeline_version"`

	Routing     RoutingConfig     `yaml:"routing"`
	Expansion   ExpansionConfig   `yaml:"expansion"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Rerank      RerankConfig      `yaml:"rerank"`
	Compression CompressionConfig `yaml:"compression"`
	Grounding   GroundingConfig   `yaml:"grounding"`
	Generation  GenerationConfig  `yaml:"generation"`
	Safety      SafetyConfig      `yaml:"safety"`
	Shadow      ShadowConfig      `yaml:"shadow"`

	// Flags maps flag name to its experiment arms and overrides.
	Flags map[string]FlagConfig `yaml:"flags"`

	// StageTimeoutsMS holds optional per-stage soft timeouts keyed by
	// stage name, in milliseconds. Zero means no stage-level preemption.
	StageTimeoutsMS map[string]int `yaml:"stage_timeouts_ms"`
}

// RoutingConfig controls query classification.
type RoutingConfig struct {
	Threshold    float64 `yaml:"threshold"`
	DefaultRoute string  `yaml:"default_route"`

	// Utterances holds the reference phrasings per route kind. They are
	// embedded once at startup by the router.
	Utterances map[string][]string `yaml:"utterances"`
}

// ExpansionConfig controls multi-query expansion.
type ExpansionConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Variants      int     `yaml:"variants"`
	SkipThreshold float64 `yaml:"skip_threshold"`
}

// Vector store backends selectable via retrieval.backend.
const (
	VectorBackendPgvector = "pgvector"
	VectorBackendQdrant   = "qdrant"
)

// RetrievalConfig controls vector search fan-out and backend selection.
type RetrievalConfig struct {
	TopK        int    `yaml:"top_k"`
	MaxParallel int    `yaml:"max_parallel"`
	Backend     string `yaml:"backend"`
}

// DedupConfig controls near-duplicate chunk removal.
type DedupConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// RerankConfig controls the rerank stage.
type RerankConfig struct {
	TopN int `yaml:"top_n"`
}

// CompressionConfig controls sentence selection and the token budget.
type CompressionConfig struct {
	SentencesPerChunk    int `yaml:"sentences_per_chunk"`
	MaxTokens            int `yaml:"max_tokens"`
	PromptOverheadTokens int `yaml:"prompt_overhead_tokens"`
}

// ContextBudget returns the token budget after the prompt overhead
// reservation.
func (c CompressionConfig) ContextBudget() int {
	return c.MaxTokens - c.PromptOverheadTokens
}

// GroundingConfig controls hallucination scoring thresholds and fallback.
type GroundingConfig struct {
	Aggregation    models.Aggregation `yaml:"aggregation"`
	PassThreshold  float64            `yaml:"pass_threshold"`
	WarnThreshold  float64            `yaml:"warn_threshold"`
	FallbackText   string             `yaml:"fallback_text"`
	WarnDisclaimer string             `yaml:"warn_disclaimer"`
}

// GenerationConfig controls the LLM call.
type GenerationConfig struct {
	// Tiers maps model tier (FAST, STANDARD, COMPLEX) to a concrete model id.
	Tiers           map[models.ModelTier]string `yaml:"tiers"`
	Temperature     float64                     `yaml:"temperature"`
	MaxOutputTokens int                         `yaml:"max_output_tokens"`
	TimeoutMS       int                         `yaml:"timeout_ms"`
	SystemPrompt    string                      `yaml:"system_prompt"`
}

// Timeout returns the generation timeout as a duration.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMS) * time.Millisecond
}

// SafetyConfig controls the input safety stage.
type SafetyConfig struct {
	L2Enabled  bool `yaml:"l2_enabled"`
	BlockOnPII bool `yaml:"block_on_pii"`
}

// ShadowConfig controls candidate-variant shadow execution.
type ShadowConfig struct {
	Enabled           bool    `yaml:"enabled"`
	SampleRate        float64 `yaml:"sample_rate"`
	BudgetUSD         float64 `yaml:"budget_usd"`
	CircuitMultiplier float64 `yaml:"circuit_multiplier"`
	MaxInflight       int     `yaml:"max_inflight"`

	// ModelID is the candidate model the shadow generation uses.
	ModelID string `yaml:"model_id"`
}

// FlagVariant is one weighted experiment arm.
type FlagVariant struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// FlagConfig defines one feature flag's arms and overrides.
type FlagConfig struct {
	Variants        []FlagVariant     `yaml:"variants"`
	UserOverrides   map[string]string `yaml:"user_overrides"`
	TenantOverrides map[string]string `yaml:"tenant_overrides"`
	Default         string            `yaml:"default"`
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string { return c.configDir }

// Hash returns the snapshot hash recorded on every trace. It is stable
// across identical deployments.
func (c *Config) Hash() string { return c.hash }

// StageTimeout returns the soft timeout for a stage, zero if unset.
func (c *Config) StageTimeout(stage string) time.Duration {
	return time.Duration(c.StageTimeoutsMS[stage]) * time.Millisecond
}
