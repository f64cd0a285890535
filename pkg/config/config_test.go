package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.yaml"), []byte(content), 0o644))
}

func TestInitializeDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "pipeline_version: \"2.0.0\"\n")

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", cfg.PipelineVersion)
	assert.Equal(t, 0.95, cfg.Dedup.Threshold)
	assert.Equal(t, VectorBackendPgvector, cfg.Retrieval.Backend)
	assert.Equal(t, models.AggregationMax, cfg.Grounding.Aggregation)
	assert.NotEmpty(t, cfg.Hash())
	assert.Len(t, cfg.Hash(), 12)
}

func TestInitializeOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "retrieval:\n  top_k: 20\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.local.yaml"),
		[]byte("retrieval:\n  max_parallel: 8\n"), 0o644))

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Retrieval.TopK)
	assert.Equal(t, 8, cfg.Retrieval.MaxParallel)
}

func TestInitializeHashStable(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "retrieval:\n  top_k: 20\n")

	first, err := Initialize(dir)
	require.NoError(t, err)
	second, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, first.Hash(), second.Hash())

	// A changed threshold changes the hash.
	writeConfig(t, dir, "retrieval:\n  top_k: 21\n")
	third, err := Initialize(dir)
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash(), third.Hash())
}

func TestInitializeMissingFile(t *testing.T) {
	_, err := Initialize(t.TempDir())
	assert.Error(t, err)
}

func TestInitializeExpandsEnv(t *testing.T) {
	t.Setenv("PIPELINE_DEFAULT_ROUTE", "DIRECT")
	t.Setenv("PIPELINE_TOP_K", "12")
	dir := t.TempDir()
	writeConfig(t, dir,
		"routing:\n  default_route: ${PIPELINE_DEFAULT_ROUTE}\nretrieval:\n  top_k: $PIPELINE_TOP_K\n")

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, "DIRECT", cfg.Routing.DefaultRoute)
	assert.Equal(t, 12, cfg.Retrieval.TopK)
}

func TestExpandEnvMissingVarEmpty(t *testing.T) {
	out := ExpandEnv([]byte("value: ${NO_SUCH_PIPELINE_VAR}"))
	assert.Equal(t, "value: ", string(out))
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad routing threshold", func(c *Config) { c.Routing.Threshold = 1.5 }},
		{"unimplemented default route", func(c *Config) { c.Routing.DefaultRoute = "SQL_STRUCTURED" }},
		{"unknown utterance route", func(c *Config) { c.Routing.Utterances["BOGUS"] = []string{"x"} }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"unknown vector backend", func(c *Config) { c.Retrieval.Backend = "weaviate" }},
		{"budget below overhead", func(c *Config) {
			c.Compression.MaxTokens = 100
			c.Compression.PromptOverheadTokens = 200
		}},
		{"warn above pass", func(c *Config) {
			c.Grounding.WarnThreshold = 0.9
			c.Grounding.PassThreshold = 0.5
		}},
		{"missing tier", func(c *Config) { delete(c.Generation.Tiers, models.TierComplex) }},
		{"bad aggregation", func(c *Config) { c.Grounding.Aggregation = "MEDIAN" }},
		{"shadow without model", func(c *Config) {
			c.Shadow.Enabled = true
			c.Shadow.ModelID = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := builtinDefaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateFlagWeights(t *testing.T) {
	cfg := builtinDefaults()
	cfg.Flags = map[string]FlagConfig{
		"bad": {Variants: []FlagVariant{
			{Name: "a", Weight: 0.5},
			{Name: "b", Weight: 0.2},
		}},
	}
	assert.Error(t, cfg.Validate(), "weights must sum to 1.0")

	cfg.Flags = map[string]FlagConfig{
		"good": {
			Variants: []FlagVariant{
				{Name: "a", Weight: 0.5},
				{Name: "b", Weight: 0.5},
			},
			Default: "a",
		},
	}
	assert.NoError(t, cfg.Validate())
}
