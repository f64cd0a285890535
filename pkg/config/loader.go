package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

const (
	pipelineConfigFile = "pipeline.yaml"
	localOverlayFile   = "pipeline.local.yaml"
)

// Initialize loads, merges, validates, and hashes the configuration.
// Layering: built-in defaults ← pipeline.yaml ← pipeline.local.yaml.
// This is the primary entry point for configuration loading.
func Initialize(configDir string) (*Config, error) {
	cfg := builtinDefaults()
	cfg.configDir = configDir

	if err := mergeFile(cfg, filepath.Join(configDir, pipelineConfigFile)); err != nil {
		return nil, err
	}

	// The local overlay is optional; a missing file is not an error.
	localPath := filepath.Join(configDir, localOverlayFile)
	if err := mergeFile(cfg, localPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	} else {
		slog.Info("Applied local configuration overlay", "path", localPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}

	hash, err := snapshotHash(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to hash configuration: %w", err)
	}
	cfg.hash = hash

	slog.Info("Configuration initialized",
		"config_dir", configDir,
		"pipeline_version", cfg.PipelineVersion,
		"config_hash", cfg.hash,
		"flags", len(cfg.Flags))

	return cfg, nil
}

// mergeFile parses the YAML file at path and merges it over cfg.
// Returns fs.ErrNotExist (wrapped) when the file is absent.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	data = ExpandEnv(data)

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := mergo.Merge(cfg, &overlay, mergo.WithOverride); err != nil {
		return fmt.Errorf("merging %s: %w", path, err)
	}
	return nil
}

// snapshotHash returns the first 12 hex chars of the sha256 of the
// canonical YAML rendering. Identical deployments yield identical hashes.
func snapshotHash(cfg *Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12], nil
}
