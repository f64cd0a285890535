package config

import "fmt"

// NewForTesting returns the built-in default configuration, validated
// and hashed, without touching the filesystem. Tests mutate the returned
// snapshot before wiring it into the component under test.
func NewForTesting() (*Config, error) {
	cfg := builtinDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("built-in defaults invalid: %w", err)
	}
	hash, err := snapshotHash(cfg)
	if err != nil {
		return nil, err
	}
	cfg.hash = hash
	return cfg, nil
}
