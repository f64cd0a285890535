package config

import "os"

// ExpandEnv expands environment variables in YAML content before
// parsing. Supports both ${VAR} and $VAR syntax (standard shell-style),
// so secrets and host names can be referenced from the config file
// instead of inlined.
//
// Missing variables expand to empty string. Validation should catch
// required fields that are empty.
func ExpandEnv(data []byte) []byte {
	expanded := os.ExpandEnv(string(data))
	return []byte(expanded)
}
