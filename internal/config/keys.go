package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey indicates no Anthropic API key could be resolved from the
// environment or the config file.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// KeySource identifies where an API key was resolved from.
type KeySource string

const (
	// KeySourceWeaveEnv is the weave-scoped environment override.
	KeySourceWeaveEnv KeySource = "WEAVE_API_KEY"
	// KeySourceAnthropicEnv is the standard Anthropic environment variable.
	KeySourceAnthropicEnv KeySource = "ANTHROPIC_API_KEY"
	// KeySourceConfig is the anthropic.api_key entry in the config file.
	KeySourceConfig KeySource = "config file"
	// KeySourceNone means no key was found anywhere.
	KeySourceNone KeySource = "none"
)

// resolveKey walks the key sources in precedence order: the weave-scoped
// environment override, the standard Anthropic variable, then the config
// file. Config values expand ${VAR} references; a reference that expands to
// nothing does not count as a key.
func resolveKey(cfg *Config) (string, KeySource) {
	if key := os.Getenv("WEAVE_API_KEY"); key != "" {
		return key, KeySourceWeaveEnv
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, KeySourceAnthropicEnv
	}
	if cfg != nil && cfg.Anthropic.APIKey != "" {
		key := os.ExpandEnv(cfg.Anthropic.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, KeySourceConfig
		}
	}
	return "", KeySourceNone
}

// GetAPIKey resolves the Anthropic API key, preferring environment
// variables over the config file.
func GetAPIKey(cfg *Config) (string, error) {
	key, source := resolveKey(cfg)
	if source == KeySourceNone {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// GetAPIKeySource reports which source GetAPIKey would resolve the key
// from, without returning the key itself.
func GetAPIKeySource(cfg *Config) KeySource {
	_, source := resolveKey(cfg)
	return source
}

// ValidateAPIKey checks that a key looks like an Anthropic API key. It
// never calls the API; a well-formed but revoked key still passes.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return ErrNoAPIKey
	case !strings.HasPrefix(key, "sk-ant-"):
		return fmt.Errorf("malformed API key: missing sk-ant- prefix")
	case len(key) < 20:
		return fmt.Errorf("malformed API key: too short")
	}
	return nil
}

// MaskAPIKey renders a key for display without revealing it: the sk-ant-
// prefix and the last four characters.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 15:
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
