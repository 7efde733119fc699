// Package config handles configuration loading and management for Weave.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for Weave.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	State     StateConfig     `mapstructure:"state"`
	Answers   AnswersConfig   `mapstructure:"answers"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. ${VAR} references are expanded.
	APIKey string `mapstructure:"api_key"`
	// Model is the model used for agent invocations.
	Model string `mapstructure:"model"`
	// UseBedrock routes API calls through AWS Bedrock instead of the
	// Anthropic API directly.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// BedrockRegion is the AWS region for Bedrock calls.
	BedrockRegion string `mapstructure:"bedrock_region"`
	// MaxTokens caps the tokens generated per invocation.
	MaxTokens int `mapstructure:"max_tokens"`
}

// DefaultsConfig holds default execution policy for flows.
type DefaultsConfig struct {
	// Concurrency is the maximum number of simultaneously running tasks.
	Concurrency int `mapstructure:"concurrency"`
	// CorrectionRounds is the total agent invocations allowed per task
	// when output fails validation, counting the first.
	CorrectionRounds int `mapstructure:"correction_rounds"`
	// RetryAttempts is the number of attempts per invocation for
	// transient agent errors.
	RetryAttempts int `mapstructure:"retry_attempts"`
}

// StateConfig holds flow snapshot persistence settings.
type StateConfig struct {
	// Enabled toggles SQLite snapshotting of flow runs.
	Enabled bool `mapstructure:"enabled"`
	// Path overrides the snapshot database location. Empty means the
	// project-local default under .weave/.
	Path string `mapstructure:"path"`
}

// AnswersConfig holds settings for file-based answer delivery to
// suspended interactive tasks.
type AnswersConfig struct {
	// Dir is the directory watched for answer files. Empty disables the
	// watcher.
	Dir string `mapstructure:"dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.weave.yaml in current directory or parent)
// 3. User config (~/.config/weave/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.use_bedrock", "WEAVE_USE_BEDROCK")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.bedrock_region", cfg.Anthropic.BedrockRegion)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("defaults.concurrency", cfg.Defaults.Concurrency)
	v.Set("defaults.correction_rounds", cfg.Defaults.CorrectionRounds)
	v.Set("defaults.retry_attempts", cfg.Defaults.RetryAttempts)
	v.Set("state.enabled", cfg.State.Enabled)
	v.Set("state.path", cfg.State.Path)
	v.Set("answers.dir", cfg.Answers.Dir)

	return v.WriteConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.bedrock_region", "us-east-1")
	v.SetDefault("anthropic.max_tokens", 8192)

	v.SetDefault("defaults.concurrency", 4)
	v.SetDefault("defaults.correction_rounds", 3)
	v.SetDefault("defaults.retry_attempts", 3)

	v.SetDefault("state.enabled", true)
	v.SetDefault("state.path", "")

	v.SetDefault("answers.dir", "")
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// getUserConfigDir returns the XDG config directory for Weave.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "weave")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "weave")
	}
	return filepath.Join(home, ".config", "weave")
}

// findProjectConfig searches for .weave.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".weave.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}
