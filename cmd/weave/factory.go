package main

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/weave/internal/agent"
	"github.com/ShayCichocki/weave/internal/api"
	"github.com/ShayCichocki/weave/internal/config"
)

// buildBinding assembles the agent stack for a run: API client, message
// runner, Claude capability, and the binding that routes tasks to it.
func buildBinding(cfg *config.Config) (*agent.Binding, *api.Client, error) {
	key, err := config.GetAPIKey(cfg)
	if err != nil && !cfg.Anthropic.UseBedrock {
		return nil, nil, fmt.Errorf("%w\n\nSet ANTHROPIC_API_KEY or add anthropic.api_key to %s", err, config.GetUserConfigPath())
	}

	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        key,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.BedrockRegion,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create API client: %w", err)
	}

	runner := api.NewRunner(client)
	if cfg.Anthropic.MaxTokens > 0 {
		runner.SetMaxTokens(int64(cfg.Anthropic.MaxTokens))
	}

	registry := agent.NewRegistry(agent.NewClaude(runner))
	binding := agent.NewBinding(registry)
	if cfg.Defaults.RetryAttempts > 0 {
		binding.SetMaxAttempts(cfg.Defaults.RetryAttempts)
	}

	return binding, client, nil
}
