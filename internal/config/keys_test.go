package config

import (
	"errors"
	"testing"
)

func TestGetAPIKeyFromEnv(t *testing.T) {
	t.Setenv("WEAVE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key-1234567890")

	key, err := GetAPIKey(nil)
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if key != "sk-ant-env-key-1234567890" {
		t.Errorf("expected env key, got %q", key)
	}
	if src := GetAPIKeySource(nil); src != KeySourceAnthropicEnv {
		t.Errorf("expected env source, got %q", src)
	}
}

func TestGetAPIKeyWeaveOverride(t *testing.T) {
	t.Setenv("WEAVE_API_KEY", "sk-ant-REDACTED")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key-1234567890")

	key, err := GetAPIKey(nil)
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if key != "sk-ant-REDACTED" {
		t.Errorf("expected weave-scoped key to win, got %q", key)
	}
	if src := GetAPIKeySource(nil); src != KeySourceWeaveEnv {
		t.Errorf("expected weave env source, got %q", src)
	}
}

func TestGetAPIKeyFromConfig(t *testing.T) {
	t.Setenv("WEAVE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := &Config{}
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"

	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if key != "sk-ant-REDACTED" {
		t.Errorf("expected config key, got %q", key)
	}
	if src := GetAPIKeySource(cfg); src != KeySourceConfig {
		t.Errorf("expected config source, got %q", src)
	}
}

func TestGetAPIKeyMissing(t *testing.T) {
	t.Setenv("WEAVE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := GetAPIKey(&Config{})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
	if src := GetAPIKeySource(&Config{}); src != KeySourceNone {
		t.Errorf("expected none source, got %q", src)
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "sk-ant-REDACTED", false},
		{"empty", "", true},
		{"wrong prefix", "sk-openai-abcdefghijklmnop", true},
		{"too short", "sk-ant-x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey(""); got != "(not set)" {
		t.Errorf("expected (not set), got %q", got)
	}
	if got := MaskAPIKey("short"); got != "***" {
		t.Errorf("expected ***, got %q", got)
	}
	masked := MaskAPIKey("sk-ant-REDACTED")
	if masked != "sk-ant-...1234" {
		t.Errorf("unexpected mask %q", masked)
	}
}
