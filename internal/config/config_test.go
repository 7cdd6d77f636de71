package config

import "testing"

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{
		DefaultProvider: "anthropic",
		Providers: map[string]ProviderConfig{
			"anthropic": {Model: "claude-sonnet-4-5"},
			"openai":    {Model: "gpt-5.2"},
		},
	}

	cfg.ApplyOverrides("openai", "gpt-4o")
	if cfg.DefaultProvider != "openai" {
		t.Fatalf("provider=%q, want %q", cfg.DefaultProvider, "openai")
	}
	if got := cfg.Providers["openai"].Model; got != "gpt-4o" {
		t.Fatalf("openai model=%q, want %q", got, "gpt-4o")
	}
	if got := cfg.Providers["anthropic"].Model; got != "claude-sonnet-4-5" {
		t.Fatalf("anthropic model changed unexpectedly: %q", got)
	}

	cfg.ApplyOverrides("", "gpt-4o-mini")
	if cfg.DefaultProvider != "openai" {
		t.Fatalf("provider changed unexpectedly: %q", cfg.DefaultProvider)
	}
	if got := cfg.Providers["openai"].Model; got != "gpt-4o-mini" {
		t.Fatalf("openai model=%q, want %q", got, "gpt-4o-mini")
	}
}

func TestInferProviderType(t *testing.T) {
	if got := InferProviderType("anthropic", ""); got != ProviderTypeAnthropic {
		t.Fatalf("anthropic inferred as %q", got)
	}
	if got := InferProviderType("openai", ""); got != ProviderTypeOpenAI {
		t.Fatalf("openai inferred as %q", got)
	}
	if got := InferProviderType("my-custom-endpoint", ""); got != ProviderTypeOpenAICompat {
		t.Fatalf("custom provider inferred as %q, want %q", got, ProviderTypeOpenAICompat)
	}
	if got := InferProviderType("openai", ProviderTypeOpenAICompat); got != ProviderTypeOpenAICompat {
		t.Fatalf("explicit type override not honored: got %q", got)
	}
}

func TestParseProviderModel(t *testing.T) {
	provider, model := ParseProviderModel("openai:gpt-5.2")
	if provider != "openai" || model != "gpt-5.2" {
		t.Fatalf("got (%q, %q), want (%q, %q)", provider, model, "openai", "gpt-5.2")
	}

	provider, model = ParseProviderModel("anthropic")
	if provider != "anthropic" || model != "" {
		t.Fatalf("got (%q, %q), want (%q, %q)", provider, model, "anthropic", "")
	}
}

func TestIsKnownKey(t *testing.T) {
	if !IsKnownKey("default_provider") {
		t.Error("default_provider should be known")
	}
	if !IsKnownKey("providers.anthropic") {
		t.Error("providers.<name> should always be known")
	}
	if !IsKnownKey("providers.anthropic.api_key") {
		t.Error("providers.<name>.api_key should be known")
	}
	if IsKnownKey("providers.anthropic.bogus") {
		t.Error("providers.<name>.bogus should not be known")
	}
	if IsKnownKey("not_a_real_key") {
		t.Error("not_a_real_key should not be known")
	}
}
