package llm

import "strings"

// ProviderModels contains the curated list of common models per LLM provider.
var ProviderModels = map[string][]string{
	"anthropic": {
		"claude-sonnet-4-5",
		"claude-sonnet-4-5-thinking",
		"claude-opus-4-5",
		"claude-opus-4-5-thinking",
		"claude-haiku-4-5",
		"claude-haiku-4-5-thinking",
	},
	"openai": {
		"gpt-5.2",
		"gpt-5.2-high",
		"gpt-5.2-codex",
		"gpt-5.2-codex-medium",
		"gpt-5.2-codex-high",
		"gpt-5.2-codex-xhigh",
		"gpt-4.1",
	},
}

// GetProviderNames returns valid provider names for LLM.
func GetProviderNames() []string {
	return []string{"anthropic", "openai", "openai-compat"}
}

// GetProviderCompletions returns completions for the --provider flag.
// It handles both provider-only and provider:model completion scenarios.
func GetProviderCompletions(toComplete string) []string {
	providerNames := GetProviderNames()
	modelMap := ProviderModels

	if strings.Contains(toComplete, ":") {
		parts := strings.SplitN(toComplete, ":", 2)
		provider := parts[0]
		modelPrefix := parts[1]

		models, ok := modelMap[provider]
		if !ok {
			return nil
		}

		var completions []string
		for _, model := range models {
			if strings.HasPrefix(model, modelPrefix) {
				completions = append(completions, provider+":"+model)
			}
		}
		return completions
	}

	var completions []string
	for _, name := range providerNames {
		if strings.HasPrefix(name, toComplete) {
			completions = append(completions, name)
		}
	}
	return completions
}

// inputLimits holds known context-window sizes (in tokens) for well-known
// model name prefixes. Longest prefix wins when more than one matches.
var inputLimits = map[string]int{
	"claude-opus-4":   200_000,
	"claude-sonnet-4": 200_000,
	"claude-haiku-4":  200_000,
	"gpt-5.2-codex":   400_000,
	"gpt-5.2":         400_000,
	"gpt-4.1":         1_000_000,
}

// InputLimitForModel returns the known context window size for a model ID,
// stripping any "-thinking"/effort suffix first. Returns 0 when unknown.
func InputLimitForModel(modelID string) int {
	base, _ := parseModelThinking(modelID)
	base, _ = parseModelEffort(base)

	best := 0
	bestLen := -1
	for prefix, limit := range inputLimits {
		if strings.HasPrefix(base, prefix) && len(prefix) > bestLen {
			best = limit
			bestLen = len(prefix)
		}
	}
	return best
}

// chooseModel returns the per-request model override when present, falling
// back to the provider's configured default model.
func chooseModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}
