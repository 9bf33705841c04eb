package provider

import (
	"fmt"
	"strings"

	"github.com/faultline/faultline/internal/config"
)

const openRouterBase = "https://openrouter.ai/api/v1"

// ParseModelString splits a "provider/model" string into provider ID and
// model name. For OpenRouter the model part keeps its own slash
// ("openrouter/vendor/model").
func ParseModelString(s string) (providerID, modelName string) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, "/", 2)
	if len(parts) < 2 {
		return "", s
	}
	return strings.ToLower(parts[0]), parts[1]
}

// Resolve creates the LLMProvider selected by cfg.Model.Name. A bare model
// name (no "provider/" prefix) picks whichever provider has an API key
// configured, preferring Anthropic.
func Resolve(cfg *config.Config) (LLMProvider, error) {
	providerID, model := ParseModelString(cfg.Model.Name)
	switch providerID {
	case "anthropic", "claude":
		return NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.APIBase, model), nil
	case "openai":
		return NewOpenAIProvider(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, model), nil
	case "openrouter":
		base := cfg.Providers.OpenRouter.APIBase
		if base == "" {
			base = openRouterBase
		}
		return NewOpenAIProvider(cfg.Providers.OpenRouter.APIKey, base, model), nil
	case "":
		if cfg.Providers.Anthropic.APIKey != "" {
			return NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.APIBase, model), nil
		}
		if cfg.Providers.OpenAI.APIKey != "" {
			return NewOpenAIProvider(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, model), nil
		}
		return nil, fmt.Errorf("no provider configured for model %q", cfg.Model.Name)
	default:
		return nil, fmt.Errorf("unknown provider %q in model %q", providerID, cfg.Model.Name)
	}
}
