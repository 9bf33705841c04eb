package cli

import (
	"fmt"

	"github.com/faultline/faultline/internal/config"
	"github.com/faultline/faultline/internal/secrets"
)

// loadConfig loads the configuration and fills empty credential fields
// from the sealed secret store when one exists. File and environment
// values win over sealed ones.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	store := secrets.NewStore(cfg.Paths.DataDir)
	if !store.Exists() {
		return cfg, nil
	}
	kv, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("sealed secrets: %w", err)
	}
	applySecrets(cfg, kv)
	return cfg, nil
}

func applySecrets(cfg *config.Config, kv map[string]string) {
	fill := func(dst *string, name string) {
		if *dst == "" && kv[name] != "" {
			*dst = kv[name]
		}
	}
	fill(&cfg.Providers.Anthropic.APIKey, secrets.NameAnthropicKey)
	fill(&cfg.Providers.OpenAI.APIKey, secrets.NameOpenAIKey)
	fill(&cfg.Providers.OpenRouter.APIKey, secrets.NameOpenRouterKey)
	fill(&cfg.Channels.Slack.BotToken, secrets.NameSlackBotToken)
	fill(&cfg.Channels.Slack.AppToken, secrets.NameSlackAppToken)
	fill(&cfg.Fix.Token, secrets.NameFixToken)
	fill(&cfg.API.Token, secrets.NameAPIToken)
}
