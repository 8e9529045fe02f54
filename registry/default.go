package registry

import (
	"github.com/sidedotdev/inferencecore/provider"
	"github.com/sidedotdev/inferencecore/provideranthropic"
	"github.com/sidedotdev/inferencecore/provideropenai"
	"github.com/sidedotdev/inferencecore/request"
)

func toClientConfig(cfg DriverConfig, authHeader func(apiKey string) (name, value string)) request.ClientConfig {
	client := request.NewClientConfig(cfg.APIKey, authHeader)
	if cfg.BaseURL != "" {
		client = client.WithBaseURL(cfg.BaseURL)
	}
	if cfg.Timeout > 0 {
		client = client.WithTimeout(cfg.Timeout)
	}
	if cfg.MaxRetries != nil {
		client = client.WithMaxRetries(*cfg.MaxRetries)
	}
	return client
}

// Default returns a Registry pre-wired with every driver this module ships:
// "openai" (Chat Completions) and "anthropic" (Messages).
func Default() *Registry {
	r := New()

	r.Register("openai", func(cfg DriverConfig) (provider.InferenceProvider, error) {
		client := toClientConfig(cfg, func(key string) (string, string) { return "Authorization", "Bearer " + key })
		return provideropenai.New(client, cfg.APIKey)
	})

	r.Register("anthropic", func(cfg DriverConfig) (provider.InferenceProvider, error) {
		client := toClientConfig(cfg, func(key string) (string, string) { return "x-api-key", key })
		if beta, ok := cfg.Extra["anthropic_beta_header"].(string); ok && beta != "" {
			client.Headers["anthropic-beta"] = beta
			client = client.WithAnthropicBetaOptIn(true)
		}
		return provideranthropic.New(client, cfg.APIKey)
	})

	return r
}
