package generation

import (
	"context"
	"fmt"

	"peterbot/internal/config"
	"peterbot/internal/logging"
)

// NewClientFromConfig builds the configured backend. The capability
// descriptor is resolved here, once, and never re-derived per request.
func NewClientFromConfig(ctx context.Context, cfg *config.Config, persona Persona) (Client, error) {
	capability := ResolveCapability(cfg.LLM)
	base := Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Capability:      capability,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		MaxImageBytes:   cfg.GetMaxImageBytes(),
		Timeout:         cfg.GetLLMTimeout(),
		EmptyResponse:   cfg.Behavior.Messages.Empty,
		Persona:         persona,
	}

	logging.Boot("generation backend: provider=%s text_model=%s vision_model=%s vision=%s",
		capability.Provider, capability.TextModel, capability.VisionModel, capability.Vision)

	return NewClient(ctx, capability.Provider, base)
}

// NewClient builds a backend by provider name.
func NewClient(ctx context.Context, provider string, cfg Config) (Client, error) {
	switch provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case config.ProviderOllama:
		return NewOllamaClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
