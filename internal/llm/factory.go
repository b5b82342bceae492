package llm

import (
	"fmt"
	"strings"

	"github.com/rbholmes/toolchat/internal/config"
)

// ParseProviderModel parses "provider:model" or just "provider" from a flag
// value. Model is empty when not specified.
func ParseProviderModel(s string) (string, string, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		return "", "", fmt.Errorf("invalid provider format: %q", s)
	}
	provider := strings.TrimSpace(parts[0])
	model := ""
	if len(parts) == 2 {
		model = strings.TrimSpace(parts[1])
	}
	switch provider {
	case "anthropic", "openai", "gemini":
		return provider, model, nil
	}
	return "", "", fmt.Errorf("unknown provider: %s", provider)
}

// NewProvider creates the configured LLM provider, wrapped with automatic
// retry for rate limits (429) and transient errors.
func NewProvider(cfg *config.Config) (Provider, error) {
	provider, err := newProviderInternal(cfg)
	if err != nil {
		return nil, err
	}
	return WrapWithRetry(provider, DefaultRetryConfig()), nil
}

func newProviderInternal(cfg *config.Config) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case "gemini":
		return NewGeminiProvider(cfg.Gemini.APIKey, cfg.Gemini.Model)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}
}
