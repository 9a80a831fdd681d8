package llmclient

import (
	"context"
	"fmt"
	"strings"
)

const (
	ProviderDeepSeek   = "deepseek"
	ProviderHyperbolic = "hyperbolic"
	ProviderGemini     = "gemini"
)

// New returns the client for provider. baseURL is ignored for gemini.
func New(ctx context.Context, provider, apiKey, baseURL string) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderDeepSeek, "":
		return NewOpenAIClient(ProviderDeepSeek, apiKey, baseURL), nil
	case ProviderHyperbolic:
		return NewOpenAIClient(ProviderHyperbolic, apiKey, baseURL), nil
	case ProviderGemini:
		if strings.TrimSpace(apiKey) == "" {
			return nil, &AuthError{Provider: ProviderGemini}
		}
		return NewGeminiClient(ctx, apiKey)
	default:
		return nil, fmt.Errorf("llmclient: unknown provider %q", provider)
	}
}
