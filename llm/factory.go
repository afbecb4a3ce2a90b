package llm

import (
	"context"
	"fmt"
	"strings"

	perrors "github.com/vinayprograms/pulse/errors"
)

// NewProvider creates a traced provider from cfg. If cfg.Provider is empty
// it is inferred from the model name.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.Provider == "" && cfg.Model != "" {
		cfg.Provider = InferProviderFromModel(cfg.Model)
		if cfg.Provider == "" {
			return nil, perrors.InvalidConfig("llm.provider",
				fmt.Sprintf("cannot determine provider for model %q; set provider explicitly", cfg.Model))
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "anthropic":
		p, err = NewAnthropicProvider(cfg)
	case "openai":
		p, err = NewOpenAIProvider(cfg)
	case "google":
		p, err = NewGoogleProvider(ctx, cfg)
	default:
		return nil, perrors.InvalidConfig("llm.provider", fmt.Sprintf("unsupported provider %q", cfg.Provider))
	}
	if err != nil {
		return nil, err
	}
	return WithTracing(p, cfg.Provider), nil
}

// InferProviderFromModel returns the provider name based on model name patterns.
func InferProviderFromModel(model string) string {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"),
		strings.HasPrefix(model, "chatgpt"):
		return "openai"
	case strings.HasPrefix(model, "gemini"), strings.HasPrefix(model, "gemma"):
		return "google"
	}
	return ""
}
