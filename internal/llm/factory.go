package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dataagent/dataagent/internal/config"
)

// New builds the configured provider client wrapped with retries and metering.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (Client, error) {
	pc := ProviderConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
	}

	var base Client
	switch cfg.Provider {
	case "openai":
		client, err := NewOpenAI(pc)
		if err != nil {
			return nil, err
		}
		base = client
	case "anthropic":
		client, err := NewAnthropic(pc)
		if err != nil {
			return nil, err
		}
		base = client
	case "google":
		client, err := NewGoogle(ctx, pc)
		if err != nil {
			return nil, err
		}
		base = client
	case "mock":
		base = NewMock()
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	return NewMetered(NewRetrying(base, cfg.MaxRetries, logger), DefaultPricing), nil
}
