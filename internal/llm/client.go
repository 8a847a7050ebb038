package llm

import (
	"context"
	"fmt"

	"github.com/perbu/promptrun/internal/config"
)

// Client issues one request per call and classifies the result. It never
// retries; implementations are safe for concurrent use.
type Client interface {
	Attempt(ctx context.Context, target, payload string) Outcome
}

// NewClient creates the service client selected by config
func NewClient(ctx context.Context, cfg *config.Config) (Client, error) {
	timeouts := Timeouts{
		Default:   cfg.Service.DefaultTimeout,
		PerTarget: cfg.Service.Timeouts,
	}
	models := ModelMap(cfg.Service.ModelMap)

	switch cfg.Service.Backend {
	case config.BackendOllama:
		return NewOllamaClient(OllamaOptions{
			Endpoint:    cfg.Service.Endpoint,
			Temperature: cfg.Service.Temperature,
			Timeouts:    timeouts,
			Models:      models,
		}), nil
	case config.BackendGemini:
		apiKey := cfg.GetAPIKey()
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.Service.APIKeyEnv)
		}
		return NewGeminiClient(ctx, GeminiOptions{
			APIKey:      apiKey,
			Temperature: cfg.Service.Temperature,
			Timeouts:    timeouts,
			Models:      models,
		})
	default:
		return nil, fmt.Errorf("unknown service backend: %q", cfg.Service.Backend)
	}
}
