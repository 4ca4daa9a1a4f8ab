package embedder

import (
	"fmt"

	"github.com/kestrelhq/coderag/internal/config"
)

// NewFromConfig builds the embedding client selected by configuration.
// Provider "openai" requires an API key or a compatible BaseURL;
// provider "local" always works.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	var provider DenseProvider
	var err error

	switch cfg.EmbeddingProvider {
	case "openai":
		provider, err = NewOpenAIProvider(OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.DenseDimension,
		})
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
	case "local":
		provider = NewLocalProvider(cfg.DenseDimension)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrNoProviderEnabled, cfg.EmbeddingProvider)
	}

	return NewClient(provider, ClientConfig{BatchSize: cfg.EmbedBatchSize})
}
