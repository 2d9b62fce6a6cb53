package embedding

import (
	"fmt"

	"soup/config"
	"soup/internal/port"
)

// New builds the embedder selected by cfg.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	opts := []Option{WithTimeout(cfg.Timeout), WithDimension(cfg.Dimension)}

	switch cfg.Provider {
	case "openai":
		if cfg.BaseURL != "" {
			return NewOpenAICompatibleEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, opts...)
		}
		return NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, opts...)
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.BaseURL, opts...)
	case "mock":
		return NewMockEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
