// Package embeddings provides the embedding drivers used by the semantic
// tool index. OpenAI and Ollama backends ship; both sit behind the Embedder
// interface so the index and tests can substitute fakes.
package embeddings

import (
	"context"
	"fmt"

	"github.com/tillerhq/tiller/internal/config"
)

// Embedder converts text into fixed-length vectors.
type Embedder interface {
	// Kind returns the driver identifier (e.g. "openai").
	Kind() string

	// Dimensions returns the vector length this driver produces.
	Dimensions() int

	// Embed generates vector embeddings for a batch of texts, one vector
	// per input, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// New builds the configured embedding driver.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.Endpoint, cfg.Timeout), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.Endpoint, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
