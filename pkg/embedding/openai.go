// Package embedding turns text into vectors through any OpenAI-compatible
// embeddings endpoint (OpenAI itself, Ollama, LocalAI, vLLM).
package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/sujanshetty01/OMD/pkg/logging"
)

// Config configures the embeddings client.
type Config struct {
	// BaseURL of the API, e.g. "http://localhost:11434/v1". Empty uses OpenAI.
	BaseURL string
	APIKey  string
	Model   string

	// BatchSize bounds the inputs sent per request.
	BatchSize int
}

// OpenAIEmbedder implements Embed against the embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// NewOpenAIEmbedder creates an embedder.
func NewOpenAIEmbedder(cfg Config, logger *slog.Logger) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	logger = logging.Or(logger)
	logger.Info("initializing embeddings client", "model", cfg.Model, "base_url", oc.BaseURL)

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Embed returns one vector per input, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: openai.EmbeddingModel(e.cfg.Model),
		})
		if err != nil {
			return nil, fmt.Errorf("embeddings request failed: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("embeddings response has %d vectors for %d inputs", len(resp.Data), end-start)
		}

		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= end-start {
				return nil, fmt.Errorf("embeddings response index %d out of range", d.Index)
			}
			out[start+d.Index] = d.Embedding
		}
	}

	e.logger.Debug("embedded texts", "count", len(texts), "model", e.cfg.Model)
	return out, nil
}
