// Package openai embeds text through any OpenAI-compatible embeddings API
// (OpenAI itself, Ollama's /v1 endpoint, vLLM and similar).
package openai

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"ragpipe/internal/domain"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "text-embedding-3-small"
	DefaultBatchSize = 32
)

// Config configures the embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int
	// MaxRetries is handed to the SDK, which retries 429 and 5xx responses
	// honouring Retry-After.
	MaxRetries int
}

// Embedder is an OpenAI-compatible embeddings client.
type Embedder struct {
	client    openai.Client
	model     string
	batchSize int

	mu        sync.RWMutex
	dimension int
}

var _ domain.Embedder = (*Embedder)(nil)

// New creates a client reading its key from the environment variable named
// by cfg.APIKeyEnv.
func New(cfg Config) (*Embedder, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: set %s", domain.ErrMissingAPIKey, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	client := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	)
	return &Embedder{client: client, model: cfg.Model, batchSize: cfg.BatchSize}, nil
}

func (e *Embedder) Name() string { return "openai" }

// Dimension is zero until the first successful response.
func (e *Embedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// EmbedBatch sends texts in batches and returns vectors in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		if err := e.embedRange(ctx, texts[start:end], out[start:end]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Embedder) embedRange(ctx context.Context, texts []string, dst [][]float64) error {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(dst) || len(d.Embedding) == 0 {
			return fmt.Errorf("openai embeddings: malformed item at index %d", d.Index)
		}
		if err := e.checkDimension(len(d.Embedding)); err != nil {
			return err
		}
		dst[i] = d.Embedding
	}
	return nil
}

func (e *Embedder) checkDimension(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dimension == 0 {
		e.dimension = n
		return nil
	}
	if n != e.dimension {
		return fmt.Errorf("openai embeddings: dimension changed from %d to %d", e.dimension, n)
	}
	return nil
}
