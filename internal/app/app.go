// Package app assembles a pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ragpipe/internal/chunker"
	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/embedding/hashing"
	"ragpipe/internal/embedding/openai"
	"ragpipe/internal/generator"
	"ragpipe/internal/generator/extractive"
	"ragpipe/internal/generator/groq"
	"ragpipe/internal/loader"
	"ragpipe/internal/logger"
	"ragpipe/internal/pipeline"
	"ragpipe/internal/vectorstore"
	"ragpipe/internal/vectorstore/memory"
	"ragpipe/internal/vectorstore/qdrant"
	"ragpipe/internal/vectorstore/sqlite"
)

// Build wires every component named by cfg and resumes from records already
// in a persistent store. The caller closes the pipeline.
func Build(ctx context.Context, cfg *config.AppConfig, l *zap.Logger) (*pipeline.Pipeline, error) {
	l = logger.OrNop(l)

	ch, err := NewChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	emb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	st, err := NewStore(ctx, cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(pipeline.Options{
		Loader:        loader.New(l),
		Chunker:       ch,
		Index:         vectorstore.NewIndex(emb, st, cfg.Embedder.BatchSize, l),
		Generator:     NewGenerator(cfg, l),
		DocumentsPath: cfg.DocumentsPath,
		K:             cfg.Retrieval.K,
		Threshold:     cfg.Retrieval.ScoreThreshold,
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		Logger:        l,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := p.Resume(ctx); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// NewChunker builds the configured chunking strategy.
func NewChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case config.ChunkerRecursive, "":
		return chunker.NewRecursive(cfg.Size, cfg.Overlap)
	case config.ChunkerParagraph:
		return chunker.NewParagraph(cfg.Size)
	case config.ChunkerSentence:
		return chunker.NewSentence(cfg.SentencesPerChunk, cfg.OverlapSentences)
	default:
		return nil, &domain.ConfigError{Setting: "CHUNK_STRATEGY", Reason: fmt.Sprintf("unknown chunker %q", cfg.Type)}
	}
}

// NewEmbedder builds the configured embedder.
func NewEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case config.EmbedderHashing, "":
		return hashing.New(cfg.Dimensions), nil
	case config.EmbedderOpenAI:
		oc := cfg.OpenAI
		if oc == nil {
			oc = &config.OpenAIEmbedderConfig{}
		}
		return openai.New(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			BatchSize:  cfg.BatchSize,
			MaxRetries: 3,
		})
	default:
		return nil, &domain.ConfigError{Setting: "EMBEDDER_TYPE", Reason: fmt.Sprintf("unknown embedder %q", cfg.Type)}
	}
}

// NewStore opens the configured vector store.
func NewStore(ctx context.Context, cfg config.VectorStoreConfig) (domain.VectorStore, error) {
	switch cfg.Type {
	case config.StoreSQLite, "":
		return sqlite.NewStore(ctx, cfg.Path)
	case config.StoreMemory:
		return memory.NewStorage(), nil
	case config.StoreQdrant:
		if cfg.Qdrant == nil {
			return nil, &domain.ConfigError{Setting: "QDRANT_URL", Reason: "required for the qdrant vector store"}
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, &domain.ConfigError{Setting: "VECTOR_STORE_TYPE", Reason: fmt.Sprintf("unknown vector store %q", cfg.Type)}
	}
}

// NewGenerator returns the configured answer generator. The Groq client is
// created on first use so that a missing GROQ_API_KEY only fails questions.
func NewGenerator(cfg *config.AppConfig, l *zap.Logger) domain.Generator {
	if cfg.LLM.Provider == config.ProviderExtractive {
		return extractive.New(3)
	}
	return generator.NewLazy("groq", func() (domain.Generator, error) {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
		return groq.New(groq.Config{
			APIKey:            cfg.LLM.APIKey,
			BaseURL:           cfg.LLM.BaseURL,
			Model:             cfg.LLM.Model,
			MaxTokens:         cfg.LLM.MaxTokens,
			MaxRetries:        cfg.LLM.MaxRetries,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			Timeout:           time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
			SystemPrompt:      cfg.LLM.SystemPrompt,
			Logger:            l,
		})
	})
}
