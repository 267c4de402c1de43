package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"ragpipe/internal/domain"
)

// Supported component types.
const (
	ChunkerRecursive = "recursive"
	ChunkerParagraph = "paragraph"
	ChunkerSentence  = "sentence"

	EmbedderHashing = "hashing"
	EmbedderOpenAI  = "openai"

	StoreSQLite = "sqlite"
	StoreMemory = "memory"
	StoreQdrant = "qdrant"

	ProviderGroq       = "groq"
	ProviderExtractive = "extractive"
)

// APIKeyEnv is the variable holding the Groq API key.
const APIKeyEnv = "GROQ_API_KEY"

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	Size              int    `yaml:"size"`
	Overlap           int    `yaml:"overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type       string                `yaml:"type"`
	Dimensions int                   `yaml:"dimensions"`
	BatchSize  int                   `yaml:"batch_size"`
	OpenAI     *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Path   string        `yaml:"path"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// RetrievalConfig controls similarity search.
type RetrievalConfig struct {
	K              int     `yaml:"k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// LLMConfig configures answer generation. The API key is never written to
// the config file.
type LLMConfig struct {
	Provider          string  `yaml:"provider"`
	APIKey            string  `yaml:"-"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	SystemPrompt      string  `yaml:"system_prompt,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DocumentsPath string            `yaml:"documents_path"`
	Chunker       ChunkerConfig     `yaml:"chunker"`
	Embedder      EmbedderConfig    `yaml:"embedder"`
	VectorStore   VectorStoreConfig `yaml:"vector_store"`
	Retrieval     RetrievalConfig   `yaml:"retrieval"`
	LLM           LLMConfig         `yaml:"llm"`
}

// envOverrides lists the environment variables layered over the file.
// Unset variables leave the pointer nil.
type envOverrides struct {
	APIKey            *string  `envconfig:"GROQ_API_KEY"`
	BaseURL           *string  `envconfig:"GROQ_BASE_URL"`
	VectorStorePath   *string  `envconfig:"VECTOR_STORE_PATH"`
	VectorStoreType   *string  `envconfig:"VECTOR_STORE_TYPE"`
	QdrantURL         *string  `envconfig:"QDRANT_URL"`
	QdrantAPIKey      *string  `envconfig:"QDRANT_API_KEY"`
	QdrantCollection  *string  `envconfig:"QDRANT_COLLECTION"`
	DocumentsPath     *string  `envconfig:"DOCUMENTS_PATH"`
	ChunkSize         *int     `envconfig:"CHUNK_SIZE"`
	ChunkOverlap      *int     `envconfig:"CHUNK_OVERLAP"`
	ChunkStrategy     *string  `envconfig:"CHUNK_STRATEGY"`
	K                 *int     `envconfig:"K_RETRIEVED_DOCS"`
	ScoreThreshold    *float64 `envconfig:"SCORE_THRESHOLD"`
	Provider          *string  `envconfig:"LLM_PROVIDER"`
	Model             *string  `envconfig:"LLM_MODEL"`
	Temperature       *float64 `envconfig:"LLM_TEMPERATURE"`
	MaxTokens         *int     `envconfig:"LLM_MAX_TOKENS"`
	MaxRetries        *int     `envconfig:"LLM_MAX_RETRIES"`
	RequestsPerMinute *int     `envconfig:"LLM_REQUESTS_PER_MINUTE"`
	LLMTimeoutSecs    *int     `envconfig:"LLM_TIMEOUT_SECS"`
	SystemPrompt      *string  `envconfig:"SYSTEM_PROMPT"`
	EmbedderType      *string  `envconfig:"EMBEDDER_TYPE"`
	EmbeddingDims     *int     `envconfig:"EMBEDDING_DIMENSIONS"`
	EmbeddingModel    *string  `envconfig:"EMBEDDING_MODEL"`
	EmbeddingBaseURL  *string  `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingKeyEnv   *string  `envconfig:"EMBEDDING_API_KEY_ENV"`
	EmbedBatchSize    *int     `envconfig:"EMBED_BATCH_SIZE"`
}

// Load reads a config from a specified path, overlays .env and the process
// environment, and validates the result. A missing file yields defaults.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragpipe/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragpipe/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks ranges and enum values and names the offending setting.
func (c *AppConfig) Validate() error {
	switch c.Chunker.Type {
	case ChunkerRecursive, ChunkerParagraph:
		if c.Chunker.Size <= 0 {
			return &domain.ConfigError{Setting: "CHUNK_SIZE", Reason: "must be positive"}
		}
		if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
			return &domain.ConfigError{Setting: "CHUNK_OVERLAP", Reason: fmt.Sprintf("must satisfy 0 <= overlap < %d", c.Chunker.Size)}
		}
	case ChunkerSentence:
		if c.Chunker.SentencesPerChunk <= 0 {
			return &domain.ConfigError{Setting: "chunker.sentences_per_chunk", Reason: "must be positive"}
		}
		if c.Chunker.OverlapSentences < 0 || c.Chunker.OverlapSentences >= c.Chunker.SentencesPerChunk {
			return &domain.ConfigError{Setting: "chunker.overlap_sentences", Reason: "must be below sentences_per_chunk"}
		}
	default:
		return &domain.ConfigError{Setting: "CHUNK_STRATEGY", Reason: fmt.Sprintf("unknown chunker %q", c.Chunker.Type)}
	}

	switch c.Embedder.Type {
	case EmbedderHashing:
		if c.Embedder.Dimensions <= 0 {
			return &domain.ConfigError{Setting: "EMBEDDING_DIMENSIONS", Reason: "must be positive"}
		}
	case EmbedderOpenAI:
	default:
		return &domain.ConfigError{Setting: "EMBEDDER_TYPE", Reason: fmt.Sprintf("unknown embedder %q", c.Embedder.Type)}
	}
	if c.Embedder.BatchSize <= 0 {
		return &domain.ConfigError{Setting: "EMBED_BATCH_SIZE", Reason: "must be positive"}
	}

	switch c.VectorStore.Type {
	case StoreSQLite:
		if strings.TrimSpace(c.VectorStore.Path) == "" {
			return &domain.ConfigError{Setting: "VECTOR_STORE_PATH", Reason: "must not be empty"}
		}
	case StoreMemory:
	case StoreQdrant:
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return &domain.ConfigError{Setting: "QDRANT_URL", Reason: "required for the qdrant vector store"}
		}
	default:
		return &domain.ConfigError{Setting: "VECTOR_STORE_TYPE", Reason: fmt.Sprintf("unknown vector store %q", c.VectorStore.Type)}
	}

	if c.Retrieval.K <= 0 {
		return &domain.ConfigError{Setting: "K_RETRIEVED_DOCS", Reason: "must be positive"}
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return &domain.ConfigError{Setting: "SCORE_THRESHOLD", Reason: "must be within [0, 1]"}
	}

	switch c.LLM.Provider {
	case ProviderGroq, ProviderExtractive:
	default:
		return &domain.ConfigError{Setting: "LLM_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.LLM.Provider)}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return &domain.ConfigError{Setting: "LLM_TEMPERATURE", Reason: "must be within [0, 2]"}
	}
	if c.LLM.MaxRetries < 0 {
		return &domain.ConfigError{Setting: "LLM_MAX_RETRIES", Reason: "must not be negative"}
	}
	if c.LLM.MaxTokens < 0 {
		return &domain.ConfigError{Setting: "LLM_MAX_TOKENS", Reason: "must not be negative"}
	}
	return nil
}

// RequireAPIKey fails when the Groq key is absent. It is checked when a
// generator is built, not at startup.
func (c *AppConfig) RequireAPIKey() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("%w: set %s", domain.ErrMissingAPIKey, APIKeyEnv)
	}
	return nil
}

func finish(cfg *AppConfig) error {
	// .env is optional; variables already in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &domain.ConfigError{Setting: ".env", Reason: err.Error()}
	}
	if err := applyEnv(cfg); err != nil {
		return err
	}
	applyConfigDefaults(cfg)
	return cfg.Validate()
}

func applyEnv(cfg *AppConfig) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	setString(&cfg.LLM.APIKey, env.APIKey)
	setString(&cfg.LLM.BaseURL, env.BaseURL)
	setString(&cfg.VectorStore.Path, env.VectorStorePath)
	setString(&cfg.VectorStore.Type, env.VectorStoreType)
	if env.QdrantURL != nil || env.QdrantAPIKey != nil || env.QdrantCollection != nil {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		setString(&cfg.VectorStore.Qdrant.URL, env.QdrantURL)
		setString(&cfg.VectorStore.Qdrant.APIKey, env.QdrantAPIKey)
		setString(&cfg.VectorStore.Qdrant.Collection, env.QdrantCollection)
	}
	setString(&cfg.DocumentsPath, env.DocumentsPath)
	setInt(&cfg.Chunker.Size, env.ChunkSize)
	setInt(&cfg.Chunker.Overlap, env.ChunkOverlap)
	setString(&cfg.Chunker.Type, env.ChunkStrategy)
	setInt(&cfg.Retrieval.K, env.K)
	setFloat(&cfg.Retrieval.ScoreThreshold, env.ScoreThreshold)
	setString(&cfg.LLM.Provider, env.Provider)
	setString(&cfg.LLM.Model, env.Model)
	setFloat(&cfg.LLM.Temperature, env.Temperature)
	setInt(&cfg.LLM.MaxTokens, env.MaxTokens)
	setInt(&cfg.LLM.MaxRetries, env.MaxRetries)
	setInt(&cfg.LLM.RequestsPerMinute, env.RequestsPerMinute)
	setInt(&cfg.LLM.TimeoutSecs, env.LLMTimeoutSecs)
	setString(&cfg.LLM.SystemPrompt, env.SystemPrompt)
	setString(&cfg.Embedder.Type, env.EmbedderType)
	setInt(&cfg.Embedder.Dimensions, env.EmbeddingDims)
	setInt(&cfg.Embedder.BatchSize, env.EmbedBatchSize)
	if env.EmbeddingModel != nil || env.EmbeddingBaseURL != nil || env.EmbeddingKeyEnv != nil {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		setString(&cfg.Embedder.OpenAI.Model, env.EmbeddingModel)
		setString(&cfg.Embedder.OpenAI.BaseURL, env.EmbeddingBaseURL)
		setString(&cfg.Embedder.OpenAI.APIKeyEnv, env.EmbeddingKeyEnv)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragpipe", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		DocumentsPath: "./data",
		Chunker:       ChunkerConfig{Type: ChunkerRecursive, Size: 1000, Overlap: 200, SentencesPerChunk: 5, OverlapSentences: 1},
		Embedder:      EmbedderConfig{Type: EmbedderHashing, Dimensions: 384, BatchSize: 32},
		VectorStore:   VectorStoreConfig{Type: StoreSQLite, Path: "./vector_store"},
		Retrieval:     RetrievalConfig{K: 5},
		LLM: LLMConfig{
			Provider:          ProviderGroq,
			BaseURL:           "https://api.groq.com/openai/v1",
			Model:             "llama-3.1-8b-instant",
			Temperature:       0.7,
			MaxTokens:         1024,
			MaxRetries:        3,
			RequestsPerMinute: 30,
			TimeoutSecs:       60,
		},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == EmbedderOpenAI {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.VectorStore.Type == StoreQdrant && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "ragpipe"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
}
