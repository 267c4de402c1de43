package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/domain"
)

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GROQ_API_KEY", "GROQ_BASE_URL", "VECTOR_STORE_PATH", "VECTOR_STORE_TYPE",
		"QDRANT_URL", "QDRANT_API_KEY", "QDRANT_COLLECTION", "DOCUMENTS_PATH",
		"CHUNK_SIZE", "CHUNK_OVERLAP", "CHUNK_STRATEGY", "K_RETRIEVED_DOCS",
		"SCORE_THRESHOLD", "LLM_PROVIDER", "LLM_MODEL", "LLM_TEMPERATURE",
		"LLM_MAX_TOKENS", "LLM_MAX_RETRIES", "LLM_REQUESTS_PER_MINUTE",
		"LLM_TIMEOUT_SECS", "SYSTEM_PROMPT", "EMBEDDER_TYPE", "EMBEDDING_DIMENSIONS",
		"EMBEDDING_MODEL", "EMBEDDING_BASE_URL", "EMBEDDING_API_KEY_ENV", "EMBED_BATCH_SIZE",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Chunker.Size)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.K)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, StoreSQLite, cfg.VectorStore.Type)
	assert.Equal(t, "./data", cfg.DocumentsPath)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
chunker:
  size: 500
  overlap: 50
retrieval:
  k: 3
llm:
  provider: extractive
  temperature: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Chunker.Size)
	assert.Equal(t, 50, cfg.Chunker.Overlap)
	assert.Equal(t, ChunkerRecursive, cfg.Chunker.Type)
	assert.Equal(t, 3, cfg.Retrieval.K)
	assert.Equal(t, ProviderExtractive, cfg.LLM.Provider)
	assert.Zero(t, cfg.LLM.Temperature)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, "chunker:\n  size: 500\n  overlap: 50\n")
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("K_RETRIEVED_DOCS", "7")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("GROQ_API_KEY", "gsk_secret")
	t.Setenv("QDRANT_URL", "http://localhost:6333")
	t.Setenv("VECTOR_STORE_TYPE", "qdrant")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Chunker.Size)
	assert.Equal(t, 50, cfg.Chunker.Overlap)
	assert.Equal(t, 7, cfg.Retrieval.K)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, "gsk_secret", cfg.LLM.APIKey)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "ragpipe", cfg.VectorStore.Qdrant.Collection)
}

func TestLoad_InvalidNumberNamesVariable(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHUNK_SIZE", "lots")

	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "CHUNK_SIZE")
}

func TestLoad_MalformedYAML(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, "chunker: [unclosed")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_NamesOffendingSetting(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		setting string
	}{
		{"overlap equals size", func(c *AppConfig) { c.Chunker.Overlap = c.Chunker.Size }, "CHUNK_OVERLAP"},
		{"negative overlap", func(c *AppConfig) { c.Chunker.Overlap = -1 }, "CHUNK_OVERLAP"},
		{"zero size", func(c *AppConfig) { c.Chunker.Size = 0 }, "CHUNK_SIZE"},
		{"unknown chunker", func(c *AppConfig) { c.Chunker.Type = "tokens" }, "CHUNK_STRATEGY"},
		{"zero k", func(c *AppConfig) { c.Retrieval.K = 0 }, "K_RETRIEVED_DOCS"},
		{"threshold above one", func(c *AppConfig) { c.Retrieval.ScoreThreshold = 1.5 }, "SCORE_THRESHOLD"},
		{"temperature too high", func(c *AppConfig) { c.LLM.Temperature = 3 }, "LLM_TEMPERATURE"},
		{"unknown provider", func(c *AppConfig) { c.LLM.Provider = "bard" }, "LLM_PROVIDER"},
		{"unknown store", func(c *AppConfig) { c.VectorStore.Type = "faiss" }, "VECTOR_STORE_TYPE"},
		{"qdrant without url", func(c *AppConfig) { c.VectorStore.Type = StoreQdrant }, "QDRANT_URL"},
		{"empty store path", func(c *AppConfig) { c.VectorStore.Path = " " }, "VECTOR_STORE_PATH"},
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "bert" }, "EMBEDDER_TYPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var ce *domain.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.setting, ce.Setting)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, defaultConfig().Validate())
}

func TestRequireAPIKey(t *testing.T) {
	cfg := defaultConfig()
	err := cfg.RequireAPIKey()
	require.ErrorIs(t, err, domain.ErrMissingAPIKey)
	assert.Contains(t, err.Error(), "GROQ_API_KEY")

	cfg.LLM.APIKey = "gsk_123"
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, path, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".config", "ragpipe", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, 1000, cfg.Chunker.Size)
}

func TestSave_OmitsAPIKey(t *testing.T) {
	cfg := defaultConfig()
	cfg.LLM.APIKey = "gsk_topsecret"
	path := filepath.Join(t.TempDir(), "out", "config.yaml")

	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "gsk_topsecret")
	assert.Contains(t, string(data), "chunker:")
}

func TestDisplay_MasksKey(t *testing.T) {
	cfg := defaultConfig()
	cfg.LLM.APIKey = "gsk_abcdefgh"
	var buf bytes.Buffer

	require.NoError(t, cfg.Display(&buf))

	out := buf.String()
	assert.Contains(t, out, "****efgh")
	assert.NotContains(t, out, "gsk_abcdefgh")
	assert.Contains(t, out, "Chunk size:")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "NOT SET", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****5678", MaskSecret("12345678"))
}

func TestLoad_MalformedDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BAD-KEY=1\n"), 0o644))
	t.Chdir(dir)

	_, err := Load(filepath.Join(dir, "none.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), ".env")
}

func TestLoad_DotEnvFillsUnsetVariables(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("K_RETRIEVED_DOCS=7\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load(filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.K)
}
