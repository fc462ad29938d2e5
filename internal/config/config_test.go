package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30, cfg.Search.TopK)
	assert.Equal(t, 5, cfg.Search.MaxPositions)
	assert.Equal(t, 500, cfg.Search.MaxQueryLength)
	assert.Equal(t, 60*time.Second, cfg.Search.PartyTimeout())
	assert.Equal(t, 10, cfg.Search.GuardrailMaxTokens)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Search.ResynthesizeAll)
	assert.Equal(t, DefaultTemperature, cfg.Generation.SamplingTemperature())
}

func TestLoadKeepsExplicitZeroTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generation:\n  temperature: 0\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Generation.Temperature)
	assert.Equal(t, 0.0, cfg.Generation.SamplingTemperature())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  driver: sqlite
  url: file.db
generation:
  provider: openai
  model: gpt-4o
  temperature: 0.1
search:
  top_k: 12
  resynthesize_all: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("DATABASE_URL", "other.db")
	t.Setenv("PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "other.db", cfg.Database.URL)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 12, cfg.Search.TopK)
	assert.True(t, cfg.Search.ResynthesizeAll)
	assert.Equal(t, "openai", cfg.Generation.Provider)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Generation.BaseURL)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Generation.APIKeyEnv)
	assert.InDelta(t, 0.1, cfg.Generation.SamplingTemperature(), 1e-9)

	// the guardrail follows the generation provider unless configured
	assert.Equal(t, "openai", cfg.Guardrail.Provider)
	assert.Equal(t, "gpt-4.1-mini", cfg.Guardrail.Model)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Field, "DATABASE_URL")

	cfg.Database.URL = "postgres://localhost/zweefhulp"
	assert.NoError(t, cfg.Validate())

	cfg.Database.Driver = "mysql"
	require.True(t, errors.As(cfg.Validate(), &cfgErr))
	assert.Equal(t, "database.driver", cfgErr.Field)
}

func TestValidateRequiresOpenAIKey(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "")
	cfg := Default()
	cfg.Database.URL = "x"
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.APIKeyEnv = "TEST_OPENAI_KEY"

	var cfgErr *ConfigError
	require.True(t, errors.As(cfg.Validate(), &cfgErr))
	assert.Equal(t, "TEST_OPENAI_KEY", cfgErr.Field)

	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	assert.NoError(t, cfg.Validate())
}

func TestValidateWriteTimeoutCoversSearch(t *testing.T) {
	cfg := Default()
	cfg.Database.URL = "x"
	require.NoError(t, cfg.Validate())

	cfg.Search.PartyTimeoutSecs = 170
	var cfgErr *ConfigError
	require.True(t, errors.As(cfg.Validate(), &cfgErr))
	assert.Equal(t, "server.write_timeout_secs", cfgErr.Field)

	cfg.Server.WriteTimeoutSecs = 200
	assert.NoError(t, cfg.Validate())
}

func TestOllamaHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")

	u, err := OllamaHost("")
	require.NoError(t, err)
	assert.Equal(t, "gpu-box:11434", u.Host)

	u, err = OllamaHost("http://localhost:9999")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9999", u.Host)

	_, err = OllamaHost("http://[::1")
	assert.Error(t, err)
}
