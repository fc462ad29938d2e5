// Package config loads application configuration from a YAML file,
// a .env file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/ollama/ollama/envconfig"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects and configures the backing store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres or sqlite
	URL    string `yaml:"url"`
	// VectorDims fixes the pgvector column width and enables the HNSW
	// index. Zero leaves the column untyped.
	VectorDims int `yaml:"vector_dims"`
}

// ProviderConfig configures a model provider endpoint.
type ProviderConfig struct {
	Provider    string `yaml:"provider"` // ollama or openai
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Timeout returns the configured request timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// OllamaHost parses host, or returns the OLLAMA_HOST default when it is
// empty.
func OllamaHost(host string) (*url.URL, error) {
	if host == "" {
		return envconfig.Host(), nil
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return u, nil
}

// APIKey resolves the API key from the configured environment variable.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// DefaultTemperature is the synthesis temperature when none is configured.
const DefaultTemperature = 0.2

// GenerationConfig configures the synthesis model.
type GenerationConfig struct {
	ProviderConfig `yaml:",inline"`
	// Temperature is a pointer so an explicit 0 survives defaulting.
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// SamplingTemperature returns the configured temperature or the default.
func (g GenerationConfig) SamplingTemperature() float64 {
	if g.Temperature == nil {
		return DefaultTemperature
	}
	return *g.Temperature
}

// RateLimitConfig throttles generation calls.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// SearchConfig tunes the retrieval and synthesis pipeline.
type SearchConfig struct {
	TopK               int  `yaml:"top_k"`
	MaxPositions       int  `yaml:"max_positions"`
	MaxQueryLength     int  `yaml:"max_query_length"`
	PartyTimeoutSecs   int  `yaml:"party_timeout_secs"`
	MaxConcurrent      int  `yaml:"max_concurrent"`
	ResynthesizeAll    bool `yaml:"resynthesize_all"`
	GuardrailMaxTokens int  `yaml:"guardrail_max_tokens"`
}

// PartyTimeout returns the budget of the per-party fan-out. Every party
// task of one search shares a deadline this far from the fan-out start.
func (s SearchConfig) PartyTimeout() time.Duration {
	return time.Duration(s.PartyTimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port             string `yaml:"port"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs"`
	IdleTimeoutSecs  int    `yaml:"idle_timeout_secs"`
	CORSAllowOrigin  string `yaml:"cors_allow_origin"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  ProviderConfig   `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Guardrail  ProviderConfig   `yaml:"guardrail"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Search     SearchConfig     `yaml:"search"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	ProgramDir string           `yaml:"program_dir"`
}

// ConfigError represents a missing or invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("config: missing required value %s", e.Field)
}

// Load reads the config file at path. A missing file yields defaults.
// Values from a .env file in the working directory and from the process
// environment override the file.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks required values.
func (c *AppConfig) Validate() error {
	if c.Database.URL == "" {
		return &ConfigError{Field: "database.url or DATABASE_URL"}
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return &ConfigError{Field: "database.driver", Reason: "must be postgres or sqlite"}
	}
	for name, p := range map[string]ProviderConfig{
		"embedding":  c.Embedding,
		"generation": c.Generation.ProviderConfig,
		"guardrail":  c.Guardrail,
	} {
		switch p.Provider {
		case "ollama":
		case "openai":
			if p.APIKey() == "" {
				return &ConfigError{Field: p.APIKeyEnv, Reason: "is required for " + name + " provider openai"}
			}
		default:
			return &ConfigError{Field: name + ".provider", Reason: "must be ollama or openai"}
		}
	}
	if c.Search.TopK <= 0 {
		return &ConfigError{Field: "search.top_k", Reason: "must be positive"}
	}
	if need := c.Guardrail.TimeoutSecs + c.Search.PartyTimeoutSecs; c.Server.WriteTimeoutSecs <= need {
		return &ConfigError{
			Field:  "server.write_timeout_secs",
			Reason: fmt.Sprintf("must exceed guardrail.timeout_secs + search.party_timeout_secs (%d)", need),
		}
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setString(&cfg.Generation.BaseURL, "GENERATION_BASE_URL")
	setString(&cfg.Generation.Model, "GENERATION_MODEL")
	setString(&cfg.Guardrail.Model, "GUARDRAIL_MODEL")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.CORSAllowOrigin, "CORS_ALLOW_ORIGIN")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.ProgramDir, "PROGRAM_DIR")
	if v := os.Getenv("PARTY_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.PartyTimeoutSecs = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	applyProviderDefaults(&cfg.Embedding, "nomic-embed-text", "text-embedding-3-small", 30)
	applyProviderDefaults(&cfg.Generation.ProviderConfig, "llama3.1", "gpt-4o", 120)
	if cfg.Guardrail.Provider == "" {
		cfg.Guardrail.Provider = cfg.Generation.Provider
		cfg.Guardrail.BaseURL = cfg.Generation.BaseURL
		cfg.Guardrail.APIKeyEnv = cfg.Generation.APIKeyEnv
	}
	applyProviderDefaults(&cfg.Guardrail, "llama3.1", "gpt-4.1-mini", 15)
	if cfg.Generation.Temperature == nil {
		t := DefaultTemperature
		cfg.Generation.Temperature = &t
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 2048
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 5
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 10
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 30
	}
	if cfg.Search.MaxPositions == 0 {
		cfg.Search.MaxPositions = 5
	}
	if cfg.Search.MaxQueryLength == 0 {
		cfg.Search.MaxQueryLength = 500
	}
	if cfg.Search.PartyTimeoutSecs == 0 {
		cfg.Search.PartyTimeoutSecs = 60
	}
	if cfg.Search.MaxConcurrent == 0 {
		cfg.Search.MaxConcurrent = 8
	}
	if cfg.Search.GuardrailMaxTokens == 0 {
		cfg.Search.GuardrailMaxTokens = 10
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.ReadTimeoutSecs == 0 {
		cfg.Server.ReadTimeoutSecs = 30
	}
	if cfg.Server.WriteTimeoutSecs == 0 {
		// Covers the guardrail call plus the fan-out deadline.
		cfg.Server.WriteTimeoutSecs = 180
	}
	if cfg.Server.IdleTimeoutSecs == 0 {
		cfg.Server.IdleTimeoutSecs = 60
	}
	if cfg.Server.CORSAllowOrigin == "" {
		cfg.Server.CORSAllowOrigin = "*"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.ProgramDir == "" {
		cfg.ProgramDir = "programs"
	}
}

func applyProviderDefaults(p *ProviderConfig, ollamaModel, openaiModel string, timeoutSecs int) {
	if p.Provider == "" {
		p.Provider = "ollama"
	}
	if p.TimeoutSecs == 0 {
		p.TimeoutSecs = timeoutSecs
	}
	switch p.Provider {
	case "openai":
		if p.BaseURL == "" {
			p.BaseURL = "https://api.openai.com/v1"
		}
		if p.APIKeyEnv == "" {
			p.APIKeyEnv = "OPENAI_API_KEY"
		}
		if p.Model == "" {
			p.Model = openaiModel
		}
	default:
		if p.Model == "" {
			p.Model = ollamaModel
		}
	}
}
