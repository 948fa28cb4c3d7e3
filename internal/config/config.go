// Package config loads DriverForge configuration from
// .driverforge/config.yaml with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all DriverForge configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM completion client
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Pipeline orchestration
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Persistent state store
	Store StoreConfig `yaml:"store"`

	// Remote filesystem API (save operation)
	RemoteFS RemoteFSConfig `yaml:"remote_fs"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the completion client.
type LLMConfig struct {
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	// Base delay for exponential backoff between retries
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "ollama" or "genai"
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
}

// PipelineConfig configures the generation/improvement loop.
type PipelineConfig struct {
	// Hard cap on improvement iterations in ValidateAndImprove
	MaxImproveIterations int `yaml:"max_improve_iterations"`
	// Number of RAG examples pulled into generation prompts
	RAGExamples int `yaml:"rag_examples"`
}

// StoreConfig configures the SQLite state store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// RemoteFSConfig configures the remote filesystem client.
type RemoteFSConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// LoggingConfig configures logging. Mirrored by the logging package.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "driverforge",
		Version: "0.3.0",
		LLM: LLMConfig{
			Model:          "gemini-3-flash-preview",
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			Timeout:        5 * time.Minute,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		Pipeline: PipelineConfig{
			MaxImproveIterations: 3,
			RAGExamples:          3,
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".driverforge", "state.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns the config file path inside the workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, ".driverforge", "config.yaml")
}

// Load reads config from the workspace, applies defaults for missing
// fields, then applies environment overrides. A missing file is not an
// error; defaults are used.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables win over file values.
// Secrets in particular are expected to arrive via the environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		if cfg.Embedding.GenAIAPIKey == "" {
			cfg.Embedding.GenAIAPIKey = v
		}
	}
	if v := os.Getenv("DRIVERFORGE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("DRIVERFORGE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("DRIVERFORGE_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("DRIVERFORGE_DB_PATH"); v != "" {
		cfg.Store.DatabasePath = v
	}
	if v := os.Getenv("DRIVERFORGE_REMOTE_FS_URL"); v != "" {
		cfg.RemoteFS.BaseURL = v
	}
	if v := os.Getenv("DRIVERFORGE_REMOTE_FS_TOKEN"); v != "" {
		cfg.RemoteFS.Token = v
	}
	if v := os.Getenv("DRIVERFORGE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.MaxImproveIterations = n
		}
	}
	if v := os.Getenv("DRIVERFORGE_DEBUG"); v == "1" || v == "true" {
		cfg.Logging.DebugMode = true
	}
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	if c.Pipeline.MaxImproveIterations <= 0 {
		return fmt.Errorf("pipeline.max_improve_iterations must be positive, got %d", c.Pipeline.MaxImproveIterations)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative, got %d", c.LLM.MaxRetries)
	}
	switch c.Embedding.Provider {
	case "ollama", "genai":
	default:
		return fmt.Errorf("embedding.provider must be 'ollama' or 'genai', got %q", c.Embedding.Provider)
	}
	return nil
}

// Save writes the config back to the workspace, creating the
// .driverforge directory if needed.
func (c *Config) Save(workspace string) error {
	dir := filepath.Dir(Path(workspace))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(Path(workspace), data, 0644)
}
