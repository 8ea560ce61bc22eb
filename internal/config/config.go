package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"

	"docsift/internal/extraction"
)

type Config struct {
	Root                string `env:"ROOT" envDefault:"./docsift"`
	Port                int    `env:"PORT" envDefault:"3001"`
	GeminiAPIKey        string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey        string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `env:"OPENAI_BASE_URL"`
	ExtractionProvider  string `env:"EXTRACTION_PROVIDER" envDefault:"gemini"`
	DefaultModel        string `env:"DEFAULT_MODEL" envDefault:"gemini-2.5-flash"`
	ExportChunkSize     int    `env:"EXPORT_CHUNK_SIZE" envDefault:"500"`
	AnalysisConcurrency int    `env:"ANALYSIS_CONCURRENCY" envDefault:"4"`
	// ExportDir defaults to <root>/exports.
	ExportDir      string   `env:"EXPORT_DIR"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Parse reads the configuration from the environment and validates it.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.ExtractionProvider = strings.ToLower(strings.TrimSpace(c.ExtractionProvider))
	switch c.ExtractionProvider {
	case extraction.ProviderGemini, extraction.ProviderOpenAI:
	default:
		return fmt.Errorf("EXTRACTION_PROVIDER must be %q or %q, got %q", extraction.ProviderGemini, extraction.ProviderOpenAI, c.ExtractionProvider)
	}
	if c.ExportChunkSize <= 0 {
		return fmt.Errorf("EXPORT_CHUNK_SIZE must be positive, got %d", c.ExportChunkSize)
	}
	if c.AnalysisConcurrency <= 0 {
		return fmt.Errorf("ANALYSIS_CONCURRENCY must be positive, got %d", c.AnalysisConcurrency)
	}
	if c.ExportDir == "" {
		c.ExportDir = filepath.Join(c.Root, "exports")
	}
	return nil
}

func (c Config) DBPath() string {
	return filepath.Join(c.Root, "db", "docsift.db")
}

func (c Config) StorageDir() string {
	return filepath.Join(c.Root, "storage")
}

func (c Config) LogPath() string {
	return filepath.Join(c.Root, "backend.log")
}

func (c Config) Extraction() extraction.Config {
	return extraction.Config{
		Provider:      c.ExtractionProvider,
		GeminiAPIKey:  c.GeminiAPIKey,
		OpenAIAPIKey:  c.OpenAIAPIKey,
		OpenAIBaseURL: c.OpenAIBaseURL,
	}
}
