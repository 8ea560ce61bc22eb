package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	root := t.TempDir()
	t.Setenv("ROOT", root)

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, "gemini", cfg.ExtractionProvider)
	assert.Equal(t, "gemini-2.5-flash", cfg.DefaultModel)
	assert.Equal(t, 500, cfg.ExportChunkSize)
	assert.Equal(t, 4, cfg.AnalysisConcurrency)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, filepath.Join(root, "exports"), cfg.ExportDir)
	assert.Equal(t, filepath.Join(root, "db", "docsift.db"), cfg.DBPath())
	assert.Equal(t, filepath.Join(root, "storage"), cfg.StorageDir())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("ROOT", t.TempDir())
	t.Setenv("EXTRACTION_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:5173,app://docsift")
	t.Setenv("EXPORT_DIR", "/tmp/exports")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.ExtractionProvider)
	assert.Equal(t, []string{"http://localhost:5173", "app://docsift"}, cfg.AllowedOrigins)
	assert.Equal(t, "/tmp/exports", cfg.ExportDir)

	ex := cfg.Extraction()
	assert.Equal(t, "openai", ex.Provider)
	assert.Equal(t, "sk-test", ex.OpenAIAPIKey)
	assert.Equal(t, "http://localhost:11434/v1", ex.OpenAIBaseURL)
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Setenv("EXTRACTION_PROVIDER", "claude")
	_, err := Parse()
	assert.Error(t, err)

	t.Setenv("EXTRACTION_PROVIDER", "gemini")
	t.Setenv("EXPORT_CHUNK_SIZE", "0")
	_, err = Parse()
	assert.Error(t, err)

	t.Setenv("EXPORT_CHUNK_SIZE", "abc")
	_, err = Parse()
	assert.Error(t, err)
}
