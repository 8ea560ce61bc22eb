package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"docsift/internal/cache"
)

var (
	ErrMissingCredential = errors.New("missing API credential for extraction provider")
	ErrInvalidResponse   = errors.New("model returned an invalid response")
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type FieldRequest struct {
	Id     string `json:"id"`
	Prompt string `json:"prompt"`
}

// Input is the subject content sent to the model. Data with a MimeType is sent
// as a file to providers that accept one; Text is used when set.
type Input struct {
	Name     string
	MimeType string
	Data     []byte
	Text     string
}

type Output struct {
	Values   map[string]json.RawMessage
	Metadata json.RawMessage
	// Models tags individual fields with the model that produced them. Fields
	// without a tag belong to the requested model.
	Models map[string]string
	Usage  cache.TokenUsage
}

// Result converts the output into the bundle the cache store writes.
func (o *Output) Result() *cache.Result {
	usage := o.Usage
	return &cache.Result{
		Metadata: o.Metadata,
		Models:   o.Models,
		Fields:   o.Values,
		Usage:    &usage,
	}
}

// Extractor is the external AI call. It is not retried.
type Extractor interface {
	Extract(ctx context.Context, in Input, fields []FieldRequest, model string) (*Output, error)
}

type Config struct {
	Provider      string
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// New builds the extractor for cfg.Provider. A provider without its API key
// yields ErrMissingCredential.
func New(ctx context.Context, cfg Config) (Extractor, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini, "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingCredential)
		}
		gemini, err := NewGeminiExtractor(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return gemini, nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrMissingCredential)
		}
		return NewOpenAIExtractor(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown extraction provider %q", cfg.Provider)
	}
}
