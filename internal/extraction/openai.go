package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"docsift/internal/document_parsing"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIExtractor talks to any OpenAI-compatible chat completions endpoint.
// It is text only: PDFs are converted to text before the call.
type OpenAIExtractor struct {
	client openai.Client
}

var _ Extractor = (*OpenAIExtractor)(nil)

func NewOpenAIExtractor(apiKey, baseURL string) *OpenAIExtractor {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIExtractor{client: openai.NewClient(opts...)}
}

func inputText(in Input) (string, error) {
	if in.Text != "" {
		return in.Text, nil
	}
	if in.MimeType == "application/pdf" {
		return document_parsing.PDFToText(in.Data)
	}
	if utf8.Valid(in.Data) {
		return string(in.Data), nil
	}
	return "", fmt.Errorf("unsupported content type %q for text extraction", in.MimeType)
}

func (o *OpenAIExtractor) Extract(ctx context.Context, in Input, fields []FieldRequest, model string) (*Output, error) {
	text, err := inputText(in)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", in.Name, err)
	}

	res, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(BuildPrompt(fields, wantsMetadata(fields))),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		slog.Error("openai error: chat completions failed", "model", model, "name", in.Name, "error", err)
		return nil, fmt.Errorf("openai generation failed: %w", err)
	}
	if len(res.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}

	return buildOutput(res.Choices[0].Message.Content, fields, func() (int64, int64) {
		return res.Usage.PromptTokens, res.Usage.CompletionTokens
	})
}
