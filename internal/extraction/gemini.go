package extraction

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// GeminiExtractor sends documents to Gemini as inline file parts, so PDFs are
// read by the model directly.
type GeminiExtractor struct {
	client *genai.Client
}

var _ Extractor = (*GeminiExtractor)(nil)

func NewGeminiExtractor(ctx context.Context, apiKey string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiExtractor{client: client}, nil
}

func (g *GeminiExtractor) Extract(ctx context.Context, in Input, fields []FieldRequest, model string) (*Output, error) {
	var parts []*genai.Part
	switch {
	case in.Text != "":
		parts = append(parts, genai.NewPartFromText(in.Text))
	case len(in.Data) > 0 && in.MimeType != "":
		parts = append(parts, genai.NewPartFromBytes(in.Data, in.MimeType))
	default:
		return nil, fmt.Errorf("no content to analyze for %s", in.Name)
	}
	parts = append(parts, genai.NewPartFromText(BuildPrompt(fields, wantsMetadata(fields))))

	resp, err := g.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		slog.Error("gemini generate content failed", "model", model, "name", in.Name, "error", err)
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}

	return buildOutput(resp.Text(), fields, func() (int64, int64) {
		if resp.UsageMetadata == nil {
			return 0, 0
		}
		return int64(resp.UsageMetadata.PromptTokenCount), int64(resp.UsageMetadata.CandidatesTokenCount)
	})
}
