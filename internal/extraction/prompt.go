package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"docsift/internal/database"
)

const metadataInstructions = `an object with the keys "title", "authors" (array of strings), "year" (number), "doi" and "articleType"`

// BuildPrompt asks for one JSON object with a key per field. When
// includeMetadata is set the object also carries bibliographic metadata.
func BuildPrompt(fields []FieldRequest, includeMetadata bool) string {
	var sb strings.Builder
	sb.WriteString("Extract the following information from the provided content.\n")
	sb.WriteString("Respond with a single JSON object and nothing else. Use exactly these keys:\n")

	for _, f := range fields {
		if f.Id == database.MetadataField {
			continue
		}
		prompt := strings.TrimSpace(f.Prompt)
		if prompt == "" {
			prompt = "the " + f.Id
		}
		key, _ := json.Marshal(f.Id)
		fmt.Fprintf(&sb, "- %s: %s\n", key, prompt)
	}
	if includeMetadata {
		fmt.Fprintf(&sb, "- %q: %s\n", database.MetadataField, metadataInstructions)
	}

	sb.WriteString("Use null for anything the content does not contain.")
	return sb.String()
}

func wantsMetadata(fields []FieldRequest) bool {
	for _, f := range fields {
		if f.Id == database.MetadataField {
			return true
		}
	}
	return false
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

var reservedKeys = map[string]bool{"_models": true, "_responses": true, "_usage": true}

// ParseValues reads the model's JSON object reply, tolerating a surrounding
// markdown code fence or prose. Reserved keys are dropped and "metadata" is
// returned separately.
func ParseValues(text string) (map[string]json.RawMessage, json.RawMessage, error) {
	body := stripCodeFence(text)
	if start, end := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidResponse)
	}

	var metadata json.RawMessage
	values := make(map[string]json.RawMessage, len(raw))
	for key, value := range raw {
		switch {
		case reservedKeys[key]:
		case key == database.MetadataField:
			if trimmed := bytes.TrimSpace(value); !bytes.Equal(trimmed, []byte("null")) {
				metadata = value
			}
		default:
			values[key] = value
		}
	}
	return values, metadata, nil
}

// only keeps the requested fields so an over-eager model cannot add columns.
func only(values map[string]json.RawMessage, fields []FieldRequest) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(fields))
	for _, f := range fields {
		if v, ok := values[f.Id]; ok {
			out[f.Id] = v
		}
	}
	return out
}

func buildOutput(text string, fields []FieldRequest, usage func() (int64, int64)) (*Output, error) {
	values, metadata, err := ParseValues(text)
	if err != nil {
		return nil, err
	}
	out := &Output{Values: only(values, fields)}
	if wantsMetadata(fields) {
		out.Metadata = metadata
	}
	out.Usage.PromptTokens, out.Usage.ResponseTokens = usage()
	return out, nil
}
