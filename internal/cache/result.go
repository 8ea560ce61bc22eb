package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"docsift/internal/database"
)

const (
	keyMetadata  = database.MetadataField
	keyModels    = "_models"
	keyResponses = "_responses"
	keyUsage     = "_usage"
)

type TokenUsage struct {
	PromptTokens   int64 `json:"promptTokens"`
	ResponseTokens int64 `json:"responseTokens"`
}

// Result is the bundle written by BulkUpsertResult: an optional metadata
// payload, per-field per-model values, and the token usage of the call that
// produced them.
type Result struct {
	Metadata json.RawMessage
	// Models names the model shown for each field after the write.
	Models map[string]string
	// Responses holds field -> model -> value. When nil, Fields is used.
	Responses map[string]map[string]json.RawMessage
	// Fields holds plain field -> value pairs, each tagged with Models[field]
	// or the default model.
	Fields map[string]json.RawMessage
	Usage  *TokenUsage
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid analysis result: %w", err)
	}

	out := Result{}
	for key, value := range raw {
		switch key {
		case keyMetadata:
			if !isNull(value) {
				out.Metadata = value
			}
		case keyModels:
			if err := json.Unmarshal(value, &out.Models); err != nil {
				return fmt.Errorf("invalid %s: %w", keyModels, err)
			}
		case keyResponses:
			if err := json.Unmarshal(value, &out.Responses); err != nil {
				return fmt.Errorf("invalid %s: %w", keyResponses, err)
			}
		case keyUsage:
			var usage TokenUsage
			if err := json.Unmarshal(value, &usage); err != nil {
				return fmt.Errorf("invalid %s: %w", keyUsage, err)
			}
			out.Usage = &usage
		default:
			if out.Fields == nil {
				out.Fields = make(map[string]json.RawMessage)
			}
			out.Fields[key] = value
		}
	}

	*r = out
	return nil
}

type pendingWrite struct {
	fieldId string
	modelId string
	content json.RawMessage
	active  bool
}

// writes lists the rows a result produces in the order they must be written:
// metadata first, then fields by name. Within a field the active model is
// written last so last-write-wins leaves it active.
func (r *Result) writes(defaultModel string) []pendingWrite {
	var out []pendingWrite
	if len(r.Metadata) > 0 {
		out = append(out, pendingWrite{fieldId: keyMetadata, modelId: database.MetadataModel, content: r.Metadata})
	}

	if r.Responses != nil {
		for _, field := range sortedKeys(r.Responses) {
			if field == keyMetadata {
				continue
			}
			byModel := r.Responses[field]
			active := r.Models[field]
			for _, model := range sortedKeys(byModel) {
				if model != active {
					out = append(out, pendingWrite{fieldId: field, modelId: model, content: byModel[model]})
				}
			}
			if value, ok := byModel[active]; ok {
				out = append(out, pendingWrite{fieldId: field, modelId: active, content: value, active: true})
			}
		}
		return out
	}

	for _, field := range sortedKeys(r.Fields) {
		model := r.Models[field]
		if model == "" {
			model = defaultModel
		}
		out = append(out, pendingWrite{fieldId: field, modelId: model, content: r.Fields[field], active: true})
	}
	return out
}

// chargeIndex picks the write that carries the call's token usage, so the
// tokens are priced at the rate of the model that consumed them: the first
// field written by model, else the first active field, else any field. The
// metadata row is charged only when no field was written.
func chargeIndex(writes []pendingWrite, model string) int {
	active, first := -1, -1
	for i, w := range writes {
		if w.fieldId == keyMetadata {
			continue
		}
		if w.modelId == model {
			return i
		}
		if w.active && active < 0 {
			active = i
		}
		if first < 0 {
			first = i
		}
	}
	switch {
	case active >= 0:
		return active
	case first >= 0:
		return first
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
