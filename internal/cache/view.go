package cache

import (
	"bytes"
	"encoding/json"

	"docsift/internal/database"

	"github.com/google/uuid"
)

type Usage struct {
	PromptTokens   int64   `json:"promptTokens"`
	ResponseTokens int64   `json:"responseTokens"`
	EstimatedCost  float64 `json:"estimatedCost"`
}

func (u *Usage) Add(modelId string, promptTokens, responseTokens int64) {
	u.PromptTokens += promptTokens
	u.ResponseTokens += responseTokens
	u.EstimatedCost += EstimateCost(modelId, promptTokens, responseTokens)
}

func (u Usage) TotalTokens() int64 {
	return u.PromptTokens + u.ResponseTokens
}

// SubjectView is the merged analysis of one subject: the active value of each
// field, which model it came from, every cached model value, and the token
// usage summed over all of the subject's cache rows.
type SubjectView struct {
	SubjectId uuid.UUID
	Metadata  json.RawMessage
	Values    map[string]json.RawMessage
	Models    map[string]string
	Responses map[string]map[string]json.RawMessage
	Usage     Usage
}

func newSubjectView(id uuid.UUID) *SubjectView {
	return &SubjectView{
		SubjectId: id,
		Values:    make(map[string]json.RawMessage),
		Models:    make(map[string]string),
		Responses: make(map[string]map[string]json.RawMessage),
	}
}

// apply folds one cache row into the view. Rows must be applied in write
// order so the last write of each field becomes its active value.
func (v *SubjectView) apply(entry database.AnalysisCacheEntry) {
	v.Usage.Add(entry.ModelId, entry.PromptTokens, entry.ResponseTokens)

	content := json.RawMessage(entry.Content)
	if len(content) == 0 {
		content = json.RawMessage("null")
	}

	if entry.FieldId == database.MetadataField {
		v.Metadata = content
		return
	}

	byModel, ok := v.Responses[entry.FieldId]
	if !ok {
		byModel = make(map[string]json.RawMessage)
		v.Responses[entry.FieldId] = byModel
	}
	byModel[entry.ModelId] = content
	v.Values[entry.FieldId] = content
	v.Models[entry.FieldId] = entry.ModelId
}

func (v *SubjectView) Value(fieldId string) (json.RawMessage, bool) {
	if fieldId == database.MetadataField {
		return v.Metadata, v.Metadata != nil
	}
	value, ok := v.Values[fieldId]
	return value, ok
}

// ValueString renders a field's active value for display: strings as-is,
// null as "", anything else as compact JSON.
func (v *SubjectView) ValueString(fieldId string) (string, bool) {
	value, ok := v.Value(fieldId)
	if !ok {
		return "", false
	}
	return RenderValue(value), true
}

func (v *SubjectView) HasAnalysis() bool {
	return len(v.Values) > 0 || v.Metadata != nil
}

func (v SubjectView) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Values)+4)
	for field, value := range v.Values {
		out[field] = value
	}
	if v.Metadata != nil {
		out[keyMetadata] = v.Metadata
	}
	out[keyModels] = v.Models
	out[keyResponses] = v.Responses
	out[keyUsage] = v.Usage
	return json.Marshal(out)
}

func RenderValue(value json.RawMessage) string {
	if isNull(value) {
		return ""
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return string(value)
	}
	return buf.String()
}
