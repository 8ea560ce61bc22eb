package database

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// OrderedFields is a column name -> raw value mapping that keeps the column
// order it was built with. It serializes to a JSON object in that order.
type OrderedFields struct {
	keys   []string
	values map[string]string
}

// NewOrderedFields pairs headers with cells. Cells missing relative to the
// header row become "" so every header is always present as a key.
func NewOrderedFields(headers []string, cells []string) OrderedFields {
	f := OrderedFields{keys: make([]string, 0, len(headers)), values: make(map[string]string, len(headers))}
	for i, h := range headers {
		v := ""
		if i < len(cells) {
			v = cells[i]
		}
		f.Set(h, v)
	}
	return f
}

func (f *OrderedFields) Set(key, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns the value and whether the key is present at all, since a
// present empty string is distinct from an absent column.
func (f OrderedFields) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

func (f OrderedFields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

func (f OrderedFields) Len() int {
	return len(f.keys)
}

func (f OrderedFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Keep &, < and > literal so substring search over the stored payload works.
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(k); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
		buf.WriteByte(':')
		if err := enc.Encode(f.values[k]); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *OrderedFields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = OrderedFields{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object for row fields, got %v", tok)
	}

	out := OrderedFields{values: make(map[string]string)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string key in row fields, got %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("invalid value for column %q: %w", key, err)
		}
		out.Set(key, rawToString(raw))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = out
	return nil
}

// rawToString flattens non-string JSON values (numbers, booleans, nested
// values written by older clients) into their literal text.
func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ""
	}
	return string(raw)
}

func (f OrderedFields) Value() (driver.Value, error) {
	data, err := f.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (f *OrderedFields) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*f = OrderedFields{}
		return nil
	case []byte:
		return f.UnmarshalJSON(v)
	case string:
		return f.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported type %T for row fields", value)
	}
}
