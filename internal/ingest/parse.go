package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"docsift/internal/database"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported table format")
	ErrEmptyTable        = errors.New("table has no header row")
)

// Table is a parsed tabular source. Every row has exactly len(Headers) cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// SupportedExtension reports whether ParseTable can read files named like name.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".json":
		return true
	}
	return false
}

// ParseTable parses a CSV, TSV or JSON (array of flat objects) source. The
// format is picked from the extension of name.
func ParseTable(name string, data []byte) (*Table, error) {
	text := decodeText(data)

	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv":
		return parseDelimited(text, ',')
	case ".tsv":
		return parseDelimited(text, '\t')
	case ".json":
		return parseJSON(text)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseDelimited(text string, comma rune) (*Table, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var table *Table
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing table: %w", err)
		}
		if blankRecord(record) {
			continue
		}

		if table == nil {
			table = &Table{Headers: normalizeHeaders(record)}
			continue
		}

		row := make([]string, len(table.Headers))
		copy(row, record)
		table.Rows = append(table.Rows, row)
	}

	if table == nil {
		return nil, ErrEmptyTable
	}
	return table, nil
}

func parseJSON(text string) (*Table, error) {
	var objects []database.OrderedFields
	if err := json.Unmarshal([]byte(text), &objects); err != nil {
		return nil, fmt.Errorf("error parsing table: expected an array of objects: %w", err)
	}

	var raw []string
	seen := make(map[string]bool)
	for _, obj := range objects {
		for _, key := range obj.Keys() {
			if !seen[key] {
				seen[key] = true
				raw = append(raw, key)
			}
		}
	}
	if len(raw) == 0 {
		return nil, ErrEmptyTable
	}

	table := &Table{Headers: normalizeHeaders(raw)}
	for _, obj := range objects {
		row := make([]string, len(raw))
		for i, key := range raw {
			row[i], _ = obj.Get(key)
		}
		if blankRecord(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// normalizeHeaders trims header names, names blank ones "Column N" and
// suffixes repeats with " (2)", " (3)", ...
func normalizeHeaders(record []string) []string {
	headers := make([]string, len(record))
	used := make(map[string]bool, len(record))

	for i, h := range record {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}

		name := h
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s (%d)", h, n)
		}
		used[name] = true
		headers[i] = name
	}
	return headers
}
