package ingest

import (
	"io"
	"strings"
)

var quoteEscaper = strings.NewReplacer(`"`, `""`)

// WriteQuotedRecord writes one CSV line with every field wrapped in double
// quotes and embedded quotes doubled, whether or not the field needs it.
func WriteQuotedRecord(w io.Writer, fields []string) error {
	var sb strings.Builder
	for i, field := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		quoteEscaper.WriteString(&sb, field)
		sb.WriteByte('"')
	}
	sb.WriteByte('\n')

	_, err := io.WriteString(w, sb.String())
	return err
}
