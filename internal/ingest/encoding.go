package ingest

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Sequences that UTF-8 text turns into when its bytes are read as
// Windows-1252 or Latin-1.
var mojibakeMarkers = []string{
	"Ã¡", "Ã¢", "Ã£", "Ã¤", "Ã¥", "Ã¦", "Ã§", "Ã\u00a0",
	"Ã©", "Ã¨", "Ãª", "Ã«", "Ã­", "Ã¬", "Ã®", "Ã¯",
	"Ã±", "Ã³", "Ã²", "Ã´", "Ãµ", "Ã¶", "Ã¸", "Ãº",
	"Ã¹", "Ã»", "Ã¼", "Ã½", "Ã¿", "ÃŸ", "Ã‰", "Ã–",
	"Ãœ", "Ã„", "Ã‡", "Ã‘",
	"â€™", "â€˜", "â€œ", "â€\u009d", "â€", "â€”", "â€“", "â€¦", "â€¢",
	"Â°", "Â·", "Â´", "Â©", "Â®", "Â±", "Â\u00a0",
}

func hasMojibake(s string) bool {
	for _, marker := range mojibakeMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// RepairMojibake undoes UTF-8 text that was decoded as Windows-1252 or
// Latin-1 and saved again as UTF-8. The text is re-encoded to single bytes
// and read back as UTF-8; the repair is used only if that yields valid UTF-8
// free of markers. It reports whether s was changed.
func RepairMojibake(s string) (string, bool) {
	if !hasMojibake(s) {
		return s, false
	}

	for _, enc := range []encoding.Encoding{charmap.Windows1252, charmap.ISO8859_1} {
		raw, err := enc.NewEncoder().String(s)
		if err != nil {
			continue
		}
		if !utf8.ValidString(raw) || hasMojibake(raw) {
			continue
		}
		return raw, true
	}

	return s, false
}

// decodeText turns file bytes into a string: the UTF-8 BOM is dropped, input
// that is not valid UTF-8 is read as Windows-1252, and valid UTF-8 gets a
// best-effort mojibake repair.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)

	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err == nil {
			return string(decoded)
		}
		return strings.ToValidUTF8(string(data), "�")
	}

	text := string(data)
	if repaired, ok := RepairMojibake(text); ok {
		return repaired
	}
	return text
}
