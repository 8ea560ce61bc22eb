package document_parsing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gen2brain/go-fitz"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// PDFToText extracts the text of every page, pages separated by a blank line.
func PDFToText(contents []byte) (string, error) {
	doc, err := fitz.NewFromMemory(contents)
	if err != nil {
		return "", fmt.Errorf("error opening pdf: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("error extracting text of page %d: %w", i+1, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	return blankLines.ReplaceAllString(strings.Join(pages, "\n\n"), "\n\n"), nil
}
