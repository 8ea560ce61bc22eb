package document_parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPDFToTextRejectsInvalidInput(t *testing.T) {
	_, err := PDFToText([]byte("definitely not a pdf"))
	assert.Error(t, err)
}
