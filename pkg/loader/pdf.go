package loader

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDFText pulls plain text out of every page. Pages that fail text
// extraction are skipped; the document only fails when nothing at all could
// be read.
func extractPDFText(data []byte) (string, map[string]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("opening pdf: %w", err)
	}

	totalPages := reader.NumPage()
	var out strings.Builder
	extracted := 0

	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(fmt.Sprintf("[page %d]\n%s", i, text))
		extracted++
	}

	if extracted == 0 {
		return "", nil, fmt.Errorf("no extractable text in %d pages", totalPages)
	}

	meta := map[string]string{
		"format": "pdf",
		"pages":  strconv.Itoa(totalPages),
	}
	return out.String(), meta, nil
}
