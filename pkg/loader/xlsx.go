package loader

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractXLSXText renders every sheet as a pipe-delimited table. Row and
// column structure matters for FMEA and HIRA worksheets, so cells are kept
// aligned per row rather than flattened.
func extractXLSXText(data []byte) (string, map[string]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	var out strings.Builder
	sheets := f.GetSheetList()
	rowCount := 0

	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(fmt.Sprintf("[sheet %s]\n", sheet))
		for _, row := range rows {
			out.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
		rowCount += len(rows)
	}

	if rowCount == 0 {
		return "", nil, fmt.Errorf("no data in %d sheets", len(sheets))
	}

	meta := map[string]string{
		"format": "xlsx",
		"sheets": strconv.Itoa(len(sheets)),
		"rows":   strconv.Itoa(rowCount),
	}
	return out.String(), meta, nil
}
