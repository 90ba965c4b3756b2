// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet is the first worksheet of an uploaded workbook.
type Sheet struct {
	Headers []string
	Rows    []SheetRow
}

// SheetRow is one data row keyed by raw header text. Number is the
// spreadsheet row, counting the header row as 1.
type SheetRow struct {
	Number int
	Cells  map[string]any
}

// ReadWorkbook decodes the first worksheet of an xlsx document. Cell values
// arrive as formatted strings; empty cells become nil, mirroring how the
// rows are staged as JSON. Rows whose cells are all empty are dropped, but
// row numbering still follows the sheet.
func ReadWorkbook(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("failed to read excel: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read excel: %w", err)
	}
	if len(rows) == 0 {
		return &Sheet{}, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	sheet := &Sheet{Headers: headers}
	for i, raw := range rows[1:] {
		cells := make(map[string]any, len(headers))
		empty := true
		for j, h := range headers {
			if h == "" {
				continue
			}
			var val string
			if j < len(raw) {
				val = raw[j]
			}
			if strings.TrimSpace(val) == "" {
				cells[h] = nil
				continue
			}
			cells[h] = val
			empty = false
		}
		if empty {
			continue
		}
		sheet.Rows = append(sheet.Rows, SheetRow{Number: i + 2, Cells: cells})
	}
	return sheet, nil
}
