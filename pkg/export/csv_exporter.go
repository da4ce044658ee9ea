package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders sheets as CSV. The title, when set, is written on the
// first line followed by a blank line.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// ContentType is the MIME type of rendered files.
func (e *CSVExporter) ContentType() string {
	return "text/csv; charset=utf-8"
}

// Render produces CSV encoded bytes for the sheet.
func (e *CSVExporter) Render(sheet Sheet) ([]byte, error) {
	if err := sheet.validate(); err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	buf := &bytes.Buffer{}
	if sheet.Title != "" {
		buf.WriteString(sheet.Title)
		buf.WriteString("\n\n")
	}
	writer := csv.NewWriter(buf)
	if err := writer.Write(sheet.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	if err := writer.WriteAll(sheet.Rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}
