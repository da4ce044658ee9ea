package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth  = 277.0 // A4 landscape minus margins
	firstCol   = 30.0
	rowHeight  = 12.0
	headHeight = 8.0
)

// PDFExporter renders sheets as a single landscape table, one row per period.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType is the MIME type of rendered files.
func (e *PDFExporter) ContentType() string {
	return "application/pdf"
}

// Render creates the PDF document.
func (e *PDFExporter) Render(sheet Sheet) ([]byte, error) {
	if err := sheet.validate(); err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if sheet.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(sheet.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	widths := columnWidths(len(sheet.Headers))
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, header := range sheet.Headers {
		pdf.CellFormat(widths[i], headHeight, tr(header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range sheet.Rows {
		for i, cell := range row {
			align := "C"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(widths[i], rowHeight, tr(fit(pdf, cell, widths[i])), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(n int) []float64 {
	widths := make([]float64, n)
	if n == 1 {
		widths[0] = pageWidth
		return widths
	}
	widths[0] = firstCol
	rest := (pageWidth - firstCol) / float64(n-1)
	for i := 1; i < n; i++ {
		widths[i] = rest
	}
	return widths
}

// fit truncates text that would overflow its cell.
func fit(pdf *gofpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width-2 {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width-2 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
