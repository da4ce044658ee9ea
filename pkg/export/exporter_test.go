package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSheet() Sheet {
	return Sheet{
		Title:   "Year 10 - Section A Timetable",
		Headers: []string{"Time", "Monday", "Tuesday"},
		Rows: [][]string{
			{"08:00-09:00", "Mathematics (Budi)", "-"},
			{"09:00-10:00", "-", "Art, Music (TBA)"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleSheet())
	require.NoError(t, err)

	want := strings.Join([]string{
		"Year 10 - Section A Timetable",
		"",
		"Time,Monday,Tuesday",
		"08:00-09:00,Mathematics (Budi),-",
		`09:00-10:00,-,"Art, Music (TBA)"`,
		"",
	}, "\n")
	assert.Equal(t, want, string(out))
}

func TestCSVExporterRejectsRaggedRows(t *testing.T) {
	sheet := sampleSheet()
	sheet.Rows = append(sheet.Rows, []string{"10:00-11:00"})

	_, err := NewCSVExporter().Render(sheet)
	assert.Error(t, err)

	_, err = NewCSVExporter().Render(Sheet{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	sheet := sampleSheet()
	sheet.Rows[0][1] = strings.Repeat("Very Long Subject Name ", 10)

	out, err := NewPDFExporter().Render(sheet)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Equal(t, "application/pdf", NewPDFExporter().ContentType())
}

func TestColumnWidths(t *testing.T) {
	assert.Equal(t, []float64{pageWidth}, columnWidths(1))
	w := columnWidths(7)
	assert.Equal(t, firstCol, w[0])
	assert.InDelta(t, (pageWidth-firstCol)/6, w[6], 0.001)
}
