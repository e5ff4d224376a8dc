package source

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		want        Kind
	}{
		{"csv extension", "Class.CSV", "application/octet-stream", KindCSV},
		{"pdf extension", "marks.pdf", "", KindPDF},
		{"xlsx extension", "marks.xlsx", "", KindXLSX},
		{"txt extension", "marks.txt", "", KindText},
		{"csv mime", "upload", "text/csv; charset=utf-8", KindCSV},
		{"pdf mime", "upload", "application/pdf", KindPDF},
		{"excel mime", "upload", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", KindXLSX},
		{"plain mime", "upload", "text/plain", KindText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.filename, tt.contentType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Detect("photo.png", "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(Kind("docx"), strings.NewReader(""), Options{})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCSVRecords(t *testing.T) {
	input := "\ufeff Name , Math ,English\nAlice, 78 ,90\nBob,abc%\n\n"
	records, err := NewCSV(strings.NewReader(input)).Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"Name", "Math", "English"}, records[0].Keys)
	assert.Equal(t, "78", records[0].Get("Math"))
	assert.Equal(t, "Bob", records[1].Get("Name"))
	assert.Equal(t, "", records[1].Get("English"))
	assert.Equal(t, records[0].Keys, records[1].Keys)
}

func TestCSVEmptyInput(t *testing.T) {
	records, err := NewCSV(strings.NewReader("")).Records(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = NewCSV(strings.NewReader("Name,Math\n")).Records(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCSVInvalidHeader(t *testing.T) {
	for _, input := range []string{"Name,,Math\nA,1,2\n", "Name,Math,Math\nA,1,2\n"} {
		_, err := NewCSV(strings.NewReader(input)).Records(context.Background())
		assert.ErrorIs(t, err, ErrInvalidHeader, input)
	}
}

func TestCSVHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCSV(strings.NewReader("Name,Math\nA,1\n")).Records(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTextRecordsAlignedColumns(t *testing.T) {
	input := strings.Join([]string{
		"Class 7B results",
		"Name      Math   English",
		"",
		"Alice     78     90",
		"Bob\tabc%\t60",
		"Cara      55",
	}, "\n")
	records, err := NewText(strings.NewReader(input)).Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"Name", "Math", "English"}, records[0].Keys)
	assert.Equal(t, "90", records[0].Get("English"))
	assert.Equal(t, "abc%", records[1].Get("Math"))
	assert.Equal(t, "", records[2].Get("English"))
}

func TestTextRecordsCommaFallback(t *testing.T) {
	input := "Name,Math\nAlice, 78\nBob,60\n"
	records, err := NewText(strings.NewReader(input)).Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "78", records[0].Get("Math"))
	assert.Equal(t, "Bob", records[1].Get("Name"))
}

func TestParseTextTableTooShort(t *testing.T) {
	records, err := ParseTextTable([]string{"only one line"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestXLSXRecords(t *testing.T) {
	f := excelize.NewFile()
	sheet := "Marks"
	require.NoError(t, f.SetSheetName(f.GetSheetName(0), sheet))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Student", "Math", "Art"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"Alice", 78, " 90 "}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]interface{}{"Bob", "abc%"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	src, err := Open(KindXLSX, bytes.NewReader(buf.Bytes()), Options{})
	require.NoError(t, err)
	records, err := src.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"Student", "Math", "Art"}, records[0].Keys)
	assert.Equal(t, "78", records[0].Get("Math"))
	assert.Equal(t, "90", records[0].Get("Art"))
	assert.Equal(t, "", records[1].Get("Art"))
}

func TestXLSXMissingSheet(t *testing.T) {
	f := excelize.NewFile()
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	_, err = NewXLSX(bytes.NewReader(buf.Bytes()), "Nope").Records(context.Background())
	assert.Error(t, err)
}

func TestPDFRejectsGarbage(t *testing.T) {
	src, err := Open(KindPDF, strings.NewReader("not a pdf"), Options{})
	require.NoError(t, err)
	_, err = src.Records(context.Background())
	assert.Error(t, err)
}
