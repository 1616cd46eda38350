package workbook

import (
	"errors"
	"testing"

	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type sheetFixture struct {
	name string
	rows [][]any
}

func buildXLSX(t *testing.T, sheets ...sheetFixture) []byte {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })

	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(s.name, cell, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestRead_XLSXMultiSheet(t *testing.T) {
	data := buildXLSX(t,
		sheetFixture{name: "Graded", rows: [][]any{
			{"Country", "Disease", "Grade", "Cases"},
			{"Nigeria", "Cholera", "Grade 3", 2341},
			{"Kenya", "Malaria", "Grade 1", 1234},
		}},
		sheetFixture{name: "Protracted", rows: [][]any{
			{"country", "disease", "Protracted"},
			{"Ethiopia", "Cholera", "Protracted 2"},
		}},
	)

	sheets, err := Read(data)
	require.NoError(t, err)
	require.Len(t, sheets, 2)

	assert.Equal(t, "Graded", sheets[0].Name)
	require.Len(t, sheets[0].Rows, 2)
	assert.Equal(t, domain.RawRow{"Country": "Nigeria", "Disease": "Cholera", "Grade": "Grade 3", "Cases": "2341"}, sheets[0].Rows[0])

	assert.Equal(t, "Protracted", sheets[1].Name)
	require.Len(t, sheets[1].Rows, 1)
	assert.Equal(t, "Protracted 2", sheets[1].Rows[0]["Protracted"])
}

func TestRead_XLSXSkipsBlankRowsAndShortRows(t *testing.T) {
	data := buildXLSX(t, sheetFixture{name: "Events", rows: [][]any{
		{"Country", "Disease", "Notes"},
		{"Mali", "Measles"},
		{"", "", ""},
		{"Chad", "Hepatitis E", "Refugee camps"},
	}})

	sheets, err := Read(data)
	require.NoError(t, err)
	require.Len(t, sheets[0].Rows, 2)

	_, hasNotes := sheets[0].Rows[0]["Notes"]
	assert.False(t, hasNotes)
	assert.Equal(t, "Refugee camps", sheets[0].Rows[1]["Notes"])
}

func TestRead_EmptySheet(t *testing.T) {
	data := buildXLSX(t, sheetFixture{name: "Empty"})

	sheets, err := Read(data)
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	assert.Empty(t, sheets[0].Rows)
}

func TestRead_CSV(t *testing.T) {
	data := []byte("\xEF\xBB\xBFCountry,Disease,Total Cases\nMalawi,Cholera,\"1,026\"\n,,\nZambia,Cholera,678\n")

	sheets, err := Read(data)
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	assert.Equal(t, CSVSheetName, sheets[0].Name)
	require.Len(t, sheets[0].Rows, 2)
	assert.Equal(t, "Malawi", sheets[0].Rows[0]["Country"])
	assert.Equal(t, "1,026", sheets[0].Rows[0]["Total Cases"])
	assert.Equal(t, "Zambia", sheets[0].Rows[1]["Country"])
}

func TestRead_CorruptPayloadIsDecodeError(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated zip", []byte("PK\x03\x04garbage")},
		{"html page", []byte("<!DOCTYPE html><html><body>Sign in</body></html>")},
		{"legacy xls", []byte("\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1rest")},
		{"binary", []byte{0x00, 0x01, 0x02, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.data)
			require.Error(t, err)
			var de *domain.DecodeError
			assert.True(t, errors.As(err, &de))
		})
	}
}

func TestUniqueHeaders(t *testing.T) {
	got := uniqueHeaders([]string{"Country", " ", "Cases", "Cases", "Cases"})
	assert.Equal(t, []string{"Country", "", "Cases", "Cases_1", "Cases_2"}, got)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, FormatXLSX, Detect([]byte("PK\x03\x04....")))
	assert.Equal(t, FormatCSV, Detect([]byte("a,b\n1,2\n")))
	assert.Equal(t, FormatUnknown, Detect([]byte("  <html>")))
}
