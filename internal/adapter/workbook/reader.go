// Package workbook decodes spreadsheet bytes into header-keyed rows.
package workbook

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

// CSVSheetName names the single sheet produced from a CSV payload.
const CSVSheetName = "csv"

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte("\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1") // legacy .xls
	utf8BOM  = []byte("\xEF\xBB\xBF")
)

// Format is the detected payload encoding.
type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatCSV     Format = "csv"
	FormatUnknown Format = "unknown"
)

// Detect sniffs the payload format from its leading bytes.
func Detect(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX
	case len(data) == 0, bytes.HasPrefix(data, oleMagic):
		return FormatUnknown
	}
	head := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	if bytes.HasPrefix(head, []byte("<")) {
		// An HTML page, usually a sign-in wall or an unrewritten share link.
		return FormatUnknown
	}
	sample := head
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	if bytes.IndexByte(sample, 0) >= 0 || !utf8.Valid(trimPartialRune(sample)) {
		return FormatUnknown
	}
	return FormatCSV
}

// Read decodes an XLSX workbook or CSV export into sheets in workbook order.
// Any decoding problem is returned as a *domain.DecodeError.
func Read(data []byte) ([]domain.Sheet, error) {
	var (
		sheets []domain.Sheet
		err    error
	)
	switch Detect(data) {
	case FormatXLSX:
		sheets, err = readXLSX(data)
	case FormatCSV:
		sheets, err = readCSV(data)
	default:
		err = errors.New("unsupported or corrupt spreadsheet format")
	}
	if err != nil {
		return nil, &domain.DecodeError{Err: err}
	}
	return sheets, nil
}

func readXLSX(data []byte) ([]domain.Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only workbook, nothing to flush

	names := f.GetSheetList()
	sheets := make([]domain.Sheet, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		sheets = append(sheets, domain.Sheet{Name: name, Rows: rowsToRecords(rows)})
	}
	return sheets, nil
}

func readCSV(data []byte) ([]domain.Sheet, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return []domain.Sheet{{Name: CSVSheetName, Rows: rowsToRecords(rows)}}, nil
}

// rowsToRecords keys each data row by the header row, which is the first row
// with any non-blank cell. Blank header cells and blank values are skipped,
// repeated headers get "_1", "_2" suffixes, and fully blank data rows are dropped.
func rowsToRecords(rows [][]string) []domain.RawRow {
	start := 0
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil
	}
	header := uniqueHeaders(rows[start])

	records := make([]domain.RawRow, 0, len(rows)-start-1)
	for _, row := range rows[start+1:] {
		if blank(row) {
			continue
		}
		rec := make(domain.RawRow, len(header))
		for i, key := range header {
			if key == "" || i >= len(row) || strings.TrimSpace(row[i]) == "" {
				continue
			}
			rec[key] = row[i]
		}
		records = append(records, rec)
	}
	return records
}

func uniqueHeaders(cells []string) []string {
	header := make([]string, len(cells))
	seen := make(map[string]int, len(cells))
	for i, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if n, dup := seen[c]; dup {
			seen[c] = n + 1
			header[i] = c + "_" + strconv.Itoa(n+1)
			continue
		}
		seen[c] = 0
		header[i] = c
	}
	return header
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// trimPartialRune drops a rune cut in half by sampling.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

// Reader satisfies pipeline.SheetDecoder.
type Reader struct{}

func (Reader) Decode(data []byte) ([]domain.Sheet, error) { return Read(data) }
