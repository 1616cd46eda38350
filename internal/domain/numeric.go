package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericPrefixRe matches the leading number of a cell, e.g. "1234 suspected" -> "1234".
var numericPrefixRe = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)`)

// ParseFloatOr parses the leading number in s, ignoring thousands separators and
// trailing text. It returns def when s has no leading number.
func ParseFloatOr(s string, def float64) float64 {
	if v, ok := parseLeadingNumber(s); ok {
		return v
	}
	return def
}

// ParseIntOr is ParseFloatOr truncated toward zero.
func ParseIntOr(s string, def int) int {
	if v, ok := parseLeadingNumber(s); ok {
		return int(v)
	}
	return def
}

var separatorReplacer = strings.NewReplacer(",", "", " ", "", "\u00a0", "")

func parseLeadingNumber(s string) (float64, bool) {
	s = separatorReplacer.Replace(strings.TrimSpace(s))
	m := numericPrefixRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseCount parses a case or death count. Counts are never negative.
func parseCount(s string) int {
	n := ParseIntOr(s, 0)
	if n < 0 {
		return 0
	}
	return n
}

// reportDateLayouts are tried in order against report date cells.
var reportDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"1/2/06",
	"02-Jan-2006",
	"2-Jan-06",
	"02 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Excel stores dates as days since 1899-12-30. Serials outside this window are
// not treated as dates (20000 is 1954-10-03, 80000 is 2119-01-10).
const (
	minExcelSerial = 20000
	maxExcelSerial = 80000
)

var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// parseReportDate parses a report date cell. ok is false when s matches no
// known layout.
func parseReportDate(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= minExcelSerial && serial < maxExcelSerial {
		return excelEpoch.AddDate(0, 0, int(serial)), true
	}
	return time.Time{}, false
}
