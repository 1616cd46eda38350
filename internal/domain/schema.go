package domain

import (
	"sort"
	"strings"
)

// Field names a canonical slot a raw row can populate.
type Field string

const (
	FieldID          Field = "id"
	FieldCountry     Field = "country"
	FieldLatitude    Field = "latitude"
	FieldLongitude   Field = "longitude"
	FieldDisease     Field = "disease"
	FieldGrade       Field = "grade"
	FieldEventType   Field = "eventType"
	FieldProtracted  Field = "protracted"
	FieldStatus      Field = "status"
	FieldDescription Field = "description"
	FieldReportDate  Field = "reportDate"
	FieldYear        Field = "year"
	FieldCases       Field = "cases"
	FieldDeaths      Field = "deaths"
)

// FieldAlias is the ordered list of header names accepted for one field.
type FieldAlias struct {
	Field   Field
	Aliases []string
}

// FieldAliases is the resolution table. Order within each list is significant:
// the first alias carrying a non-empty value wins.
var FieldAliases = []FieldAlias{
	{FieldID, []string{"id", "ID", "Id"}},
	{FieldCountry, []string{"country", "Country", "COUNTRY", "Country_Name", "Country Name", "Location"}},
	{FieldLatitude, []string{"latitude", "Latitude", "LATITUDE", "lat", "Lat", "LAT", "Latitude_Decimal", "Latitude (Decimal)"}},
	{FieldLongitude, []string{"longitude", "Longitude", "LONGITUDE", "lon", "Lon", "LON", "Longitude_Decimal", "Longitude (Decimal)"}},
	{FieldDisease, []string{"disease", "Disease", "DISEASE", "Disease_Name", "Disease Name", "Pathogen"}},
	{FieldGrade, []string{"grade", "Grade", "GRADE", "Grading", "Grade Level", "Risk_Level"}},
	{FieldEventType, []string{"eventType", "Event Type", "EVENT_TYPE", "Type", "Event_Type", "Category"}},
	{FieldProtracted, []string{"protracted", "Protracted", "PROTRACTED", "Protracted_Level", "Protracted Level"}},
	{FieldStatus, []string{"status", "Status", "STATUS", "Event_Status", "Event Status"}},
	{FieldDescription, []string{"description", "Description", "DESCRIPTION", "Details", "Summary", "Notes"}},
	{FieldReportDate, []string{"reportDate", "Report Date", "REPORT_DATE", "Date", "date", "Report_Date", "Date_Reported"}},
	{FieldYear, []string{"year", "Year", "YEAR"}},
	{FieldCases, []string{"cases", "Cases", "CASES", "Total_Cases", "Total Cases", "Case_Count", "Confirmed_Cases"}},
	{FieldDeaths, []string{"deaths", "Deaths", "DEATHS", "Total_Deaths", "Total Deaths", "Death_Count", "Fatalities"}},
}

// Draft holds the resolved raw text for each canonical field. Fields with no
// matching column are absent.
type Draft map[Field]string

// Get returns the resolved value for f, or "" when the row had none.
func (d Draft) Get(f Field) string {
	return d[f]
}

// Has reports whether the row carried a non-empty value for f.
func (d Draft) Has(f Field) bool {
	_, ok := d[f]
	return ok
}

// DropCandidate reports whether the row is missing a required field.
func (d Draft) DropCandidate() bool {
	return d.Get(FieldCountry) == "" || d.Get(FieldDisease) == ""
}

// Resolve maps a raw row onto canonical fields using FieldAliases. Keys not
// named by any alias are ignored.
func Resolve(row RawRow) Draft {
	folded := foldKeys(row)
	draft := make(Draft, len(FieldAliases))
	for _, fa := range FieldAliases {
		v, ok := FirstPresent(row, fa.Aliases)
		if !ok {
			v, ok = firstPresentFolded(folded, fa.Aliases)
		}
		if ok {
			draft[fa.Field] = v
		}
	}
	return draft
}

// FirstPresent returns the trimmed value of the first alias present in row with
// a non-empty value.
func FirstPresent(row RawRow, aliases []string) (string, bool) {
	for _, a := range aliases {
		if v := strings.TrimSpace(row[a]); v != "" {
			return v, true
		}
	}
	return "", false
}

func firstPresentFolded(folded map[string]string, aliases []string) (string, bool) {
	for _, a := range aliases {
		if v, ok := folded[foldKey(a)]; ok {
			return v, true
		}
	}
	return "", false
}

// foldKeys indexes non-empty row values by folded header. Keys are visited in
// sorted order so collisions resolve the same way on every run.
func foldKeys(row RawRow) map[string]string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	folded := make(map[string]string, len(keys))
	for _, k := range keys {
		v := strings.TrimSpace(row[k])
		if v == "" {
			continue
		}
		fk := foldKey(k)
		if _, taken := folded[fk]; !taken {
			folded[fk] = v
		}
	}
	return folded
}

// foldKey lowercases a header and drops spaces, underscores and hyphens, so
// "Country_Name", "country name" and "COUNTRY-NAME" compare equal.
func foldKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range strings.ToLower(strings.TrimSpace(k)) {
		switch r {
		case ' ', '_', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RequiredFields must resolve for a row to become an event.
var RequiredFields = []Field{FieldCountry, FieldDisease}

// MissingRequired reports which required fields no column in a header row
// would populate.
func MissingRequired(columns []string) []Field {
	probe := make(RawRow, len(columns))
	for _, c := range columns {
		probe[c] = "x"
	}
	d := Resolve(probe)

	var missing []Field
	for _, f := range RequiredFields {
		if !d.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}
