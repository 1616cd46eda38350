package domain

import (
	"fmt"
	"strconv"
	"time"
)

const isoDate = "2006-01-02"

// Normalizer turns resolved rows into canonical events for one ingestion run.
// It owns the run's id sequence and its notion of "today"; create a new one per
// sync cycle. A Normalizer is not safe for concurrent use.
type Normalizer struct {
	now time.Time
	seq int
}

// NewNormalizer creates a Normalizer whose defaults (report date, year) are
// taken from now.
func NewNormalizer(now time.Time) *Normalizer {
	return &Normalizer{now: now.UTC()}
}

// Normalize resolves and normalizes one raw row. ok is false when the row lacks
// a country or disease and must be dropped.
func (n *Normalizer) Normalize(row RawRow) (OutbreakEvent, bool) {
	return n.NormalizeDraft(Resolve(row))
}

// NormalizeDraft applies coercion and classification rules to a resolved row.
func (n *Normalizer) NormalizeDraft(d Draft) (OutbreakEvent, bool) {
	id := d.Get(FieldID)
	if id == "" {
		n.seq++
		id = "event-" + strconv.Itoa(n.seq)
	}

	country := d.Get(FieldCountry)
	disease := d.Get(FieldDisease)

	reportDate := n.now.Format(isoDate)
	reportTime, dated := parseReportDate(d.Get(FieldReportDate))
	if dated {
		reportDate = reportTime.Format(isoDate)
	}

	year := ParseIntOr(d.Get(FieldYear), 0)
	if year <= 0 {
		if dated {
			year = reportTime.Year()
		} else {
			year = n.now.Year()
		}
	}

	description := d.Get(FieldDescription)
	if description == "" {
		description = fmt.Sprintf("%s outbreak in %s", disease, country)
	}

	status := d.Get(FieldStatus)
	if status == "" {
		status = DefaultStatus
	}

	event := OutbreakEvent{
		ID:          id,
		Country:     country,
		Lat:         ParseFloatOr(d.Get(FieldLatitude), 0),
		Lon:         ParseFloatOr(d.Get(FieldLongitude), 0),
		Disease:     disease,
		Grade:       ClassifyGrade(d.Get(FieldGrade)),
		EventType:   ResolveEventType(d.Get(FieldEventType), d.Get(FieldProtracted)),
		Status:      status,
		Description: description,
		Year:        year,
		ReportDate:  reportDate,
		Cases:       parseCount(d.Get(FieldCases)),
		Deaths:      parseCount(d.Get(FieldDeaths)),
		Protracted:  d.Get(FieldProtracted),
	}

	if country == "" || disease == "" {
		return event, false
	}
	return event, true
}

// DroppedRow identifies a row excluded for missing a required field. Row is the
// 1-based data row within its sheet (the header is row 0).
type DroppedRow struct {
	Sheet  string
	Row    int
	Reason string
}

// NormalizeResult summarizes a NormalizeSheets call.
type NormalizeResult struct {
	Events  []OutbreakEvent
	Sheets  []string
	Rows    int
	Dropped []DroppedRow
}

// NormalizeSheets normalizes every sheet in workbook order and concatenates the
// results. Later sheets never overwrite earlier ones here; duplicate ids are left
// for the store to resolve.
func (n *Normalizer) NormalizeSheets(sheets []Sheet) NormalizeResult {
	var res NormalizeResult
	for _, sh := range sheets {
		res.Sheets = append(res.Sheets, sh.Name)
		for i, row := range sh.Rows {
			res.Rows++
			event, ok := n.Normalize(row)
			if !ok {
				res.Dropped = append(res.Dropped, DroppedRow{
					Sheet:  sh.Name,
					Row:    i + 1,
					Reason: dropReason(event),
				})
				continue
			}
			event.Sheet = sh.Name
			res.Events = append(res.Events, event)
		}
	}
	return res
}

func dropReason(e OutbreakEvent) string {
	switch {
	case e.Country == "" && e.Disease == "":
		return "missing country and disease"
	case e.Country == "":
		return "missing country"
	default:
		return "missing disease"
	}
}
