package domain

import "time"

// Grade values produced by ClassifyGrade.
const (
	Grade1   = "Grade 1"
	Grade2   = "Grade 2"
	Grade3   = "Grade 3"
	Ungraded = "Ungraded"
)

// Defaults applied when a row leaves the field empty.
const (
	DefaultEventType = "Outbreak"
	DefaultStatus    = "Ongoing"
)

// Sync outcomes recorded in SyncMetadata.Status.
const (
	SyncSuccess = "success"
	SyncFailed  = "failed"
)

// RawRow is one spreadsheet row keyed by its sheet's header cells.
type RawRow map[string]string

// Sheet is a decoded worksheet in workbook order.
type Sheet struct {
	Name string
	Rows []RawRow
}

// OutbreakEvent is the canonical record every consumer operates on.
type OutbreakEvent struct {
	ID          string  `json:"id"`
	Country     string  `json:"country"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Disease     string  `json:"disease"`
	Grade       string  `json:"grade"`
	EventType   string  `json:"eventType"`
	Status      string  `json:"status"`
	Description string  `json:"description"`
	Year        int     `json:"year"`
	ReportDate  string  `json:"reportDate"`
	Cases       int     `json:"cases"`
	Deaths      int     `json:"deaths"`

	// Protracted holds the raw protracted column when the row had one.
	Protracted string `json:"protracted,omitempty"`
	// Sheet is the worksheet the row came from. Not persisted.
	Sheet string `json:"sheet,omitempty"`
}

// SyncMetadata is one row of the append-only ingestion log.
type SyncMetadata struct {
	ID           int64     `json:"id,omitempty"`
	RunID        string    `json:"runId,omitempty"`
	SyncTime     time.Time `json:"syncTime"`
	RecordCount  int       `json:"recordCount"`
	SourceURL    string    `json:"sourceUrl"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Succeeded reports whether the attempt stored a full event set.
func (m SyncMetadata) Succeeded() bool {
	return m.Status == SyncSuccess
}

// Download is a fetched source payload.
type Download struct {
	URL         string // effective URL after rewriting
	Body        []byte
	ContentType string
	Duration    time.Duration
}
