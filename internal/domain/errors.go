package domain

import (
	"errors"
	"fmt"
)

// FetchKind classifies a Source Fetcher failure.
type FetchKind string

const (
	FetchNetwork    FetchKind = "network"
	FetchHTTPStatus FetchKind = "http-status"
	FetchTimeout    FetchKind = "timeout"
)

// FetchError is a failure to obtain workbook bytes from the remote source.
type FetchError struct {
	Kind       FetchKind
	URL        string
	StatusCode int // set for FetchHTTPStatus
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Stage() string { return "fetch" }

// DecodeError is a failure to turn fetched bytes into usable rows.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode workbook: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Stage() string { return "decode" }

// PersistenceError is a failure of the durable store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Stage() string { return "persist" }

// StageOf names the pipeline stage that produced err, or "unknown".
func StageOf(err error) string {
	var s interface{ Stage() string }
	if errors.As(err, &s) {
		return s.Stage()
	}
	return "unknown"
}

var (
	// ErrNoUsableRows is wrapped in a DecodeError when a workbook decodes but
	// every row is dropped.
	ErrNoUsableRows = errors.New("workbook contains no rows with both country and disease")

	// ErrEmptyResult means no tier, including the bundled dataset, produced data.
	ErrEmptyResult = errors.New("no data available from any source")

	// ErrStoreUnavailable is returned by pipeline code when no durable store is
	// configured.
	ErrStoreUnavailable = errors.New("durable store not configured")
)
