package domain

import "context"

// EventStore persists the canonical event set and the sync log.
type EventStore interface {
	// Init creates tables and indexes. Safe to call more than once.
	Init(ctx context.Context) error

	// UpsertAll atomically replaces the stored event set and appends a success
	// row to the sync log. On error nothing previously stored is lost.
	UpsertAll(ctx context.Context, events []OutbreakEvent, meta SyncMetadata) error

	// RecordFailure appends a failed row to the sync log.
	RecordFailure(ctx context.Context, meta SyncMetadata) error

	// ReadAll returns stored events ordered by report date, newest first.
	ReadAll(ctx context.Context) ([]OutbreakEvent, error)

	// LastSync returns the most recent sync log row, or nil when there is none.
	LastSync(ctx context.Context) (*SyncMetadata, error)

	Ping(ctx context.Context) error
	Close() error
}
