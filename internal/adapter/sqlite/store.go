// Package sqlite implements domain.EventStore on an embedded SQLite file
// through the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	_ "modernc.org/sqlite"
)

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS who_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		country TEXT NOT NULL,
		disease TEXT NOT NULL,
		grade TEXT,
		event_type TEXT,
		status TEXT,
		report_date TEXT NOT NULL,
		year INTEGER,
		description TEXT,
		cases INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		latitude REAL,
		longitude REAL,
		protracted TEXT,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_country ON who_events (country)`,
	`CREATE INDEX IF NOT EXISTS idx_disease ON who_events (disease)`,
	`CREATE INDEX IF NOT EXISTS idx_grade ON who_events (grade)`,
	`CREATE INDEX IF NOT EXISTS idx_report_date ON who_events (report_date)`,
	`CREATE INDEX IF NOT EXISTS idx_year ON who_events (year)`,
	`CREATE TABLE IF NOT EXISTS data_sync_metadata (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		last_sync_time TEXT NOT NULL,
		records_synced INTEGER NOT NULL DEFAULT 0,
		source_url TEXT,
		sync_status TEXT NOT NULL,
		error_message TEXT,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

const (
	upsertEventSQL = `
		INSERT INTO who_events (
			event_id, country, disease, grade, event_type, status, report_date,
			year, description, cases, deaths, latitude, longitude, protracted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO UPDATE SET
			country = excluded.country,
			disease = excluded.disease,
			grade = excluded.grade,
			event_type = excluded.event_type,
			status = excluded.status,
			report_date = excluded.report_date,
			year = excluded.year,
			description = excluded.description,
			cases = excluded.cases,
			deaths = excluded.deaths,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			protracted = excluded.protracted,
			updated_at = CURRENT_TIMESTAMP`

	insertSyncSQL = `
		INSERT INTO data_sync_metadata (
			run_id, last_sync_time, records_synced, source_url, sync_status, error_message
		) VALUES (?, ?, ?, ?, ?, ?)`

	selectEventsSQL = `
		SELECT event_id, country, disease, grade, event_type, status, report_date,
			year, description, cases, deaths, latitude, longitude, protracted
		FROM who_events
		ORDER BY report_date DESC, event_id ASC`

	selectLastSyncSQL = `
		SELECT id, run_id, last_sync_time, records_synced, source_url, sync_status, error_message
		FROM data_sync_metadata
		ORDER BY id DESC
		LIMIT 1`
)

// Store is a domain.EventStore backed by a SQLite database file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
}

// Open opens (creating if needed) the SQLite database at path. path may also be
// a "file:" URI understood by the driver.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "connect", Err: err}
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &domain.PersistenceError{Op: "connect", Err: err}
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, &domain.PersistenceError{Op: "connect", Err: fmt.Errorf("set busy timeout: %w", err)}
	}

	logger.Info("sqlite store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Init creates the tables and indexes. It runs at most once successfully; a
// failed attempt is retried on the next call.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	for _, stmt := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &domain.PersistenceError{Op: "init", Err: err}
		}
	}
	s.initialized = true
	return nil
}

// UpsertAll replaces the stored event set and appends a success row in one
// transaction.
func (s *Store) UpsertAll(ctx context.Context, events []domain.OutbreakEvent, meta domain.SyncMetadata) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "upsert", Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM who_events`); err != nil {
		return &domain.PersistenceError{Op: "upsert", Err: fmt.Errorf("delete events: %w", err)}
	}

	stmt, err := tx.PrepareContext(ctx, upsertEventSQL)
	if err != nil {
		return &domain.PersistenceError{Op: "upsert", Err: fmt.Errorf("prepare: %w", err)}
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.Country, e.Disease, e.Grade, e.EventType, e.Status, e.ReportDate,
			e.Year, e.Description, e.Cases, e.Deaths, e.Lat, e.Lon, e.Protracted,
		); err != nil {
			return &domain.PersistenceError{Op: "upsert", Err: fmt.Errorf("event %s: %w", e.ID, err)}
		}
	}

	meta.Status = domain.SyncSuccess
	meta.RecordCount = len(events)
	if _, err := tx.ExecContext(ctx, insertSyncSQL, syncArgs(meta)...); err != nil {
		return &domain.PersistenceError{Op: "upsert", Err: fmt.Errorf("sync row: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "upsert", Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// RecordFailure appends a failed sync row.
func (s *Store) RecordFailure(ctx context.Context, meta domain.SyncMetadata) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	meta.Status = domain.SyncFailed
	meta.RecordCount = 0
	if _, err := s.db.ExecContext(ctx, insertSyncSQL, syncArgs(meta)...); err != nil {
		return &domain.PersistenceError{Op: "record failure", Err: err}
	}
	return nil
}

// ReadAll returns every stored event, newest report date first.
func (s *Store) ReadAll(ctx context.Context) ([]domain.OutbreakEvent, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selectEventsSQL)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	defer rows.Close()

	events := []domain.OutbreakEvent{}
	for rows.Next() {
		var (
			e                                                 domain.OutbreakEvent
			grade, eventType, status, description, protracted sql.NullString
			year                                              sql.NullInt64
			lat, lon                                          sql.NullFloat64
		)
		if err := rows.Scan(
			&e.ID, &e.Country, &e.Disease, &grade, &eventType, &status, &e.ReportDate,
			&year, &description, &e.Cases, &e.Deaths, &lat, &lon, &protracted,
		); err != nil {
			return nil, &domain.PersistenceError{Op: "read", Err: fmt.Errorf("scan event: %w", err)}
		}
		e.Grade = grade.String
		e.EventType = eventType.String
		e.Status = status.String
		e.Description = description.String
		e.Protracted = protracted.String
		e.Year = int(year.Int64)
		e.Lat = lat.Float64
		e.Lon = lon.Float64
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	return events, nil
}

// LastSync returns the newest sync row, or nil when none exists.
func (s *Store) LastSync(ctx context.Context) (*domain.SyncMetadata, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	var (
		m                     domain.SyncMetadata
		runID, source, errMsg sql.NullString
		syncTime              string
	)
	err := s.db.QueryRowContext(ctx, selectLastSyncSQL).Scan(
		&m.ID, &runID, &syncTime, &m.RecordCount, &source, &m.Status, &errMsg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "last sync", Err: err}
	}

	m.SyncTime, err = time.Parse(time.RFC3339Nano, syncTime)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "last sync", Err: fmt.Errorf("parse sync time: %w", err)}
	}
	m.RunID = runID.String
	m.SourceURL = source.String
	m.ErrorMessage = errMsg.String
	return &m, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func syncArgs(m domain.SyncMetadata) []any {
	var errMsg any
	if m.ErrorMessage != "" {
		errMsg = m.ErrorMessage
	}
	return []any{m.RunID, m.SyncTime.UTC().Format(time.RFC3339Nano), m.RecordCount, m.SourceURL, m.Status, errMsg}
}
