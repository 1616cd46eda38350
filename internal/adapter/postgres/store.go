// Package postgres implements domain.EventStore on PostgreSQL using a pgx
// connection pool. Schema creation goes through gorm AutoMigrate.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	deleteEventsSQL = `DELETE FROM who_events`

	upsertEventSQL = `
		INSERT INTO who_events (
			event_id, country, disease, grade, event_type, status, report_date,
			year, description, cases, deaths, latitude, longitude, protracted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (event_id) DO UPDATE SET
			country = EXCLUDED.country,
			disease = EXCLUDED.disease,
			grade = EXCLUDED.grade,
			event_type = EXCLUDED.event_type,
			status = EXCLUDED.status,
			report_date = EXCLUDED.report_date,
			year = EXCLUDED.year,
			description = EXCLUDED.description,
			cases = EXCLUDED.cases,
			deaths = EXCLUDED.deaths,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			protracted = EXCLUDED.protracted,
			updated_at = now()`

	insertSyncSQL = `
		INSERT INTO data_sync_metadata (
			run_id, last_sync_time, records_synced, source_url, sync_status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6)`

	selectEventsSQL = `
		SELECT event_id, country, disease, grade, event_type, status, report_date,
			year, description, cases, deaths, latitude, longitude, protracted
		FROM who_events
		ORDER BY report_date DESC, event_id ASC`

	selectLastSyncSQL = `
		SELECT id, run_id, last_sync_time, records_synced, source_url, sync_status, error_message
		FROM data_sync_metadata
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
)

// Store is a domain.EventStore backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
}

// New connects to the database at dsn and verifies the connection.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "connect", Err: fmt.Errorf("parse dsn: %w", err)}
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &domain.PersistenceError{Op: "connect", Err: err}
	}

	logger.Info("postgres store connected",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database,
	)
	return &Store{pool: pool, logger: logger}, nil
}

// Init creates the tables and indexes. It runs at most once successfully; a
// failed attempt is retried on the next call.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	gormDB, err := gorm.Open(
		gormpg.New(gormpg.Config{Conn: stdlib.OpenDBFromPool(s.pool)}),
		&gorm.Config{},
	)
	if err != nil {
		return &domain.PersistenceError{Op: "init", Err: fmt.Errorf("open gorm: %w", err)}
	}
	if err := gormDB.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return &domain.PersistenceError{Op: "init", Err: fmt.Errorf("auto migrate: %w", err)}
	}

	s.initialized = true
	s.logger.Info("postgres schema ready")
	return nil
}

// UpsertAll replaces the stored event set and appends a success row in one
// transaction.
func (s *Store) UpsertAll(ctx context.Context, events []domain.OutbreakEvent, meta domain.SyncMetadata) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &domain.PersistenceError{Op: "upsert", Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, deleteEventsSQL); err != nil {
		return &domain.PersistenceError{Op: "upsert", Err: fmt.Errorf("delete events: %w", err)}
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		reportDate, err := time.Parse(time.DateOnly, e.ReportDate)
		if err != nil {
			return &domain.PersistenceError{Op: "upsert", Err: fmt.Errorf("event %s report date: %w", e.ID, err)}
		}
		batch.Queue(upsertEventSQL,
			e.ID, e.Country, e.Disease, e.Grade, e.EventType, e.Status, reportDate,
			e.Year, e.Description, e.Cases, e.Deaths, e.Lat, e.Lon, e.Protracted,
		)
	}
	meta.Status = domain.SyncSuccess
	meta.RecordCount = len(events)
	batch.Queue(insertSyncSQL, syncArgs(meta)...)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return &domain.PersistenceError{Op: "upsert", Err: fmt.Errorf("write events: %w", err)}
	}
	if err := tx.Commit(ctx); err != nil {
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
	if _, err := s.pool.Exec(ctx, insertSyncSQL, syncArgs(meta)...); err != nil {
		return &domain.PersistenceError{Op: "record failure", Err: err}
	}
	return nil
}

// ReadAll returns every stored event, newest report date first.
func (s *Store) ReadAll(ctx context.Context) ([]domain.OutbreakEvent, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, selectEventsSQL)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: err}
	}
	defer rows.Close()

	events := []domain.OutbreakEvent{}
	for rows.Next() {
		var (
			e                                    domain.OutbreakEvent
			reportDate                           time.Time
			grade, eventType, status, protracted *string
			description                          *string
			lat, lon                             *float64
		)
		if err := rows.Scan(
			&e.ID, &e.Country, &e.Disease, &grade, &eventType, &status, &reportDate,
			&e.Year, &description, &e.Cases, &e.Deaths, &lat, &lon, &protracted,
		); err != nil {
			return nil, &domain.PersistenceError{Op: "read", Err: fmt.Errorf("scan event: %w", err)}
		}
		e.ReportDate = reportDate.Format(time.DateOnly)
		e.Grade = deref(grade)
		e.EventType = deref(eventType)
		e.Status = deref(status)
		e.Description = deref(description)
		e.Protracted = deref(protracted)
		if lat != nil {
			e.Lat = *lat
		}
		if lon != nil {
			e.Lon = *lon
		}
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
		m             domain.SyncMetadata
		runID, source *string
		errMsg        *string
	)
	err := s.pool.QueryRow(ctx, selectLastSyncSQL).Scan(
		&m.ID, &runID, &m.SyncTime, &m.RecordCount, &source, &m.Status, &errMsg,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "last sync", Err: err}
	}
	m.RunID = deref(runID)
	m.SourceURL = deref(source)
	m.ErrorMessage = deref(errMsg)
	m.SyncTime = m.SyncTime.UTC()
	return &m, nil
}

// Ping verifies the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func syncArgs(m domain.SyncMetadata) []any {
	var errMsg *string
	if m.ErrorMessage != "" {
		errMsg = &m.ErrorMessage
	}
	return []any{m.RunID, m.SyncTime.UTC(), m.RecordCount, m.SourceURL, m.Status, errMsg}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
