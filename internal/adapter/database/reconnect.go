package database

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// DefaultRetryInterval bounds how often a lost store is redialed.
const DefaultRetryInterval = 10 * time.Second

type openFunc func(ctx context.Context) (domain.EventStore, error)

// Reconnecting is a domain.EventStore that connects on first use. A failed
// connect is retried by a later call once the retry interval has passed, so
// a store that is down at boot comes back without a restart.
type Reconnecting struct {
	open     openFunc
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	store   domain.EventStore
	lastTry time.Time
	lastErr error
}

// OpenReconnecting validates dsn and makes a first connection attempt. A
// failed attempt is logged, not returned. An empty dsn returns
// domain.ErrStoreUnavailable.
func OpenReconnecting(ctx context.Context, dsn string, logger *slog.Logger) (*Reconnecting, error) {
	backend, _, err := Parse(dsn)
	if err != nil {
		return nil, err
	}
	if backend == BackendNone {
		return nil, domain.ErrStoreUnavailable
	}

	r := newReconnecting(func(ctx context.Context) (domain.EventStore, error) {
		return Open(ctx, dsn, logger)
	}, clockwork.NewRealClock(), DefaultRetryInterval, logger)

	if _, err := r.get(ctx); err != nil {
		logger.Warn("durable cache unreachable, will retry", "backend", backend, "retry_interval", r.interval, "error", err)
	}
	return r, nil
}

func newReconnecting(open openFunc, clock clockwork.Clock, interval time.Duration, logger *slog.Logger) *Reconnecting {
	return &Reconnecting{open: open, clock: clock, interval: interval, logger: logger}
}

// get returns the connected store, dialing when none is held and the last
// failed attempt is older than the retry interval.
func (r *Reconnecting) get(ctx context.Context) (domain.EventStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil {
		return r.store, nil
	}
	if !r.lastTry.IsZero() && r.clock.Since(r.lastTry) < r.interval {
		return nil, r.lastErr
	}

	r.lastTry = r.clock.Now()
	s, err := r.open(ctx)
	if err != nil {
		r.lastErr = err
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		// Writes retry Init.
		r.logger.Warn("initialize durable cache schema failed", "error", err)
	}
	r.store = s
	r.lastErr = nil
	r.logger.Info("durable cache connected")
	return s, nil
}

func (r *Reconnecting) Init(ctx context.Context) error {
	s, err := r.get(ctx)
	if err != nil {
		return err
	}
	return s.Init(ctx)
}

func (r *Reconnecting) UpsertAll(ctx context.Context, events []domain.OutbreakEvent, meta domain.SyncMetadata) error {
	s, err := r.get(ctx)
	if err != nil {
		return err
	}
	return s.UpsertAll(ctx, events, meta)
}

func (r *Reconnecting) RecordFailure(ctx context.Context, meta domain.SyncMetadata) error {
	s, err := r.get(ctx)
	if err != nil {
		return err
	}
	return s.RecordFailure(ctx, meta)
}

func (r *Reconnecting) ReadAll(ctx context.Context) ([]domain.OutbreakEvent, error) {
	s, err := r.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.ReadAll(ctx)
}

func (r *Reconnecting) LastSync(ctx context.Context) (*domain.SyncMetadata, error) {
	s, err := r.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.LastSync(ctx)
}

func (r *Reconnecting) Ping(ctx context.Context) error {
	s, err := r.get(ctx)
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

// Close releases the underlying store if one was connected.
func (r *Reconnecting) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	return err
}
