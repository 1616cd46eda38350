package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/workbook"
	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/couchcryptid/outbreak-data-etl/internal/observability"
	"github.com/couchcryptid/outbreak-data-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

const (
	sourceURL = "https://emergencydata.afro.who.int/data/latest.xlsx"

	// Two usable rows and one without a country.
	sourceCSV = "id,country,disease,grade,cases\n" +
		"evt-ng-001,Nigeria,Cholera,Grade 3,1250\n" +
		",Kenya,Measles,2,10\n" +
		",,Ebola,,\n"
)

var t0 = time.Date(2025, time.December, 20, 9, 0, 0, 0, time.UTC)

// --- fetcher ---

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	body  []byte
	err   error

	// onFetch runs inside Fetch, before it answers.
	onFetch func()

	// When set, Fetch waits for release (or ctx) before answering.
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func newStubFetcher(body string) *stubFetcher {
	return &stubFetcher{body: []byte(body)}
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (domain.Download, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.Download{}, &domain.FetchError{Kind: domain.FetchTimeout, URL: url, Err: ctx.Err()}
		}
	}
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.err != nil {
		return domain.Download{}, f.err
	}
	return domain.Download{URL: url, Body: f.body, ContentType: "text/csv"}, nil
}

func (f *stubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// --- store ---

type memStore struct {
	mu     sync.Mutex
	events []domain.OutbreakEvent
	syncs  []domain.SyncMetadata

	upsertErr   error
	readErr     error
	lastSyncErr error
	upserts     int
	lastSyncs   int
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) UpsertAll(_ context.Context, events []domain.OutbreakEvent, meta domain.SyncMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return &domain.PersistenceError{Op: "upsert", Err: s.upsertErr}
	}
	s.upserts++
	s.events = append([]domain.OutbreakEvent(nil), events...)
	meta.Status = domain.SyncSuccess
	meta.RecordCount = len(events)
	s.syncs = append(s.syncs, meta)
	return nil
}

func (s *memStore) RecordFailure(_ context.Context, meta domain.SyncMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta.Status = domain.SyncFailed
	meta.RecordCount = 0
	s.syncs = append(s.syncs, meta)
	return nil
}

func (s *memStore) ReadAll(context.Context) ([]domain.OutbreakEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, &domain.PersistenceError{Op: "read", Err: s.readErr}
	}
	return append([]domain.OutbreakEvent{}, s.events...), nil
}

func (s *memStore) LastSync(context.Context) (*domain.SyncMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSyncs++
	if s.lastSyncErr != nil {
		return nil, &domain.PersistenceError{Op: "last sync", Err: s.lastSyncErr}
	}
	if len(s.syncs) == 0 {
		return nil, nil
	}
	m := s.syncs[len(s.syncs)-1]
	return &m, nil
}

func (s *memStore) Ping(context.Context) error { return s.readErr }
func (s *memStore) Close() error               { return nil }

func (s *memStore) Syncs() []domain.SyncMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SyncMetadata(nil), s.syncs...)
}

func (s *memStore) Events() []domain.OutbreakEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutbreakEvent(nil), s.events...)
}

func (s *memStore) LastSyncCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncs
}

// seed stores events as a successful sync at syncTime.
func (s *memStore) seed(syncTime time.Time, events ...domain.OutbreakEvent) {
	_ = s.UpsertAll(context.Background(), events, domain.SyncMetadata{RunID: "seed", SyncTime: syncTime, SourceURL: sourceURL})
}

// --- publisher ---

type recordingPublisher struct {
	mu        sync.Mutex
	published [][]domain.OutbreakEvent
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, events []domain.OutbreakEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, events)
	return nil
}

// --- geocoder ---

type stubGeocoder struct {
	result domain.GeocodingResult
	err    error
	calls  int
}

func (g *stubGeocoder) ForwardGeocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	g.calls++
	return g.result, g.err
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

type fixture struct {
	fetcher *stubFetcher
	store   *memStore
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
	orch    *pipeline.Orchestrator
}

type fixtureOpt func(*fixtureConfig)

type fixtureConfig struct {
	noStore   bool
	publisher pipeline.Publisher
}

func withoutStore() fixtureOpt { return func(c *fixtureConfig) { c.noStore = true } }

func withPublisher(p pipeline.Publisher) fixtureOpt {
	return func(c *fixtureConfig) { c.publisher = p }
}

func newFixture(t *testing.T, fetcher *stubFetcher, now time.Time, opts ...fixtureOpt) *fixture {
	t.Helper()
	var cfg fixtureConfig
	for _, o := range opts {
		o(&cfg)
	}

	f := &fixture{
		fetcher: fetcher,
		store:   &memStore{},
		clock:   clockwork.NewFakeClockAt(now),
		metrics: newTestMetrics(),
	}

	var store domain.EventStore
	if !cfg.noStore {
		store = f.store
	}

	ing := pipeline.NewIngestor(fetcher, workbook.Reader{}, nil, discardLogger(), f.metrics)
	f.orch = pipeline.New(pipeline.Options{
		SourceURL:      sourceURL,
		TTL:            5 * time.Minute,
		RefreshTimeout: 5 * time.Second,
		PersistTimeout: time.Second,
	}, ing, store, cfg.publisher, f.clock, discardLogger(), f.metrics)
	return f
}

var errUpstream = errors.New("upstream unavailable")
