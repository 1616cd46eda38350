package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/couchcryptid/outbreak-data-etl/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// State names a step of the per-request freshness decision.
type State string

const (
	StateCheckCache            State = "CHECK_CACHE"
	StateFreshHit              State = "FRESH_HIT"
	StateStaleOrMissing        State = "STALE_OR_MISSING"
	StateFetchRemote           State = "FETCH_REMOTE"
	StateNormalizeOK           State = "NORMALIZE_OK"
	StateFetchOrParseFailed    State = "FETCH_OR_PARSE_FAILED"
	StatePersist               State = "PERSIST"
	StateRespondLive           State = "RESPOND_LIVE"
	StateReadCache             State = "READ_CACHE"
	StateRespondCached         State = "RESPOND_CACHED"
	StateCacheEmpty            State = "CACHE_EMPTY"
	StateRespondStaticFallback State = "RESPOND_STATIC_FALLBACK"
)

// Source is the tier that produced a response.
type Source string

const (
	SourceLive                  Source = "live"
	SourceDatabaseCache         Source = "database-cache"
	SourceDatabaseCacheFallback Source = "database-cache-fallback"
	SourceStaticFallback        Source = "static-fallback"
)

// Metadata is the provenance attached to every response.
type Metadata struct {
	TotalEvents  int        `json:"totalEvents"`
	FetchedAt    time.Time  `json:"fetchedAt"`
	Source       Source     `json:"source"`
	Warning      string     `json:"warning,omitempty"`
	Sheets       []string   `json:"sheets,omitempty"`
	SourceURL    string     `json:"sourceUrl,omitempty"`
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`
	RunID        string     `json:"runId,omitempty"`
}

// Result is an event set with its provenance.
type Result struct {
	Events   []domain.OutbreakEvent
	Metadata Metadata
	Trace    []State // states visited, in order
}

// Filter narrows the events and updates TotalEvents to match.
func (r Result) Filter(f domain.EventFilter) Result {
	r.Events = f.Apply(r.Events)
	r.Metadata.TotalEvents = len(r.Events)
	return r
}

// Options configures an Orchestrator.
type Options struct {
	SourceURL      string
	TTL            time.Duration // cache freshness window
	RefreshTimeout time.Duration // bound on a shared fetch-normalize-persist cycle
	PersistTimeout time.Duration // bound on each store write
}

// SyncOutcome reports one fetch-normalize-persist cycle.
type SyncOutcome struct {
	RunID     string
	SyncTime  time.Time
	Ingestion Ingestion
	// Err is a fetch or decode failure. Nothing was stored.
	Err error
	// PersistErr means the events are valid but were not stored.
	PersistErr error
}

// Orchestrator decides per request whether to serve cached data or refresh
// from the source, and degrades through the durable cache to the bundled
// dataset when a tier fails.
type Orchestrator struct {
	opts      Options
	ingestor  *Ingestor
	store     domain.EventStore
	publisher Publisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	group     singleflight.Group
}

// Defaults applied to zero Options fields.
const (
	DefaultTTL            = 5 * time.Minute
	DefaultRefreshTimeout = 45 * time.Second
	DefaultPersistTimeout = 30 * time.Second
)

// New creates an Orchestrator. store and publisher may be nil.
func New(opts Options, ingestor *Ingestor, store domain.EventStore, publisher Publisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	return &Orchestrator{
		opts:      opts,
		ingestor:  ingestor,
		store:     store,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// SourceURL returns the configured source URL.
func (o *Orchestrator) SourceURL() string { return o.opts.SourceURL }

// CheckReadiness pings the durable store when one is configured.
func (o *Orchestrator) CheckReadiness(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	if err := o.store.Ping(ctx); err != nil {
		return fmt.Errorf("durable store: %w", err)
	}
	return nil
}

// LastSync returns the newest sync log row.
func (o *Orchestrator) LastSync(ctx context.Context) (*domain.SyncMetadata, error) {
	if o.store == nil {
		return nil, domain.ErrStoreUnavailable
	}
	return o.store.LastSync(ctx)
}

// request carries one walk through the state machine.
type request struct {
	state State
	trace []State
	done  bool

	last    *domain.SyncMetadata
	cached  []domain.OutbreakEvent
	outcome SyncOutcome
	source  Source
	warning string

	result Result
	err    error
}

// Get returns the current event set. It fails with domain.ErrEmptyResult when
// every tier, including the bundled dataset, is unavailable, and with the
// context error when the caller gives up while waiting on a refresh.
func (o *Orchestrator) Get(ctx context.Context) (Result, error) {
	start := o.clock.Now()
	r := &request{state: StateCheckCache}

	for !r.done {
		r.trace = append(r.trace, r.state)
		o.step(ctx, r)
	}

	o.metrics.ResponseDuration.Observe(o.clock.Since(start).Seconds())
	if r.err != nil {
		return Result{Trace: r.trace}, r.err
	}
	o.metrics.Responses.WithLabelValues(string(r.result.Metadata.Source)).Inc()
	r.result.Trace = r.trace
	return r.result, nil
}

func (o *Orchestrator) step(ctx context.Context, r *request) {
	switch r.state {
	case StateCheckCache:
		o.checkCache(ctx, r)
	case StateFreshHit:
		o.freshHit(ctx, r)
	case StateStaleOrMissing:
		r.state = StateFetchRemote
	case StateFetchRemote:
		o.fetchRemote(ctx, r)
	case StateNormalizeOK:
		r.state = StatePersist
	case StatePersist:
		o.persisted(r)
	case StateFetchOrParseFailed:
		o.fetchFailed(r)
	case StateReadCache:
		o.readCache(ctx, r)
	case StateCacheEmpty:
		r.state = StateRespondStaticFallback
	case StateRespondLive:
		o.respondLive(r)
	case StateRespondCached:
		o.respondCached(r)
	case StateRespondStaticFallback:
		o.respondStatic(r)
	default:
		r.err = fmt.Errorf("unknown state %q", r.state)
		r.done = true
	}
}

func (o *Orchestrator) checkCache(ctx context.Context, r *request) {
	if o.store == nil {
		r.state = StateStaleOrMissing
		return
	}

	last, err := o.store.LastSync(ctx)
	if err != nil {
		o.logger.Warn("read sync log failed", "error", err)
		r.state = StateStaleOrMissing
		return
	}
	r.last = last

	if last != nil && last.Succeeded() && o.clock.Since(last.SyncTime) < o.opts.TTL {
		r.state = StateFreshHit
		return
	}
	r.state = StateStaleOrMissing
}

func (o *Orchestrator) freshHit(ctx context.Context, r *request) {
	events, err := o.store.ReadAll(ctx)
	switch {
	case err != nil:
		o.logger.Warn("fresh cache read failed, refreshing", "error", err)
		r.state = StateStaleOrMissing
	case len(events) == 0:
		o.logger.Warn("fresh cache is empty, refreshing")
		r.state = StateStaleOrMissing
	default:
		r.cached = events
		r.source = SourceDatabaseCache
		r.state = StateRespondCached
	}
}

func (o *Orchestrator) fetchRemote(ctx context.Context, r *request) {
	r.outcome = o.refresh(ctx)
	if err := ctx.Err(); err != nil {
		// The caller has gone; the shared cycle carries on without it.
		r.err = err
		r.done = true
		return
	}
	if r.outcome.Err != nil {
		r.state = StateFetchOrParseFailed
		return
	}
	r.state = StateNormalizeOK
}

// persisted reads the store write result of the shared cycle.
func (o *Orchestrator) persisted(r *request) {
	switch err := r.outcome.PersistErr; {
	case errors.Is(err, domain.ErrStoreUnavailable):
		r.warning = "Durable store not configured; live data was not cached"
	case err != nil:
		r.warning = "Live data could not be saved to the database cache: " + err.Error()
	}
	r.state = StateRespondLive
}

func (o *Orchestrator) fetchFailed(r *request) {
	o.logger.Warn("live data unavailable, falling back",
		"stage", domain.StageOf(r.outcome.Err),
		"error", r.outcome.Err,
	)
	r.state = StateReadCache
}

func (o *Orchestrator) readCache(ctx context.Context, r *request) {
	if o.store == nil {
		r.state = StateCacheEmpty
		return
	}

	events, err := o.store.ReadAll(ctx)
	switch {
	case err != nil:
		o.logger.Warn("cache read failed", "error", err)
		r.state = StateCacheEmpty
	case len(events) == 0:
		r.state = StateCacheEmpty
	default:
		r.cached = events
		r.source = SourceDatabaseCacheFallback
		r.warning = fmt.Sprintf("Live data unavailable (%s failure); serving cached data", domain.StageOf(r.outcome.Err))
		r.state = StateRespondCached
	}
}

func (o *Orchestrator) respondLive(r *request) {
	ing := r.outcome.Ingestion
	syncTime := r.outcome.SyncTime
	r.result = Result{
		Events: ing.Events,
		Metadata: Metadata{
			TotalEvents:  len(ing.Events),
			FetchedAt:    syncTime,
			Source:       SourceLive,
			Warning:      r.warning,
			Sheets:       ing.Sheets,
			SourceURL:    ing.SourceURL,
			LastSyncTime: &syncTime,
			RunID:        r.outcome.RunID,
		},
	}
	r.done = true
}

func (o *Orchestrator) respondCached(r *request) {
	md := Metadata{
		TotalEvents: len(r.cached),
		FetchedAt:   o.clock.Now().UTC(),
		Source:      r.source,
		Warning:     r.warning,
		SourceURL:   o.opts.SourceURL,
	}
	if r.last != nil {
		t := r.last.SyncTime
		md.LastSyncTime = &t
		md.RunID = r.last.RunID
	}
	r.result = Result{Events: r.cached, Metadata: md}
	r.done = true
}

func (o *Orchestrator) respondStatic(r *request) {
	r.done = true

	events, err := StaticEvents()
	if err != nil || len(events) == 0 {
		o.logger.Error("bundled dataset unavailable", "error", err)
		r.err = domain.ErrEmptyResult
		return
	}
	r.result = Result{
		Events: events,
		Metadata: Metadata{
			TotalEvents: len(events),
			FetchedAt:   o.clock.Now().UTC(),
			Source:      SourceStaticFallback,
			Warning:     "Live data and database cache unavailable; serving bundled static dataset",
		},
	}
}

// refresh runs one shared sync cycle. Concurrent callers wait on the same
// cycle, which runs detached from any caller's cancellation.
func (o *Orchestrator) refresh(ctx context.Context) SyncOutcome {
	ch := o.group.DoChan("refresh", func() (any, error) {
		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.RefreshTimeout)
		defer cancel()
		return o.Sync(cycleCtx), nil
	})

	select {
	case res := <-ch:
		return res.Val.(SyncOutcome)
	case <-ctx.Done():
		return SyncOutcome{Err: ctx.Err()}
	}
}

// Sync fetches, normalizes and persists the source workbook once, recording
// the attempt in the sync log. An empty event set is a failure and never
// replaces stored data.
func (o *Orchestrator) Sync(ctx context.Context) SyncOutcome {
	out := SyncOutcome{RunID: uuid.NewString(), SyncTime: o.clock.Now().UTC()}
	meta := domain.SyncMetadata{RunID: out.RunID, SyncTime: out.SyncTime, SourceURL: o.opts.SourceURL}
	logger := o.logger.With("run_id", out.RunID)

	ing, err := o.ingestor.Ingest(ctx, o.opts.SourceURL, out.SyncTime)

	// Freshness is measured from when the attempt completed.
	out.SyncTime = o.clock.Now().UTC()
	meta.SyncTime = out.SyncTime

	if err != nil {
		out.Err = err
		o.metrics.SyncAttempts.WithLabelValues("failed").Inc()
		logger.Warn("sync failed", "stage", domain.StageOf(err), "error", err)
		o.recordFailure(ctx, meta, err)
		return out
	}
	out.Ingestion = ing
	o.metrics.NormalizedEvents.Set(float64(len(ing.Events)))

	out.PersistErr = o.persist(ctx, ing.Events, meta)
	switch {
	case errors.Is(out.PersistErr, domain.ErrStoreUnavailable):
		o.metrics.SyncAttempts.WithLabelValues("persist_skipped").Inc()
		logger.Warn("no durable store configured, sync not persisted", "events", len(ing.Events))
	case out.PersistErr != nil:
		o.metrics.SyncAttempts.WithLabelValues("persist_failed").Inc()
		logger.Error("persist failed", "error", out.PersistErr)
		o.recordFailure(ctx, meta, out.PersistErr)
	default:
		o.metrics.SyncAttempts.WithLabelValues("success").Inc()
		logger.Info("sync complete", "events", len(ing.Events), "sheets", len(ing.Sheets))
	}

	o.publish(ctx, ing.Events, logger)
	return out
}

func (o *Orchestrator) persist(ctx context.Context, events []domain.OutbreakEvent, meta domain.SyncMetadata) error {
	if o.store == nil {
		return domain.ErrStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.PersistTimeout)
	defer cancel()
	return o.store.UpsertAll(ctx, events, meta)
}

func (o *Orchestrator) recordFailure(ctx context.Context, meta domain.SyncMetadata, cause error) {
	if o.store == nil {
		return
	}
	meta.ErrorMessage = cause.Error()

	// The cycle context may already be spent when the failure was a timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PersistTimeout)
	defer cancel()
	if err := o.store.RecordFailure(ctx, meta); err != nil {
		o.logger.Warn("record sync failure failed", "run_id", meta.RunID, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, events []domain.OutbreakEvent, logger *slog.Logger) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, events); err != nil {
		o.metrics.PublishErrors.Inc()
		logger.Warn("publish events failed", "error", err)
		return
	}
	o.metrics.EventsPublished.Add(float64(len(events)))
}
