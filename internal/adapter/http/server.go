package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/source"
	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/couchcryptid/outbreak-data-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DataService produces the outbreak event set for a request.
// It is implemented by *pipeline.Orchestrator.
type DataService interface {
	Get(ctx context.Context) (pipeline.Result, error)
	LastSync(ctx context.Context) (*domain.SyncMetadata, error)
	SourceURL() string
}

// Prober checks whether the source is reachable.
type Prober interface {
	Probe(ctx context.Context, rawURL string) source.ProbeResult
}

// Server exposes the outbreak data API alongside health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        DataService
	prober     Prober
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /api/who-data, /api/sync-status,
// /healthz, /readyz, and /metrics routes.
func NewServer(addr string, svc DataService, prober Prober, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// A stale request may wait on a full refresh cycle.
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		prober: prober,
		logger: logger,
	}

	mux.HandleFunc("GET /api/who-data", s.handleWhoData)
	mux.HandleFunc("GET /api/sync-status", s.handleSyncStatus)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type dataResponse struct {
	Success  bool                   `json:"success"`
	Data     []domain.OutbreakEvent `json:"data"`
	Metadata *pipeline.Metadata     `json:"metadata,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func (s *Server) handleWhoData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, max-age=0")

	filter, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dataResponse{Error: err.Error(), Data: []domain.OutbreakEvent{}})
		return
	}

	res, err := s.svc.Get(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Info("who-data request abandoned during refresh", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, dataResponse{
				Error: "Request cancelled before outbreak data was ready",
				Data:  []domain.OutbreakEvent{},
			})
			return
		}
		s.logger.Error("who-data request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, dataResponse{Error: "Failed to load outbreak data", Data: []domain.OutbreakEvent{}})
		return
	}

	res = res.Filter(filter)
	if res.Events == nil {
		res.Events = []domain.OutbreakEvent{}
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: res.Events, Metadata: &res.Metadata})
}

func parseFilter(r *http.Request) (domain.EventFilter, error) {
	q := r.URL.Query()
	f := domain.EventFilter{
		Country:   q.Get("country"),
		Disease:   q.Get("disease"),
		Grade:     q.Get("grade"),
		EventType: q.Get("eventType"),
		Status:    q.Get("status"),
	}
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return domain.EventFilter{}, errors.New("year must be an integer")
		}
		f.Year = year
	}
	return f, nil
}

type syncStatusResponse struct {
	Success         bool                 `json:"success"`
	StoreConfigured bool                 `json:"storeConfigured"`
	LastSync        *domain.SyncMetadata `json:"lastSync"`
	StoreError      string               `json:"storeError,omitempty"`
	Source          source.ProbeResult   `json:"source"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, max-age=0")

	resp := syncStatusResponse{Success: true, StoreConfigured: true}
	last, err := s.svc.LastSync(r.Context())
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		resp.StoreConfigured = false
	case err != nil:
		s.logger.Warn("read last sync failed", "error", err)
		resp.StoreError = err.Error()
	default:
		resp.LastSync = last
	}
	resp.Source = s.prober.Probe(r.Context(), s.svc.SourceURL())

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
