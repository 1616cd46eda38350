package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/outbreak-data-etl/internal/adapter/http"
	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/source"
	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/couchcryptid/outbreak-data-etl/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockService struct {
	result  pipeline.Result
	err     error
	last    *domain.SyncMetadata
	lastErr error
}

func (m *mockService) Get(context.Context) (pipeline.Result, error) { return m.result, m.err }

func (m *mockService) LastSync(context.Context) (*domain.SyncMetadata, error) {
	return m.last, m.lastErr
}

func (m *mockService) SourceURL() string { return "https://example.org/latest.xlsx" }

type mockProber struct {
	gotURL string
}

func (m *mockProber) Probe(_ context.Context, rawURL string) source.ProbeResult {
	m.gotURL = rawURL
	return source.ProbeResult{URL: rawURL, Status: source.Online, StatusCode: http.StatusOK, LatencyMS: 12}
}

var fetchedAt = time.Date(2025, time.December, 20, 9, 0, 0, 0, time.UTC)

func liveResult() pipeline.Result {
	events := []domain.OutbreakEvent{
		{ID: "event-1", Country: "Nigeria", Disease: "Cholera", Grade: domain.Grade3, EventType: "Outbreak", Status: "Ongoing", Year: 2025},
		{ID: "event-2", Country: "Kenya", Disease: "Measles", Grade: domain.Grade2, EventType: "Outbreak", Status: "Ongoing", Year: 2024},
		{ID: "event-3", Country: "Nigeria", Disease: "Lassa fever", Grade: domain.Grade1, EventType: "Protracted-1", Status: "Ongoing", Year: 2025},
	}
	return pipeline.Result{
		Events: events,
		Metadata: pipeline.Metadata{
			TotalEvents: len(events),
			FetchedAt:   fetchedAt,
			Source:      pipeline.SourceLive,
			Sheets:      []string{"Ongoing events"},
		},
	}
}

func newTestServer(svc *mockService, readyErr error) (*httpadapter.Server, *mockProber) {
	prober := &mockProber{}
	return httpadapter.NewServer(":0", svc, prober, &mockReadiness{err: readyErr}, slog.Default()), prober
}

type whoDataBody struct {
	Success  bool                   `json:"success"`
	Data     []domain.OutbreakEvent `json:"data"`
	Metadata *pipeline.Metadata     `json:"metadata"`
	Error    string                 `json:"error"`
}

func get(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestWhoData_ReturnsEnvelope(t *testing.T) {
	srv, _ := newTestServer(&mockService{result: liveResult()}, nil)

	rec := get(t, srv, "/api/who-data")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store, max-age=0", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body whoDataBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Data, 3)
	require.NotNil(t, body.Metadata)
	assert.Equal(t, 3, body.Metadata.TotalEvents)
	assert.Equal(t, pipeline.SourceLive, body.Metadata.Source)
	assert.True(t, fetchedAt.Equal(body.Metadata.FetchedAt))
}

func TestWhoData_FiltersAfterTierSelection(t *testing.T) {
	srv, _ := newTestServer(&mockService{result: liveResult()}, nil)

	rec := get(t, srv, "/api/who-data?country=nigeria&year=2025&grade=grade%203")

	require.Equal(t, http.StatusOK, rec.Code)
	var body whoDataBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "event-1", body.Data[0].ID)
	assert.Equal(t, 1, body.Metadata.TotalEvents)
}

func TestWhoData_FilterWithNoMatchReturnsEmptyArray(t *testing.T) {
	srv, _ := newTestServer(&mockService{result: liveResult()}, nil)

	rec := get(t, srv, "/api/who-data?disease=mpox")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestWhoData_InvalidYear(t *testing.T) {
	srv, _ := newTestServer(&mockService{result: liveResult()}, nil)

	rec := get(t, srv, "/api/who-data?year=last")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body whoDataBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "year")
}

func TestWhoData_ExhaustedReturns500(t *testing.T) {
	srv, _ := newTestServer(&mockService{err: domain.ErrEmptyResult}, nil)

	rec := get(t, srv, "/api/who-data")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "no-store, max-age=0", rec.Header().Get("Cache-Control"))
	var body whoDataBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)
	assert.NotNil(t, body.Data)
	assert.Empty(t, body.Data)
	assert.Nil(t, body.Metadata)
}

func TestWhoData_CallerGoneReturns503(t *testing.T) {
	srv, _ := newTestServer(&mockService{err: context.Canceled}, nil)

	rec := get(t, srv, "/api/who-data")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body whoDataBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Empty(t, body.Data)
}

func TestSyncStatus(t *testing.T) {
	last := &domain.SyncMetadata{ID: 7, RunID: "run-1", SyncTime: fetchedAt, RecordCount: 42, SourceURL: "https://example.org/latest.xlsx", Status: domain.SyncSuccess}
	srv, prober := newTestServer(&mockService{last: last}, nil)

	rec := get(t, srv, "/api/sync-status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.org/latest.xlsx", prober.gotURL)

	var body struct {
		Success         bool                 `json:"success"`
		StoreConfigured bool                 `json:"storeConfigured"`
		LastSync        *domain.SyncMetadata `json:"lastSync"`
		Source          source.ProbeResult   `json:"source"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.True(t, body.StoreConfigured)
	require.NotNil(t, body.LastSync)
	assert.Equal(t, 42, body.LastSync.RecordCount)
	assert.Equal(t, source.Online, body.Source.Status)
	assert.Equal(t, int64(12), body.Source.LatencyMS)
}

func TestSyncStatus_NoStore(t *testing.T) {
	srv, _ := newTestServer(&mockService{lastErr: domain.ErrStoreUnavailable}, nil)

	rec := get(t, srv, "/api/sync-status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storeConfigured":false`)
	assert.Contains(t, rec.Body.String(), `"lastSync":null`)
}

func TestSyncStatus_StoreError(t *testing.T) {
	srv, _ := newTestServer(&mockService{lastErr: errors.New("connection refused")}, nil)

	rec := get(t, srv, "/api/sync-status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storeError":"connection refused"`)
}

func TestHealthzReturns200(t *testing.T) {
	srv, _ := newTestServer(&mockService{}, nil)

	rec := get(t, srv, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	ready, _ := newTestServer(&mockService{}, nil)
	assert.Equal(t, http.StatusOK, get(t, ready, "/readyz").Code)

	notReady, _ := newTestServer(&mockService{}, errors.New("store unreachable"))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, notReady, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(&mockService{}, nil)

	rec := get(t, srv, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestUnknownMethodRejected(t *testing.T) {
	srv, _ := newTestServer(&mockService{result: liveResult()}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/who-data", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
