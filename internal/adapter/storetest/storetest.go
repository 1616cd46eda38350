// Package storetest holds behavior tests shared by every domain.EventStore
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty, initialized store. The store is closed by the caller.
type Factory func(t *testing.T) domain.EventStore

var syncTime = time.Date(2025, time.December, 20, 9, 30, 0, 0, time.UTC)

// Run exercises the EventStore contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s domain.EventStore)
	}{
		{"EmptyStore", testEmptyStore},
		{"InitIsIdempotent", testInitIsIdempotent},
		{"UpsertAllRoundTrip", testUpsertAllRoundTrip},
		{"UpsertAllReplacesSet", testUpsertAllReplacesSet},
		{"DuplicateIDLastWriteWins", testDuplicateIDLastWriteWins},
		{"ReadAllOrdering", testReadAllOrdering},
		{"RecordFailure", testRecordFailure},
		{"LastSyncIsNewest", testLastSyncIsNewest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// Event builds a minimal valid event.
func Event(id, country, disease, reportDate string) domain.OutbreakEvent {
	return domain.OutbreakEvent{
		ID:          id,
		Country:     country,
		Disease:     disease,
		Grade:       domain.Grade2,
		EventType:   domain.DefaultEventType,
		Status:      domain.DefaultStatus,
		Description: disease + " outbreak in " + country,
		Year:        2025,
		ReportDate:  reportDate,
	}
}

func meta(source string) domain.SyncMetadata {
	return domain.SyncMetadata{RunID: "6d1c3a5e-2f41-4bb0-9a4e-0d8f3f1a2b7c", SyncTime: syncTime, SourceURL: source}
}

func testEmptyStore(t *testing.T, s domain.EventStore) {
	ctx := context.Background()

	events, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)

	last, err := s.LastSync(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	assert.NoError(t, s.Ping(ctx))
}

func testInitIsIdempotent(t *testing.T, s domain.EventStore) {
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Init(ctx))
}

func testUpsertAllRoundTrip(t *testing.T, s domain.EventStore) {
	ctx := context.Background()

	in := Event("evt-ng-001", "Nigeria", "Cholera", "2025-03-14")
	in.Grade = domain.Grade3
	in.EventType = "Protracted-2"
	in.Protracted = "Protracted 2"
	in.Lat = 9.082
	in.Lon = 8.6753
	in.Cases = 1250
	in.Deaths = 37
	in.Sheet = "2025"

	require.NoError(t, s.UpsertAll(ctx, []domain.OutbreakEvent{in}, meta("https://example.org/latest.xlsx")))

	events, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)

	want := in
	want.Sheet = ""
	got := events[0]
	assert.InDelta(t, want.Lat, got.Lat, 1e-6)
	assert.InDelta(t, want.Lon, got.Lon, 1e-6)
	got.Lat, got.Lon = want.Lat, want.Lon
	assert.Equal(t, want, got)

	last, err := s.LastSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, domain.SyncSuccess, last.Status)
	assert.Equal(t, 1, last.RecordCount)
	assert.Equal(t, "https://example.org/latest.xlsx", last.SourceURL)
	assert.Equal(t, "6d1c3a5e-2f41-4bb0-9a4e-0d8f3f1a2b7c", last.RunID)
	assert.True(t, syncTime.Equal(last.SyncTime), "sync time %s", last.SyncTime)
	assert.Empty(t, last.ErrorMessage)
}

func testUpsertAllReplacesSet(t *testing.T, s domain.EventStore) {
	ctx := context.Background()

	first := []domain.OutbreakEvent{
		Event("a", "Kenya", "Measles", "2025-01-01"),
		Event("b", "Ghana", "Lassa fever", "2025-01-02"),
	}
	require.NoError(t, s.UpsertAll(ctx, first, meta("u")))

	second := []domain.OutbreakEvent{Event("c", "Mali", "Dengue", "2025-02-01")}
	require.NoError(t, s.UpsertAll(ctx, second, meta("u")))

	events, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "c", events[0].ID)
}

func testDuplicateIDLastWriteWins(t *testing.T, s domain.EventStore) {
	ctx := context.Background()

	older := Event("dup", "Uganda", "Ebola", "2025-05-01")
	older.Cases = 10
	newer := Event("dup", "Uganda", "Ebola", "2025-05-02")
	newer.Cases = 42

	require.NoError(t, s.UpsertAll(ctx, []domain.OutbreakEvent{older, newer}, meta("u")))

	events, err := s.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 42, events[0].Cases)
	assert.Equal(t, "2025-05-02", events[0].ReportDate)
}

func testReadAllOrdering(t *testing.T, s domain.EventStore) {
	ctx := context.Background()

	events := []domain.OutbreakEvent{
		Event("event-2", "Chad", "Hepatitis E", "2025-06-01"),
		Event("event-3", "Niger", "Meningitis", "2025-07-15"),
		Event("event-1", "Togo", "Mpox", "2025-06-01"),
	}
	require.NoError(t, s.UpsertAll(ctx, events, meta("u")))

	got, err := s.ReadAll(ctx)
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"event-3", "event-1", "event-2"}, ids)
}

func testRecordFailure(t *testing.T, s domain.EventStore) {
	ctx := context.Background()

	require.NoError(t, s.UpsertAll(ctx, []domain.OutbreakEvent{Event("a", "Kenya", "Measles", "2025-01-01")}, meta("u")))

	fail := meta("u")
	fail.SyncTime = syncTime.Add(time.Minute)
	fail.ErrorMessage = "fetch u: http status 503"
	fail.RecordCount = 99
	require.NoError(t, s.RecordFailure(ctx, fail))

	last, err := s.LastSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, domain.SyncFailed, last.Status)
	assert.Equal(t, 0, last.RecordCount)
	assert.Equal(t, "fetch u: http status 503", last.ErrorMessage)
	assert.False(t, last.Succeeded())

	events, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1, "a failure row leaves the event set alone")
}

func testLastSyncIsNewest(t *testing.T, s domain.EventStore) {
	ctx := context.Background()

	for i := range 3 {
		m := meta("u")
		m.SyncTime = syncTime.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.UpsertAll(ctx, []domain.OutbreakEvent{Event("a", "Kenya", "Measles", "2025-01-01")}, m))
	}

	last, err := s.LastSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, syncTime.Add(2*time.Minute).Equal(last.SyncTime))
}
