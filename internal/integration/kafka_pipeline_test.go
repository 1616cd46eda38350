//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/source"
	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/workbook"
	"github.com/couchcryptid/outbreak-data-etl/internal/config"
	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/couchcryptid/outbreak-data-etl/internal/observability"
	"github.com/couchcryptid/outbreak-data-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSinkTopic = "test-who-outbreak-events"

	sourceCSV = "ID,Country,Disease,Grade,Total Cases,Deaths,Report Date\n" +
		"NG-CHOL-2025,Nigeria,Cholera,Grade 3,1250,37,2025-11-03\n" +
		"KE-MEAS-2025,Kenya,Measles,2,310,4,2025-10-21\n" +
		",,Ebola,,,,\n"
)

// publishedMessage holds a deserialized message read from the sink topic.
type publishedMessage struct {
	Event   domain.OutbreakEvent
	Key     string
	Headers map[string]string
}

func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event domain.OutbreakEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal sink message")

	return publishedMessage{Event: event, Key: string(msg.Key), Headers: headers}
}

// TestLiveSyncPublishesToKafka runs a full request through the orchestrator:
// fetch from an HTTP source, normalize, persist to sqlite and publish each
// event to Kafka.
func TestLiveSyncPublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(sourceCSV))
	}))
	t.Cleanup(src.Close)

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "who.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Init(ctx))

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic}
	writer := kafka.NewWriter(cfg, logger)
	t.Cleanup(func() { _ = writer.Close() })

	ingestor := pipeline.NewIngestor(source.NewClient(10*time.Second, logger), workbook.Reader{}, nil, logger, metrics)
	orch := pipeline.New(pipeline.Options{SourceURL: src.URL + "/latest.csv"}, ingestor, store, writer,
		clockwork.NewRealClock(), logger, metrics)

	res, err := orch.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.SourceLive, res.Metadata.Source)
	assert.Empty(t, res.Metadata.Warning)
	require.Len(t, res.Events, 2)

	last, err := orch.LastSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Succeeded())
	assert.Equal(t, 2, last.RecordCount)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	got := map[string]publishedMessage{}
	for range 2 {
		pm := readPublished(ctx, t, consumer)
		got[pm.Key] = pm
	}

	ng, ok := got["NG-CHOL-2025"]
	require.True(t, ok, "nigeria event published")
	assert.Equal(t, "Nigeria", ng.Headers["country"])
	assert.Equal(t, "Cholera", ng.Headers["disease"])
	assert.Equal(t, domain.Grade3, ng.Headers["grade"])
	_, err = time.Parse(time.RFC3339, ng.Headers["published_at"])
	assert.NoError(t, err, "published_at should be valid RFC3339")
	assert.Equal(t, 1250, ng.Event.Cases)
	assert.Equal(t, 37, ng.Event.Deaths)
	assert.Equal(t, "2025-11-03", ng.Event.ReportDate)

	ke, ok := got["KE-MEAS-2025"]
	require.True(t, ok, "kenya event published")
	assert.Equal(t, domain.Grade2, ke.Event.Grade)

	// A second request inside the freshness window is served from the store
	// and publishes nothing new.
	again, err := orch.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.SourceDatabaseCache, again.Metadata.Source)
	assert.Len(t, again.Events, 2)
}
