package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/database"
	httpadapter "github.com/couchcryptid/outbreak-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/outbreak-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/source"
	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/workbook"
	"github.com/couchcryptid/outbreak-data-etl/internal/config"
	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/couchcryptid/outbreak-data-etl/internal/observability"
	"github.com/couchcryptid/outbreak-data-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable cache is optional; without it the service still serves live and
	// static data.
	store := openStore(ctx, cfg, logger)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var (
		publisher pipeline.Publisher
		writer    *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}

	fetcher := source.NewClient(cfg.FetchTimeout, logger)
	ingestor := pipeline.NewIngestor(fetcher, workbook.Reader{}, geocoder, logger, metrics)
	orchestrator := pipeline.New(pipeline.Options{
		SourceURL:      cfg.SourceURL,
		TTL:            cfg.CacheTTL,
		RefreshTimeout: cfg.FetchTimeout + pipeline.DefaultPersistTimeout,
	}, ingestor, store, publisher, clockwork.NewRealClock(), logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, orchestrator, fetcher, orchestrator, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// openStore returns the durable cache. A database that is down at boot is
// redialed on later use. Only a missing or malformed DATABASE_URL leaves the
// cache out.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) domain.EventStore {
	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	store, err := database.OpenReconnecting(openCtx, cfg.DatabaseURL, logger)
	if errors.Is(err, domain.ErrStoreUnavailable) {
		logger.Warn("DATABASE_URL not set, durable cache disabled")
		return nil
	}
	if err != nil {
		logger.Error("invalid DATABASE_URL, continuing without durable cache", "error", err)
		return nil
	}
	return store
}
