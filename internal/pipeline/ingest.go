package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/couchcryptid/outbreak-data-etl/internal/observability"
)

// Fetcher downloads the source workbook.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (domain.Download, error)
}

// SheetDecoder turns downloaded bytes into sheets.
type SheetDecoder interface {
	Decode(data []byte) ([]domain.Sheet, error)
}

// Publisher forwards a freshly synced event set downstream.
type Publisher interface {
	Publish(ctx context.Context, events []domain.OutbreakEvent) error
}

// Ingestion is the product of one fetch-decode-normalize pass.
type Ingestion struct {
	Events    []domain.OutbreakEvent
	Sheets    []string
	Rows      int
	Dropped   int
	SourceURL string // effective URL after rewriting
	Bytes     int
}

// Ingestor runs the fetch, decode, normalize and enrich stages.
type Ingestor struct {
	fetcher  Fetcher
	decoder  SheetDecoder
	geocoder domain.Geocoder
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewIngestor creates an Ingestor. Pass a nil geocoder to disable enrichment.
func NewIngestor(f Fetcher, d SheetDecoder, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	return &Ingestor{
		fetcher:  f,
		decoder:  d,
		geocoder: geocoder,
		logger:   logger,
		metrics:  metrics,
	}
}

// Ingest fetches url and normalizes every sheet using now as the run clock.
// Errors are *domain.FetchError or *domain.DecodeError; a workbook with no
// usable rows is a DecodeError wrapping domain.ErrNoUsableRows.
func (i *Ingestor) Ingest(ctx context.Context, url string, now time.Time) (Ingestion, error) {
	dl, err := i.fetcher.Fetch(ctx, url)
	if err != nil {
		return Ingestion{}, err
	}
	i.metrics.FetchDuration.Observe(dl.Duration.Seconds())
	i.metrics.FetchedBytes.Add(float64(len(dl.Body)))

	sheets, err := i.decoder.Decode(dl.Body)
	if err != nil {
		return Ingestion{}, err
	}

	res := domain.NewNormalizer(now).NormalizeSheets(sheets)
	i.metrics.RowsRead.Add(float64(res.Rows))
	i.metrics.RowsDropped.Add(float64(len(res.Dropped)))
	for _, d := range res.Dropped {
		i.logger.Info("filtered row", "sheet", d.Sheet, "row", d.Row, "reason", d.Reason)
	}

	if len(res.Events) == 0 {
		return Ingestion{}, &domain.DecodeError{Err: domain.ErrNoUsableRows}
	}

	if i.geocoder != nil {
		for n := range res.Events {
			res.Events[n] = domain.EnrichWithGeocoding(ctx, res.Events[n], i.geocoder, i.logger)
		}
	}

	i.logger.Info("workbook normalized",
		"sheets", len(res.Sheets),
		"rows", res.Rows,
		"events", len(res.Events),
		"dropped", len(res.Dropped),
	)
	return Ingestion{
		Events:    res.Events,
		Sheets:    res.Sheets,
		Rows:      res.Rows,
		Dropped:   len(res.Dropped),
		SourceURL: dl.URL,
		Bytes:     len(dl.Body),
	}, nil
}
