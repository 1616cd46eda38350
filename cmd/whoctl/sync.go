package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/database"
	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/source"
	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/workbook"
	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/couchcryptid/outbreak-data-etl/internal/observability"
	"github.com/couchcryptid/outbreak-data-etl/internal/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func getSyncCmd(s settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one fetch, normalize and persist cycle",
		Long: `Fetch the source, normalize every sheet and replace the event set in
the durable cache, ignoring the cache freshness window. The attempt is
recorded in the sync log whether it succeeds or not.

Without --database-url (or DATABASE_URL) the cycle runs but nothing is
stored.

Examples:
  whoctl sync --database-url sqlite:///var/lib/who/who.db
  whoctl sync --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout(), s, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	return cmd
}

type syncReport struct {
	RunID     string `json:"runId"`
	SourceURL string `json:"sourceUrl"`
	Sheets    int    `json:"sheets"`
	Rows      int    `json:"rows"`
	Events    int    `json:"events"`
	Dropped   int    `json:"dropped"`
	Bytes     int    `json:"bytes"`
	Persisted bool   `json:"persisted"`
	Error     string `json:"error,omitempty"`
}

func runSync(ctx context.Context, out io.Writer, s settings, asJSON bool) error {
	logger := s.logger()
	metrics := observability.NewDetachedMetrics()

	store, err := database.Open(ctx, s.databaseURL(), logger)
	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		store = nil
	case err != nil:
		return err
	default:
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			return err
		}
	}

	ingestor := pipeline.NewIngestor(source.NewClient(s.fetchTimeout(), logger), workbook.Reader{}, nil, logger, metrics)
	orch := pipeline.New(pipeline.Options{SourceURL: s.sourceURL()}, ingestor, store, nil, clockwork.NewRealClock(), logger, metrics)

	outcome := orch.Sync(ctx)
	report := syncReport{
		RunID:     outcome.RunID,
		SourceURL: s.sourceURL(),
		Sheets:    len(outcome.Ingestion.Sheets),
		Rows:      outcome.Ingestion.Rows,
		Events:    len(outcome.Ingestion.Events),
		Dropped:   outcome.Ingestion.Dropped,
		Bytes:     outcome.Ingestion.Bytes,
		Persisted: outcome.Err == nil && outcome.PersistErr == nil,
	}

	var failure error
	switch {
	case outcome.Err != nil:
		failure = fmt.Errorf("%s stage: %w", domain.StageOf(outcome.Err), outcome.Err)
	case errors.Is(outcome.PersistErr, domain.ErrStoreUnavailable):
	case outcome.PersistErr != nil:
		failure = fmt.Errorf("persist stage: %w", outcome.PersistErr)
	}
	if failure != nil {
		report.Error = failure.Error()
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		writeSyncReport(out, report)
	}
	return failure
}

func writeSyncReport(out io.Writer, r syncReport) {
	fmt.Fprintf(out, "Run:     %s\n", r.RunID)
	fmt.Fprintf(out, "Source:  %s (%s)\n", r.SourceURL, humanize.Bytes(uint64(r.Bytes)))
	fmt.Fprintf(out, "Sheets:  %d\n", r.Sheets)
	fmt.Fprintf(out, "Rows:    %s read, %s dropped\n", humanize.Comma(int64(r.Rows)), humanize.Comma(int64(r.Dropped)))
	fmt.Fprintf(out, "Events:  %s\n", humanize.Comma(int64(r.Events)))
	switch {
	case r.Error != "":
		fmt.Fprintf(out, "Result:  failed: %s\n", r.Error)
	case r.Persisted:
		fmt.Fprintln(out, "Result:  stored")
	default:
		fmt.Fprintln(out, "Result:  not stored (no durable cache configured)")
	}
}
