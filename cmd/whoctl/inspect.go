package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/source"
	"github.com/couchcryptid/outbreak-data-etl/internal/adapter/workbook"
	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func getInspectCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Fetch the source and report its sheets and columns",
		Long: `Download the source workbook once and report, for every sheet, the
columns it carries, whether the required country and disease columns
resolve, and how many rows would survive normalization.

Nothing is written to the durable cache.

Examples:
  whoctl inspect
  whoctl inspect --url https://docs.google.com/spreadsheets/d/<id>/edit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd.Context(), cmd.OutOrStdout(), s)
		},
	}
}

type sheetReport struct {
	Name    string
	Rows    int
	Usable  int
	Columns []string
	Missing []domain.Field
}

func runInspect(ctx context.Context, out io.Writer, s settings) error {
	client := source.NewClient(s.fetchTimeout(), s.logger())

	dl, err := client.Fetch(ctx, s.sourceURL())
	if err != nil {
		return err
	}
	sheets, err := workbook.Read(dl.Body)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Source:  %s\n", dl.URL)
	fmt.Fprintf(out, "Format:  %s (%s)\n", workbook.Detect(dl.Body), dl.ContentType)
	fmt.Fprintf(out, "Fetched: %s in %s\n", humanize.Bytes(uint64(len(dl.Body))), dl.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Sheets:  %d\n", len(sheets))

	total := 0
	for _, sh := range sheets {
		r := inspectSheet(sh)
		total += r.Usable
		writeSheetReport(out, r)
	}
	fmt.Fprintf(out, "\nUsable events: %s\n", humanize.Comma(int64(total)))
	return nil
}

func inspectSheet(sh domain.Sheet) sheetReport {
	res := domain.NewNormalizer(time.Now()).NormalizeSheets([]domain.Sheet{sh})
	cols := columns(sh.Rows)
	return sheetReport{
		Name:    sh.Name,
		Rows:    len(sh.Rows),
		Usable:  len(res.Events),
		Columns: cols,
		Missing: domain.MissingRequired(cols),
	}
}

func writeSheetReport(out io.Writer, r sheetReport) {
	fmt.Fprintf(out, "\n[%s]\n", r.Name)
	fmt.Fprintf(out, "  rows:    %s (%s usable)\n", humanize.Comma(int64(r.Rows)), humanize.Comma(int64(r.Usable)))
	fmt.Fprintf(out, "  columns: %s\n", strings.Join(r.Columns, ", "))
	if len(r.Missing) == 0 {
		fmt.Fprintln(out, "  required columns: ok")
		return
	}
	names := make([]string, len(r.Missing))
	for i, f := range r.Missing {
		names[i] = string(f)
	}
	fmt.Fprintf(out, "  required columns: missing %s\n", strings.Join(names, ", "))
}

// columns returns every header seen across rows, sorted.
func columns(rows []domain.RawRow) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
