package main

import (
	"encoding/json"

	"github.com/couchcryptid/outbreak-data-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

func getFallbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fallback",
		Short: "Print the bundled static dataset as JSON",
		Long: `Print the dataset served when both the live source and the durable
cache are unavailable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			events, err := pipeline.StaticEvents()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		},
	}
}
