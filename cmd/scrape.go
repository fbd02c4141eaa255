package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

// errScrapeFailed is returned when the run produced an error record. The record is still printed.
var errScrapeFailed = errors.New("scrape failed")

// newScrapeCmd creates the 'scrape' subcommand, which extracts a single URL and prints the record as JSON.
func newScrapeCmd() *cobra.Command {
	var (
		mode          string
		correlationID string
	)
	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Scrapes one URL and prints the record",
		Long: `Runs one extraction in the foreground. The record is stored in the configured
backend, posted to the result webhook when one is configured, and printed to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			req, err := scrape.NewRequest(args[0], correlationID, mode)
			if err != nil {
				return fmt.Errorf("invalid request: %w", err)
			}
			record := appInstance.Scrape(cmd.Context(), req)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(record); err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			if record.Failed() {
				return fmt.Errorf("%w: %s", errScrapeFailed, record.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", `run mode; "verified" forwards the record to the verification endpoint`)
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "opaque id echoed in the webhook payload")
	return cmd
}
