package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nao1215/deepresearch/internal/config"
	"github.com/nao1215/deepresearch/internal/database"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past research runs",
		Long: `History lists research runs recorded in the archive database.

Each run shows its topic, working directory, status, and fetch counts.
Runs executed with --no-archive are not recorded.

Examples:
  # List all recorded runs
  deepresearch history

  # Show the pages archived for run 3
  deepresearch history --run 3

  # Check whether a URL was archived within the cache window
  deepresearch history --url https://example.com/page

  # Show run 3's archived record for one URL
  deepresearch history --run 3 --url https://example.com/page

  # Machine-readable output
  deepresearch history --json`,
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output run history as JSON")
	cmd.Flags().Int64P("run", "r", 0, "Show the archived pages of one run instead of the run list")
	cmd.Flags().String("url", "", "Inspect the archive for one URL (combine with --run for the full record)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	// Missing database means no runs were recorded yet, not an error
	dbDir := config.XDGDataDir()
	if _, err := os.Stat(filepath.Join(dbDir, database.DatabaseFile)); os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "No research runs recorded yet.")
		return nil
	}

	db, err := database.Open(dbDir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open archive database: %w", err)
	}
	defer db.Close()

	runID, err := cmd.Flags().GetInt64("run")
	if err != nil {
		return err
	}
	rawURL, err := cmd.Flags().GetString("url")
	if err != nil {
		return err
	}
	switch {
	case runID > 0 && rawURL != "":
		return showURLRecord(cmd, db, runID, rawURL, asJSON)
	case rawURL != "":
		return showURLFreshness(cmd, db, rawURL)
	case runID > 0:
		return showRunRecords(cmd, db, runID, asJSON)
	}

	runs, err := db.ListRuns(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No research runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tFETCHED\tFAILED\tTOPIC")
	for _, run := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n",
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.Status,
			run.PagesFetched,
			run.PagesFailed,
			topicTitle(run.Topic),
		)
	}
	return w.Flush()
}

// showRunRecords prints the archived pages of one run.
func showRunRecords(cmd *cobra.Command, db *database.ResearchDB, runID int64, asJSON bool) error {
	records, err := db.GetRunRecords(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("failed to load records for run %d: %w", runID, err)
	}

	if asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No pages archived for run %d.\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FETCHED\tTYPE\tCACHED\tURL")
	for _, record := range records {
		cached := ""
		if record.FromCache {
			cached = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			record.FetchedAt.Local().Format(time.DateTime),
			record.ContentType,
			cached,
			record.URL,
		)
	}
	return w.Flush()
}

// showURLRecord prints one run's archived record for a URL.
func showURLRecord(cmd *cobra.Command, db *database.ResearchDB, runID int64, rawURL string, asJSON bool) error {
	record, err := db.GetCrawlRecord(cmd.Context(), runID, rawURL)
	if err != nil {
		return fmt.Errorf("failed to load record for %s: %w", rawURL, err)
	}
	if record == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "No archived record for %s in run %d.\n", rawURL, runID)
		return nil
	}

	if asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(record)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\t%s\n", record.URL)
	fmt.Fprintf(w, "TITLE\t%s\n", record.Title)
	fmt.Fprintf(w, "TYPE\t%s\n", record.ContentType)
	fmt.Fprintf(w, "FETCHED\t%s\n", record.FetchedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "CACHED\t%t\n", record.FromCache)
	return w.Flush()
}

// showURLFreshness reports whether a URL was archived within the cache
// window by any run.
func showURLFreshness(cmd *cobra.Command, db *database.ResearchDB, rawURL string) error {
	recent, err := db.HasRecentCrawl(cmd.Context(), rawURL, config.DefaultCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to check archive for %s: %w", rawURL, err)
	}
	if recent {
		fmt.Fprintf(cmd.OutOrStdout(), "%s was archived within the last %s.\n", rawURL, config.DefaultCacheTTL)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s has no archived fetch within the last %s.\n", rawURL, config.DefaultCacheTTL)
	}
	return nil
}

// topicTitle reduces a topic document to a single display line.
func topicTitle(topic string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(topic), "\n")
	line = strings.TrimSpace(strings.TrimPrefix(line, "#"))
	const maxLen = 60
	if len(line) > maxLen {
		return line[:maxLen-3] + "..."
	}
	return line
}
