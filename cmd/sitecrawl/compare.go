package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/report"
)

// NewCompareCmd creates the compare command.
// This command compares the latest run of a host with an earlier one.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <host>",
		Short: "Compare crawl runs of a site",
		Long: `Compare shows what changed between two stored crawl runs of a host.

The latest run is compared with the run before it, unless another run is
selected. The comparison lists:
- Pages found only in the latest run
- Pages that disappeared since the earlier run
- Pages whose title or content changed
- Changes in pages crawled, errors and robots denials

Examples:
  # Compare the latest two runs
  sitecrawl compare example.com

  # Compare with a specific run by ID
  sitecrawl compare --with-run-id 5 example.com

  # Compare with the first run since a date
  sitecrawl compare --since 2026-01-01 example.com

  # Output comparison in JSON format
  sitecrawl compare --json example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCompareCmd,
	}

	// Comparison target flags
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare with a specific run by ID (use 'sitecrawl history <host>' to see IDs)")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first run after this date (format: YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	return cmd
}

// compareOptions selects the runs to compare and the output format.
type compareOptions struct {
	withRunID int64
	since     string
	format    report.Format
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	// Validate arguments before opening the database.
	host, err := normalizeHost(args[0])
	if err != nil {
		return err
	}

	var opts compareOptions
	if opts.withRunID, err = cmd.Flags().GetInt64("with-run-id"); err != nil {
		return err
	}
	if opts.since, err = cmd.Flags().GetString("since"); err != nil {
		return err
	}
	if opts.withRunID > 0 && opts.since != "" {
		return errors.New("--with-run-id and --since cannot be used together")
	}

	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	switch {
	case jsonOutput && markdownOutput:
		return errors.New("--json and --markdown cannot be used together")
	case jsonOutput:
		opts.format = report.FormatJSON
	case markdownOutput:
		opts.format = report.FormatMarkdown
	default:
		opts.format = report.FormatText
	}

	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	return runComparison(cmd.Context(), db, host, opts, cmd.OutOrStdout())
}

// runComparison compares the latest run of host with the selected earlier run.
func runComparison(ctx context.Context, db *database.CrawlDB, host string, opts compareOptions, out io.Writer) error {
	runs, err := db.ListRuns(ctx, host)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		return fmt.Errorf("no crawl history found for %s", host)
	}

	if len(runs) < 2 && opts.withRunID == 0 && opts.since == "" {
		return fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
	}

	// Runs are sorted newest first; the latest is always the current one.
	currentID := runs[0].ID
	var previousID int64

	switch {
	case opts.withRunID > 0:
		previousID = opts.withRunID
		if previousID == currentID {
			return fmt.Errorf("run %d is the latest run; choose an earlier one", previousID)
		}
	case opts.since != "":
		sinceDate, err := time.ParseInLocation("2006-01-02", opts.since, time.Local)
		if err != nil {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}

		// Iterate oldest first to find the first run at or after the date.
		for i := len(runs) - 1; i >= 0; i-- {
			if !runs[i].StartedAt.Before(sinceDate) {
				previousID = runs[i].ID
				break
			}
		}
		if previousID == 0 {
			return fmt.Errorf("no runs found since %s", opts.since)
		}
		if previousID == currentID {
			return fmt.Errorf("only one run found since %s; at least 2 runs are required for comparison", opts.since)
		}
	default:
		previousID = runs[1].ID
	}

	previous, err := db.GetRun(ctx, previousID)
	if err != nil {
		return err
	}
	if previous.SeedHost != host {
		return fmt.Errorf("run %d belongs to %s, not %s", previousID, previous.SeedHost, host)
	}

	current, err := db.GetRun(ctx, currentID)
	if err != nil {
		return err
	}

	return writeComparison(out, opts.format, previous, current)
}

// writeComparison writes the difference of two runs in the given format.
func writeComparison(out io.Writer, format report.Format, previous, current *model.CrawlReport) error {
	c := report.Compare(previous, current)
	if _, err := report.NewWriter(out, format, getVersion(), false).WriteComparison(c); err != nil {
		return fmt.Errorf("failed to write comparison: %w", err)
	}
	return nil
}
