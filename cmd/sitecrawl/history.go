package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/report"
)

// historyTimeLayout is the date format of the run listing.
const historyTimeLayout = "2006-01-02 15:04:05"

// NewHistoryCmd creates the history command.
// This command shows the crawl runs stored in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [host]",
		Short: "Show stored crawl runs",
		Long: `History lists the crawl runs stored in the history database.

Without arguments it lists every crawled host. With a host (or any URL on
that host) it lists the runs for that host, newest first.

Examples:
  # List crawled hosts
  sitecrawl history

  # List runs for a host
  sitecrawl history example.com

  # Show one run with all of its pages
  sitecrawl history --run-id 3

  # Show one run as Markdown
  sitecrawl history --run-id 3 -m

  # Delete a run
  sitecrawl history --delete 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-hosts", "L", false,
		"List all crawled hosts in the database")
	cmd.Flags().Int64P("run-id", "r", 0,
		"Show a single run by ID")
	cmd.Flags().Int64("delete", 0,
		"Delete a run by ID")
	cmd.Flags().BoolP("json", "j", false,
		"Output the run in JSON format (with --run-id)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output the run in Markdown format (with --run-id)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	listHosts, err := flags.GetBool("list-hosts")
	if err != nil {
		return err
	}
	runID, err := flags.GetInt64("run-id")
	if err != nil {
		return err
	}
	deleteID, err := flags.GetInt64("delete")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return errors.New("--json and --markdown cannot be used together")
	}

	// Validate arguments before opening the database.
	var host string
	if len(args) == 1 {
		host, err = normalizeHost(args[0])
		if err != nil {
			return err
		}
	}

	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case deleteID > 0:
		if err := db.DeleteRun(ctx, deleteID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted run %d\n", deleteID)
		return nil
	case runID > 0:
		return showRun(ctx, db, runID, out, jsonOutput, markdownOutput, getBoolFlag(cmd, "verbose"))
	case listHosts || host == "":
		return listCrawledHosts(ctx, db, out)
	default:
		return listRunHistory(ctx, db, host, out)
	}
}

// openHistoryDB opens the existing history database.
// Reading commands never create a database.
func openHistoryDB(cmd *cobra.Command) (*database.CrawlDB, error) {
	db, err := database.Open(getDBDir(cmd), database.Options{EnableWAL: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// normalizeHost accepts a bare host or a URL and returns the lowercase host.
func normalizeHost(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("host is required")
	}
	if strings.Contains(arg, "://") {
		u, err := url.Parse(arg)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("invalid host: %s", arg)
		}
		arg = u.Host
	}
	return strings.ToLower(strings.TrimSuffix(arg, "/")), nil
}

// listCrawledHosts lists all hosts that have runs in the database.
func listCrawledHosts(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	hosts, err := db.ListHosts(ctx)
	if err != nil {
		return err
	}

	if len(hosts) == 0 {
		fmt.Fprintln(out, "No crawled hosts found in the database.")
		fmt.Fprintln(out, "\nUse 'sitecrawl crawl <start-url>' to crawl a site.")
		return nil
	}

	fmt.Fprintf(out, "Crawled hosts (%d):\n\n", len(hosts))
	for _, host := range hosts {
		fmt.Fprintf(out, "  • %s\n", host)
	}
	fmt.Fprintln(out, "\nUse 'sitecrawl history <host>' to see the runs for a host.")

	return nil
}

// listRunHistory lists all runs for a host.
func listRunHistory(ctx context.Context, db *database.CrawlDB, host string, out io.Writer) error {
	runs, err := db.ListRuns(ctx, host)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintf(out, "No crawl history found for %s\n", host)
		fmt.Fprintln(out, "\nUse 'sitecrawl crawl' to crawl this site.")
		return nil
	}

	fmt.Fprintf(out, "Crawl history for %s (%d runs):\n\n", host, len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-18s  %6s  %6s  %6s\n", "ID", "Date", "State", "Pages", "Errors", "Denied")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 74))

	for _, run := range runs {
		fmt.Fprintf(out, "  %-6d  %-20s  %-18s  %6d  %6d  %6d\n",
			run.ID,
			run.StartedAt.Local().Format(historyTimeLayout),
			run.State,
			run.PagesCrawled,
			run.Errors,
			run.RobotsDenied,
		)
	}

	fmt.Fprintln(out, "\nUse 'sitecrawl history --run-id <id>' to show a run.")
	fmt.Fprintln(out, "Use 'sitecrawl compare <host>' to compare the latest two runs.")

	return nil
}

// showRun prints one stored run with its pages.
func showRun(ctx context.Context, db *database.CrawlDB, id int64, out io.Writer, jsonOutput, markdownOutput, verbose bool) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}

	format := report.FormatText
	switch {
	case jsonOutput:
		format = report.FormatJSON
	case markdownOutput:
		format = report.FormatMarkdown
	}

	if _, err := report.NewWriter(out, format, getVersion(), verbose).Write(run); err != nil {
		return fmt.Errorf("failed to write run: %w", err)
	}
	return nil
}
