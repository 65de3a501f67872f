package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/pipeline"
	"github.com/nao1215/sitecrawl/internal/report"
	"github.com/nao1215/sitecrawl/internal/transport"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <start-url>...",
		Short: "Crawl a website starting from one or more seed URLs",
		Long: `Crawl fetches the pages of a website, starting from a seed URL.

Only pages on the seed's host are followed. Links whose path contains
"product" are visited first. robots.txt is honored: a site whose robots.txt
cannot be retrieved is not crawled at all. Failed pages are counted as
errors and never retried.

The crawl stops when the page budget is reached or when no unvisited link
is left. Press Ctrl+C to stop early; the pages crawled so far are still
saved.

Examples:
  # Crawl up to 50 pages
  sitecrawl crawl https://web-scraping.dev/products

  # Crawl 200 pages, 4 at a time, half a second apart
  sitecrawl crawl -p 200 -w 4 -d 500ms https://example.com/

  # Crawl two sites at once (results-<host>.json per site)
  sitecrawl crawl https://example.com/ https://example.org/

  # Markdown summary to a file, results somewhere else
  sitecrawl crawl -m --report-file report.md -o out/pages.json https://example.com/

Configuration file (.sitecrawl) example:
  defaults:
    delay: 1s
  sites:
    example.com:
      cookie: "session=abc123"
      maxPages: 100
      ignorePatterns:
        - "/logout*"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to crawl per seed")
	cmd.Flags().DurationP("delay", "d", config.DefaultCrawlDelay,
		"Minimum interval between requests to the same host (0 disables)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of pages fetched in parallel per seed")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of seeds crawled concurrently")
	cmd.Flags().StringP("user-agent", "A", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	cmd.Flags().StringP("proxy", "x", "",
		"Route requests through a SOCKS5 proxy (e.g., 127.0.0.1:1080)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitecrawl in current or home directory)")

	// Output flags
	cmd.Flags().StringP("output", "o", config.DefaultResultsFile,
		"Results file for the crawled pages")
	cmd.Flags().String("report-file", "",
		"Write the crawl summary to this file instead of stdout")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON summary (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown summary (mutually exclusive with --json)")
	cmd.Flags().Bool("no-db", false,
		"Do not store the run in the history database")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd)
	slog.SetDefault(logger)

	// Ctrl+C cancels the crawl; the pipeline still saves partial results.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout())
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.ResultsFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	cfg.DBDir = getDBDir(cmd)
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// An explicitly named file must exist; a missing default file is fine.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	cfg.StartURLs = uniqueSeeds(args)
	return cfg, nil
}

// runCrawl crawls every seed and prints one summary per seed.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	if cfg.ProxyAddress != "" {
		if err := checkProxy(ctx, cfg); err != nil {
			return err
		}
	}

	var db *database.CrawlDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	clients, err := buildClients(cfg)
	if err != nil {
		return err
	}

	progress := &lockedWriter{w: out}
	multipleSeeds := len(cfg.StartURLs) > 1
	resultsFiles := resultsFilesBySeed(cfg)

	factory := func(seed string) *pipeline.Pipeline {
		return createPipelineForSeed(cfg, seed, clients[seed], db, progress, resultsFiles[seed], logger)
	}

	bp := pipeline.NewBatchProcessor(factory,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	reports, batchErr := bp.ProcessBatch(ctx, cfg.StartURLs)
	if multipleSeeds {
		fmt.Fprintf(out, "\nCrawled %d seeds in %s\n", len(reports), time.Since(startTime).Round(time.Millisecond))
	}

	if err := outputReports(cfg, reports, out); err != nil {
		return err
	}

	if errors.Is(batchErr, context.Canceled) {
		fmt.Fprintln(out, "Crawl interrupted; partial results were saved.")
	}

	return crawlErrors(reports)
}

// checkProxy verifies that the configured SOCKS5 proxy answers.
func checkProxy(ctx context.Context, cfg *config.Config) error {
	client, err := transport.NewClient(
		transport.WithProxy(cfg.ProxyAddress),
		transport.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := client.CheckProxy(ctx); err != nil {
		return fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)", err, cfg.ProxyAddress)
	}
	return nil
}

// buildClients creates one HTTP client per seed. Each client carries the
// cookie and headers configured for its seed's host and sends them to that
// host only.
func buildClients(cfg *config.Config) (map[string]*http.Client, error) {
	clients := make(map[string]*http.Client, len(cfg.StartURLs))
	for _, seed := range cfg.StartURLs {
		host := seedHost(seed)
		site := cfg.SiteFor(host)

		client, err := transport.NewClient(
			transport.WithProxy(cfg.ProxyAddress),
			transport.WithTimeout(cfg.Timeout),
			transport.WithCookie(site.Cookie),
			transport.WithHeaders(site.Headers),
			transport.WithScopeHost(host),
		)
		if err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
		clients[seed] = client.NewHTTPClient()
	}
	return clients, nil
}

// createPipelineForSeed creates the crawl pipeline for one seed, applying
// the site configuration of the seed's host.
func createPipelineForSeed(
	cfg *config.Config,
	seed string,
	client *http.Client,
	db *database.CrawlDB,
	progress io.Writer,
	resultsFile string,
	logger *slog.Logger,
) *pipeline.Pipeline {
	host := seedHost(seed)
	site := cfg.SiteFor(host)

	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger.With("host", host)),
		pipeline.WithContinueOnError(true),
	}

	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineMaxPages(cfg.MaxPagesFor(host)),
		pipeline.WithPipelineCrawlDelay(cfg.CrawlDelayFor(host)),
		pipeline.WithPipelineWorkers(cfg.Workers),
		pipeline.WithPipelineUserAgent(cfg.UserAgent),
		pipeline.WithPipelineTimeout(cfg.Timeout),
		pipeline.WithPipelineMaxBodySize(cfg.MaxBodySize),
		pipeline.WithPipelineResultsFile(resultsFile),
		pipeline.WithPipelineProgress(progress),
	}
	if len(site.IgnorePatterns) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineIgnorePatterns(site.IgnorePatterns))
	}
	if len(site.FollowPatterns) > 0 {
		configOpts = append(configOpts, pipeline.WithPipelineFollowPatterns(site.FollowPatterns))
	}
	if db != nil {
		configOpts = append(configOpts, pipeline.WithPipelineSaver(db))
	}

	return pipeline.DefaultPipeline(client, pipelineOpts, configOpts...)
}

// outputReports writes the summaries in the requested format, in seed order.
func outputReports(cfg *config.Config, reports []*model.CrawlReport, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		f, err := createReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	format := report.FormatText
	switch {
	case cfg.JSONReport:
		format = report.FormatJSON
	case cfg.MarkdownReport:
		format = report.FormatMarkdown
	}

	w := report.NewWriter(output, format, getVersion(), cfg.Verbose)
	for _, r := range reports {
		if _, err := w.Write(r); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	return nil
}

// createReportFile creates the summary file and its parent directories.
func createReportFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// crawlErrors joins the pipeline errors of all reports.
// Per-page failures are not errors; they are counted in the metrics.
func crawlErrors(reports []*model.CrawlReport) error {
	var errs []error
	for _, r := range reports {
		if r.Error != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Seed, r.Error))
		}
	}
	return errors.Join(errs...)
}

// seedHost returns the host of a validated seed URL.
func seedHost(seed string) string {
	u, err := url.Parse(strings.TrimSpace(seed))
	if err != nil {
		return ""
	}
	return u.Host
}

// uniqueSeeds drops repeated seed URLs, keeping the first occurrence.
func uniqueSeeds(seeds []string) []string {
	seen := make(map[string]bool, len(seeds))
	unique := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		if seen[seed] {
			continue
		}
		seen[seed] = true
		unique = append(unique, seed)
	}
	return unique
}

// resultsFilesBySeed assigns every seed its own results file. Seeds on the
// same host get numbered files so that concurrent crawls never share one.
func resultsFilesBySeed(cfg *config.Config) map[string]string {
	hosts := make([]string, len(cfg.StartURLs))
	for i, seed := range cfg.StartURLs {
		hosts[i] = seedHost(seed)
	}
	paths := report.ResultsFiles(cfg.ResultsFile, hosts)

	files := make(map[string]string, len(paths))
	for i, seed := range cfg.StartURLs {
		files[seed] = paths[i]
	}
	return files
}

// lockedWriter serializes writes from concurrent crawls so that visit
// lines are never interleaved mid-line.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// Write implements io.Writer.
func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
