package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/crawler"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/report"
)

// Crawler crawls one site starting from a seed URL.
// *crawler.Spider is the production implementation.
type Crawler interface {
	Crawl(ctx context.Context, startURL string) (*model.CrawlReport, error)
}

// RunSaver stores a finished run. *database.CrawlDB is the production
// implementation.
type RunSaver interface {
	SaveRun(ctx context.Context, report *model.CrawlReport) (int64, error)
}

// CrawlStep runs the crawl loop for the report's seed and copies the
// outcome into the report.
type CrawlStep struct {
	// crawler performs the crawl.
	crawler Crawler

	// logger for structured logging.
	logger *slog.Logger
}

// NewCrawlStep creates a new crawling step.
func NewCrawlStep(c Crawler, logger *slog.Logger) *CrawlStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlStep{crawler: c, logger: logger}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
// A cancelled crawl is not an error: the partial report is kept and the
// state says Cancelled.
func (s *CrawlStep) Do(ctx context.Context, r *model.CrawlReport) error {
	if s.crawler == nil {
		return ErrNoSpider
	}

	result, err := s.crawler.Crawl(ctx, r.Seed)
	if err != nil {
		return fmt.Errorf("crawl of %s failed: %w", r.Seed, err)
	}

	r.Seed = result.Seed
	r.SeedHost = result.SeedHost
	r.StartedAt = result.StartedAt
	r.FinishedAt = result.FinishedAt
	r.State = result.State
	r.Records = result.Records
	r.Metrics = result.Metrics

	s.logger.Info("crawl completed",
		"seed", r.Seed,
		"state", string(r.State),
		"pages_crawled", r.Metrics.PagesCrawled,
	)
	return nil
}

// SaveResultsStep writes the page records to the results file.
type SaveResultsStep struct {
	// path is the results file path.
	path string

	// logger for structured logging.
	logger *slog.Logger
}

// NewSaveResultsStep creates a step that writes records to path.
func NewSaveResultsStep(path string, logger *slog.Logger) *SaveResultsStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveResultsStep{path: path, logger: logger}
}

// Name returns the step name.
func (s *SaveResultsStep) Name() string {
	return "save_results"
}

// RunsOnCancel reports that partial results are written after an interrupt.
func (s *SaveResultsStep) RunsOnCancel() bool {
	return true
}

// Do writes the results file and records its path in the report.
func (s *SaveResultsStep) Do(_ context.Context, r *model.CrawlReport) error {
	if err := report.WriteResultsFile(s.path, r.Records); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	r.ResultsFile = s.path
	s.logger.Info("results saved", "path", s.path, "records", len(r.Records))
	return nil
}

// SaveDatabaseStep stores the run and its pages in the history database.
type SaveDatabaseStep struct {
	// saver stores the run.
	saver RunSaver

	// logger for structured logging.
	logger *slog.Logger
}

// NewSaveDatabaseStep creates a step that stores runs through saver.
func NewSaveDatabaseStep(saver RunSaver, logger *slog.Logger) *SaveDatabaseStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveDatabaseStep{saver: saver, logger: logger}
}

// Name returns the step name.
func (s *SaveDatabaseStep) Name() string {
	return "save_database"
}

// RunsOnCancel reports that interrupted runs are stored too.
func (s *SaveDatabaseStep) RunsOnCancel() bool {
	return true
}

// Do stores the run. The write is detached from ctx cancellation so an
// interrupted crawl can still be saved.
func (s *SaveDatabaseStep) Do(ctx context.Context, r *model.CrawlReport) error {
	id, err := s.saver.SaveRun(context.WithoutCancel(ctx), r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	s.logger.Info("run saved to history", "run_id", id, "host", r.SeedHost)
	return nil
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// MaxPages is the page budget.
	MaxPages int

	// CrawlDelay is the minimum interval between page fetches to the host.
	CrawlDelay time.Duration

	// Workers is the number of pages fetched in parallel.
	Workers int

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// Timeout bounds a single fetch.
	Timeout time.Duration

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// IgnorePatterns are URL path patterns to skip during crawling.
	IgnorePatterns []string

	// FollowPatterns are URL path patterns to follow during crawling.
	FollowPatterns []string

	// ResultsFile is where records are written. Empty skips the step.
	ResultsFile string

	// Saver stores the run in the history database. Nil skips the step.
	Saver RunSaver

	// Progress receives the "Visit #n: url" lines. Nil disables them.
	Progress io.Writer
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineMaxPages sets the page budget.
func WithPipelineMaxPages(maxPages int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxPages = maxPages
	}
}

// WithPipelineCrawlDelay sets the minimum interval between page fetches.
func WithPipelineCrawlDelay(delay time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.CrawlDelay = delay
	}
}

// WithPipelineWorkers sets the number of pages fetched in parallel.
func WithPipelineWorkers(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Workers = n
	}
}

// WithPipelineUserAgent sets the User-Agent header for HTTP requests.
func WithPipelineUserAgent(userAgent string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.UserAgent = userAgent
	}
}

// WithPipelineTimeout sets the per-fetch timeout.
func WithPipelineTimeout(d time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Timeout = d
	}
}

// WithPipelineMaxBodySize sets the maximum response body size in bytes.
func WithPipelineMaxBodySize(maxBodySize int64) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxBodySize = maxBodySize
	}
}

// WithPipelineIgnorePatterns sets URL patterns to skip during crawling.
func WithPipelineIgnorePatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.IgnorePatterns = patterns
	}
}

// WithPipelineFollowPatterns sets URL patterns to follow during crawling.
func WithPipelineFollowPatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.FollowPatterns = patterns
	}
}

// WithPipelineResultsFile sets the results file path.
func WithPipelineResultsFile(path string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.ResultsFile = path
	}
}

// WithPipelineSaver stores every run through saver.
func WithPipelineSaver(saver RunSaver) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Saver = saver
	}
}

// WithPipelineProgress sets the writer for per-URL visit lines.
func WithPipelineProgress(w io.Writer) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Progress = w
	}
}

// DefaultPipeline creates the crawl pipeline: crawl, then save the results
// file, then store the run in the history database.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts pipeline config options (WithPipelineMaxPages, etc).
// The pipeline logger is also handed to the spider and the steps.
func DefaultPipeline(client *http.Client, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		MaxPages:    config.DefaultMaxPages,
		CrawlDelay:  config.DefaultCrawlDelay,
		Workers:     config.DefaultWorkers,
		UserAgent:   config.DefaultUserAgent,
		Timeout:     config.DefaultTimeout,
		MaxBodySize: config.DefaultMaxBodySize,
		ResultsFile: config.DefaultResultsFile,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	spiderOpts := []crawler.SpiderOption{
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithDelay(cfg.CrawlDelay),
		crawler.WithWorkers(cfg.Workers),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithTimeout(cfg.Timeout),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithLogger(p.logger),
	}
	if len(cfg.IgnorePatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithIgnorePatterns(cfg.IgnorePatterns))
	}
	if len(cfg.FollowPatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithFollowPatterns(cfg.FollowPatterns))
	}
	if cfg.Progress != nil {
		spiderOpts = append(spiderOpts, crawler.WithProgress(cfg.Progress))
	}

	p.AddStep(NewCrawlStep(crawler.NewSpider(client, spiderOpts...), p.logger))
	if cfg.ResultsFile != "" {
		p.AddStep(NewSaveResultsStep(cfg.ResultsFile, p.logger))
	}
	if cfg.Saver != nil {
		p.AddStep(NewSaveDatabaseStep(cfg.Saver, p.logger))
	}

	return p
}
