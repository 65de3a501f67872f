package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitecrawl/internal/model"
)

const (
	// DefaultMaxPages is the default page budget.
	DefaultMaxPages = 50

	// DefaultDelay is the default minimum interval between page fetches to the host.
	DefaultDelay = 1 * time.Second

	// DefaultWorkers keeps the crawl strictly sequential.
	DefaultWorkers = 1
)

// Spider crawls the pages of a single host, starting from a seed URL.
// It drains a prioritized frontier under a page budget, honors robots.txt
// and waits a fixed interval between fetches.
//
// A Spider holds configuration only. All crawl state lives in a crawlState
// owned by one Crawl call, so a Spider can run several crawls, even
// concurrently.
//
// Design decision: We call it "Spider" rather than "Crawler" because:
//  1. "Spider" is the traditional term for web crawlers
//  2. Distinguishes the component from the package name
//  3. Clearer in code: crawler.NewSpider() vs crawler.NewCrawler()
type Spider struct {
	// client is the HTTP client used when no Fetcher is injected.
	client *http.Client

	// fetcher retrieves pages and robots.txt files.
	fetcher Fetcher

	// maxPages is the page budget: the crawl stops once this many pages
	// have been visited.
	maxPages int

	// delay is the minimum interval between page fetches to the host.
	delay time.Duration

	// workers is the number of URLs processed in parallel. 1 is sequential.
	workers int

	// userAgent is the User-Agent header to use.
	userAgent string

	// timeout bounds one fetch.
	timeout time.Duration

	// maxBodySize limits the size of response bodies to read.
	maxBodySize int64

	// robotsAgent is the robots.txt group evaluated by the gate.
	robotsAgent string

	// ignorePatterns are URL path patterns to skip during crawling.
	ignorePatterns []string

	// followPatterns are URL path patterns to follow during crawling.
	// Empty means all in-scope URLs are followed (subject to ignorePatterns).
	followPatterns []string

	// logger receives per-URL diagnostics.
	logger *slog.Logger

	// progress receives one "Visit #n: url" line per dispatched URL.
	progress io.Writer
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxPages sets the page budget.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithDelay sets the minimum interval between page fetches.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithWorkers sets how many URLs are processed in parallel.
// Values below 1 are treated as 1.
func WithWorkers(n int) SpiderOption {
	return func(s *Spider) {
		s.workers = n
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		s.userAgent = ua
	}
}

// WithTimeout sets the per-fetch timeout.
func WithTimeout(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.timeout = d
	}
}

// WithMaxBodySize sets the maximum response body size.
func WithMaxBodySize(size int64) SpiderOption {
	return func(s *Spider) {
		s.maxBodySize = size
	}
}

// WithRobotsUserAgent sets the robots.txt group to evaluate. Defaults to "*".
func WithRobotsUserAgent(agent string) SpiderOption {
	return func(s *Spider) {
		s.robotsAgent = agent
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are queued.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProgress sets a writer that receives one line per dispatched URL.
func WithProgress(w io.Writer) SpiderOption {
	return func(s *Spider) {
		s.progress = w
	}
}

// WithFetcher replaces the HTTP fetcher. The User-Agent, timeout and body
// size options are then the fetcher's responsibility.
func WithFetcher(f Fetcher) SpiderOption {
	return func(s *Spider) {
		s.fetcher = f
	}
}

// NewSpider creates a new Spider with the given HTTP client.
// A nil client means http.DefaultClient.
func NewSpider(client *http.Client, opts ...SpiderOption) *Spider {
	s := &Spider{
		client:      client,
		maxPages:    DefaultMaxPages,
		delay:       DefaultDelay,
		workers:     DefaultWorkers,
		userAgent:   DefaultUserAgent,
		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
		robotsAgent: DefaultRobotsAgent,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.workers < 1 {
		s.workers = 1
	}
	if s.fetcher == nil {
		s.fetcher = NewHTTPFetcher(client,
			WithFetcherUserAgent(s.userAgent),
			WithFetcherTimeout(s.timeout),
			WithFetcherMaxBodySize(s.maxBodySize),
		)
	}

	return s
}

// crawlState is everything one Crawl call mutates.
type crawlState struct {
	frontier   *Frontier
	metrics    *model.Metrics
	report     *model.CrawlReport
	dispatched int
}

// Crawl crawls the host of startURL and returns the report.
//
// The crawl ends in one of three states: StateDraining when the frontier runs
// empty, StateBudgetReached when maxPages pages were visited, or
// StateCancelled when ctx is done. In every case the metrics are finalized
// and the records gathered so far are returned with a nil error.
//
// Per-URL failures never stop the crawl. The only errors returned are
// ErrInvalidStartURL, ErrInvalidMaxPages and invalid path patterns, all
// before any request.
func (s *Spider) Crawl(ctx context.Context, startURL string) (*model.CrawlReport, error) {
	start, err := ParseStartURL(startURL)
	if err != nil {
		return nil, err
	}
	if s.maxPages <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxPages, s.maxPages)
	}

	filter, err := NewLinkFilter(s.ignorePatterns, s.followPatterns)
	if err != nil {
		return nil, err
	}

	gate := NewRobotsGate(s.fetcher, WithRobotsAgent(s.robotsAgent), WithRobotsLogger(s.logger))
	proc := NewProcessor(s.fetcher, gate, start.Host,
		WithPoliteness(NewPoliteness(s.delay)),
		WithLinkFilter(filter),
	)

	st := &crawlState{
		frontier: NewFrontier(),
		metrics:  &model.Metrics{},
		report:   model.NewCrawlReport(start.String()),
	}
	st.report.SeedHost = start.Host

	startedAt := time.Now()
	st.report.StartedAt = startedAt
	st.metrics.Start(startedAt)
	st.frontier.Push(start.String(), PriorityProduct)

	s.logger.Info("starting crawl",
		"seed", start.String(),
		"max_pages", s.maxPages,
		"delay", s.delay,
		"workers", s.workers,
	)

	st.report.State = s.run(ctx, proc, st)

	finishedAt := time.Now()
	st.metrics.Finalize(finishedAt)
	st.report.FinishedAt = finishedAt
	st.report.Metrics = *st.metrics

	s.logger.Info("crawl finished",
		"seed", start.String(),
		"state", string(st.report.State),
		"pages_crawled", st.metrics.PagesCrawled,
		"errors", st.metrics.Errors,
		"robots_denied", st.metrics.RobotsDenied,
		"total_time", st.metrics.TotalTime,
	)

	return st.report, nil
}

// run drains the frontier and returns the terminal state.
func (s *Spider) run(ctx context.Context, proc *Processor, st *crawlState) model.CrawlState {
	for {
		select {
		case <-ctx.Done():
			return model.StateCancelled
		default:
		}

		if st.frontier.IsEmpty() {
			return model.StateDraining
		}

		remaining := s.maxPages - st.frontier.VisitedCount()
		if remaining <= 0 {
			return model.StateBudgetReached
		}

		wave := s.popWave(st, min(s.workers, remaining))
		if len(wave) == 0 {
			continue
		}

		outcomes := s.processWave(ctx, proc, wave)
		for _, outcome := range outcomes {
			s.apply(st, outcome)
		}
	}
}

// waveItem is one popped URL. raw is the frontier key.
type waveItem struct {
	raw string
	u   *url.URL
}

// popWave pops up to n dispatchable URLs.
func (s *Spider) popWave(st *crawlState, n int) []waveItem {
	wave := make([]waveItem, 0, n)
	for len(wave) < n {
		next, err := st.frontier.Pop()
		if err != nil {
			break
		}

		if st.frontier.IsVisited(next) {
			continue
		}

		u, err := url.Parse(next)
		if err != nil {
			s.logger.Debug("dropping unparsable URL", "url", next, "error", err)
			st.frontier.Abandon(next)
			continue
		}

		st.dispatched++
		if s.progress != nil {
			fmt.Fprintf(s.progress, "Visit #%d: %s\n", st.dispatched, next)
		}
		wave = append(wave, waveItem{raw: next, u: u})
	}
	return wave
}

// processWave processes the URLs, in parallel when the wave has more than
// one. Outcomes are returned in wave order.
func (s *Spider) processWave(ctx context.Context, proc *Processor, wave []waveItem) []Outcome {
	outcomes := make([]Outcome, len(wave))
	if len(wave) == 1 {
		outcomes[0] = proc.Process(ctx, wave[0].u)
	} else {
		var g errgroup.Group
		g.SetLimit(s.workers)
		for i, item := range wave {
			g.Go(func() error {
				outcomes[i] = proc.Process(ctx, item.u)
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // workers never return errors
	}

	for i := range outcomes {
		outcomes[i].URL = wave[i].raw
		if outcomes[i].Kind == OutcomeFetched {
			outcomes[i].Record.URL = wave[i].raw
		}
	}
	return outcomes
}

// apply records one outcome in the crawl state.
func (s *Spider) apply(st *crawlState, o Outcome) {
	switch o.Kind {
	case OutcomeFetched:
		st.frontier.MarkVisited(o.URL)
		st.report.Records = append(st.report.Records, o.Record)
		st.metrics.RecordPage()
		for _, link := range o.Links {
			st.frontier.Push(link.URL, link.Priority)
		}
		s.logger.Debug("page crawled",
			"url", o.URL,
			"title", o.Record.Title,
			"links", len(o.Links),
		)
	case OutcomePolicyDenied:
		st.frontier.Abandon(o.URL)
		st.metrics.RecordRobotsDenied()
		s.logger.Info("crawling not allowed by robots.txt", "url", o.URL, "reason", o.Reason)
	case OutcomeTransportFailure:
		st.frontier.Abandon(o.URL)
		st.metrics.RecordError()
		s.logger.Warn("failed to crawl page", "url", o.URL, "status", o.StatusCode, "error", o.Reason)
	case OutcomeCancelled:
		st.frontier.Abandon(o.URL)
	}
}

// ParseStartURL validates and normalizes a seed URL.
// The seed must be an absolute http or https URL with a host. The fragment
// is dropped and an empty path becomes "/".
func ParseStartURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidStartURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidStartURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidStartURL, raw)
	}

	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}
