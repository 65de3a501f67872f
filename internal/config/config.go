package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultMaxPages is the page budget of one crawl.
	DefaultMaxPages = 50

	// DefaultTimeout bounds a single HTTP request. Pages that do not answer
	// within it count as errors and are not retried.
	DefaultTimeout = 10 * time.Second

	// DefaultCrawlDelay is the minimum interval between two page fetches to
	// the same host.
	DefaultCrawlDelay = 1 * time.Second

	// DefaultWorkers of 1 keeps the crawl sequential and deterministic.
	DefaultWorkers = 1

	// DefaultBatchSize is the number of seeds crawled at the same time when
	// several start URLs are given.
	DefaultBatchSize = 4

	// DefaultUserAgent identifies sitecrawl in HTTP requests and is the agent
	// robots.txt rules are looked up for when no other agent is configured.
	DefaultUserAgent = "sitecrawl/1.0 (+https://github.com/nao1215/sitecrawl)"

	// DefaultMaxBodySize limits the response body size to read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultResultsFile is where crawled page records are written.
	DefaultResultsFile = "results.json"

	// AppName is the application name used for XDG directory paths.
	AppName = "sitecrawl"
)

// Config holds all configuration options for sitecrawl.
// It is populated from CLI flags and passed down explicitly; there is no
// global configuration state.
//
// Design decision: We use a single flat struct instead of nested structs
// because the options are few and all of them are set from one command.
type Config struct {
	// StartURLs are the seed URLs. Each seed is crawled independently and
	// only pages on the seed's host are followed.
	StartURLs []string

	// MaxPages is the page budget per seed. Must be positive.
	MaxPages int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// CrawlDelay is the minimum interval between two page fetches to the
	// same host. Zero disables the delay.
	CrawlDelay time.Duration

	// Workers is the number of pages fetched in parallel within one crawl.
	Workers int

	// BatchSize is the number of seeds crawled concurrently.
	BatchSize int

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes.
	// Zero uses the default.
	MaxBodySize int64

	// ProxyAddress routes requests through a SOCKS5 proxy ("host:port").
	// Empty means direct connections.
	ProxyAddress string

	// ResultsFile is the path of the JSON file that receives the page records.
	// With more than one seed the host is inserted before the extension.
	ResultsFile string

	// ReportFile is the output file for the crawl summary.
	// When empty the summary is written to stdout.
	ReportFile string

	// JSONReport selects the JSON summary. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown summary. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// DBDir is the directory of the SQLite history database.
	// Defaults to the XDG data directory (~/.local/share/sitecrawl on Linux).
	DBDir string

	// SaveToDB stores every crawl in the history database.
	SaveToDB bool

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON lines.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .sitecrawl is searched in the current directory and then in
	// the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds per-host settings loaded from the configuration file.
	// Nil when no file was found.
	SiteConfigs *File
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero. This also serves as
// documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		MaxPages:    DefaultMaxPages,
		Timeout:     DefaultTimeout,
		CrawlDelay:  DefaultCrawlDelay,
		Workers:     DefaultWorkers,
		BatchSize:   DefaultBatchSize,
		UserAgent:   DefaultUserAgent,
		MaxBodySize: DefaultMaxBodySize,
		ResultsFile: DefaultResultsFile,
		DBDir:       XDGDataDir(),
		SaveToDB:    true,
	}
}

// XDGDataDir returns the XDG data directory for sitecrawl.
// On Linux: ~/.local/share/sitecrawl
// On macOS: ~/Library/Application Support/sitecrawl
// On Windows: %LOCALAPPDATA%\sitecrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
//
// Design decision: We validate once after flag parsing so that a bad value
// fails before any request is sent.
func (c *Config) Validate() error {
	if len(c.StartURLs) == 0 {
		return ErrNoTarget
	}
	for _, raw := range c.StartURLs {
		if !IsValidStartURL(raw) {
			return fmt.Errorf("%w: %q", ErrInvalidStartURL, raw)
		}
	}

	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}

// IsValidStartURL reports whether raw is an absolute http or https URL
// with a host.
func IsValidStartURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SiteFor returns the effective site settings for host: the file defaults
// merged with the host's own entry. It returns a zero SiteConfig when no
// configuration file was loaded.
func (c *Config) SiteFor(host string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(host)
}

// MaxPagesFor returns the page budget for host, honoring a site override.
func (c *Config) MaxPagesFor(host string) int {
	if site := c.SiteFor(host); site.MaxPages > 0 {
		return site.MaxPages
	}
	return c.MaxPages
}

// CrawlDelayFor returns the crawl delay for host, honoring a site override.
func (c *Config) CrawlDelayFor(host string) time.Duration {
	if site := c.SiteFor(host); site.Delay != nil {
		return *site.Delay
	}
	return c.CrawlDelay
}
