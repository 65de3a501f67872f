package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
// Changes to defaults must be intentional, so each one is pinned here.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default MaxPages is 50", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxPages != 50 {
			t.Errorf("expected MaxPages to be 50, got %d", cfg.MaxPages)
		}
	})

	t.Run("default Timeout is 10 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 10*time.Second {
			t.Errorf("expected Timeout to be 10s, got %v", cfg.Timeout)
		}
	})

	t.Run("default CrawlDelay is 1 second", func(t *testing.T) {
		t.Parallel()
		if cfg.CrawlDelay != time.Second {
			t.Errorf("expected CrawlDelay to be 1s, got %v", cfg.CrawlDelay)
		}
	})

	t.Run("default Workers is 1", func(t *testing.T) {
		t.Parallel()
		if cfg.Workers != 1 {
			t.Errorf("expected Workers to be 1, got %d", cfg.Workers)
		}
	})

	t.Run("default ResultsFile is results.json", func(t *testing.T) {
		t.Parallel()
		if cfg.ResultsFile != "results.json" {
			t.Errorf("expected ResultsFile to be results.json, got %q", cfg.ResultsFile)
		}
	})

	t.Run("history is saved to the XDG data dir by default", func(t *testing.T) {
		t.Parallel()
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB to be true")
		}
		if cfg.DBDir != XDGDataDir() {
			t.Errorf("expected DBDir %q, got %q", XDGDataDir(), cfg.DBDir)
		}
	})

	t.Run("defaults pass validation once a target is set", func(t *testing.T) {
		t.Parallel()
		c := NewConfig()
		c.StartURLs = []string{"https://example.test/"}
		if err := c.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

// TestConfigValidate tests the Validate method with various configurations.
// Each test case is designed to test one specific validation rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	// validConfig returns a minimal valid configuration.
	validConfig := func() *Config {
		return &Config{
			StartURLs: []string{"https://example.test/"},
			MaxPages:  10,
			Timeout:   5 * time.Second,
			Workers:   1,
			BatchSize: 1,
		}
	}

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		if err := validConfig().Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("zero crawl delay is valid", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.CrawlDelay = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"no targets returns ErrNoTarget", func(c *Config) { c.StartURLs = nil }, ErrNoTarget},
		{"relative start URL returns ErrInvalidStartURL", func(c *Config) { c.StartURLs = []string{"/about"} }, ErrInvalidStartURL},
		{"ftp start URL returns ErrInvalidStartURL", func(c *Config) { c.StartURLs = []string{"ftp://example.test/"} }, ErrInvalidStartURL},
		{"one bad seed among good ones returns ErrInvalidStartURL", func(c *Config) {
			c.StartURLs = []string{"https://a.test/", "not a url"}
		}, ErrInvalidStartURL},
		{"zero max pages returns ErrInvalidMaxPages", func(c *Config) { c.MaxPages = 0 }, ErrInvalidMaxPages},
		{"negative max pages returns ErrInvalidMaxPages", func(c *Config) { c.MaxPages = -1 }, ErrInvalidMaxPages},
		{"zero timeout returns ErrInvalidTimeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"negative crawl delay returns ErrInvalidCrawlDelay", func(c *Config) { c.CrawlDelay = -time.Second }, ErrInvalidCrawlDelay},
		{"negative body size returns ErrInvalidMaxBodySize", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
		{"zero workers returns ErrInvalidWorkers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"zero batch size returns ErrInvalidBatchSize", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"json and markdown both enabled returns ErrConflictingReportFormats", func(c *Config) {
			c.JSONReport = true
			c.MarkdownReport = true
		}, ErrConflictingReportFormats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("invalid start URL error names the URL", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.StartURLs = []string{"example.test"}
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), `"example.test"`) {
			t.Errorf("expected the URL in the message, got %v", err)
		}
	})
}

// TestSiteOverrides tests per-host overrides resolved through Config.
func TestSiteOverrides(t *testing.T) {
	t.Parallel()

	zero := time.Duration(0)
	cfg := NewConfig()
	cfg.SiteConfigs = &File{
		Sites: map[string]SiteConfig{
			"slow.test": {MaxPages: 5, Delay: ptr(3 * time.Second)},
			"fast.test": {Delay: &zero},
		},
	}

	t.Run("site budget overrides the global one", func(t *testing.T) {
		t.Parallel()
		if got := cfg.MaxPagesFor("slow.test"); got != 5 {
			t.Errorf("expected 5, got %d", got)
		}
	})

	t.Run("unknown host keeps the global budget", func(t *testing.T) {
		t.Parallel()
		if got := cfg.MaxPagesFor("other.test"); got != DefaultMaxPages {
			t.Errorf("expected %d, got %d", DefaultMaxPages, got)
		}
	})

	t.Run("site delay overrides the global one", func(t *testing.T) {
		t.Parallel()
		if got := cfg.CrawlDelayFor("slow.test"); got != 3*time.Second {
			t.Errorf("expected 3s, got %v", got)
		}
	})

	t.Run("explicit zero delay disables the delay", func(t *testing.T) {
		t.Parallel()
		if got := cfg.CrawlDelayFor("fast.test"); got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
	})

	t.Run("no config file yields zero site settings", func(t *testing.T) {
		t.Parallel()
		c := NewConfig()
		site := c.SiteFor("example.test")
		if site.Cookie != "" || site.MaxPages != 0 || site.Delay != nil {
			t.Errorf("expected zero SiteConfig, got %+v", site)
		}
		if c.CrawlDelayFor("example.test") != DefaultCrawlDelay {
			t.Error("expected global delay")
		}
	})
}

// TestFileGetSiteConfig tests merging of defaults and per-host settings.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	t.Run("returns defaults when site not found", func(t *testing.T) {
		t.Parallel()

		cf := &File{
			Defaults: SiteConfig{Cookie: "default=1", MaxPages: 20},
			Sites:    map[string]SiteConfig{},
		}
		cfg := cf.GetSiteConfig("unknown.test")
		if cfg.Cookie != "default=1" || cfg.MaxPages != 20 {
			t.Errorf("expected defaults, got %+v", cfg)
		}
	})

	t.Run("site values override defaults", func(t *testing.T) {
		t.Parallel()

		cf := &File{
			Defaults: SiteConfig{Cookie: "default=1", MaxPages: 20, IgnorePatterns: []string{"/tmp/*"}},
			Sites: map[string]SiteConfig{
				"example.test": {Cookie: "site=2", MaxPages: 7, IgnorePatterns: []string{"/admin/*"}},
			},
		}
		cfg := cf.GetSiteConfig("example.test")
		if cfg.Cookie != "site=2" {
			t.Errorf("expected site cookie, got %q", cfg.Cookie)
		}
		if cfg.MaxPages != 7 {
			t.Errorf("expected 7, got %d", cfg.MaxPages)
		}
		if len(cfg.IgnorePatterns) != 1 || cfg.IgnorePatterns[0] != "/admin/*" {
			t.Errorf("expected site patterns, got %v", cfg.IgnorePatterns)
		}
	})

	t.Run("empty site values keep defaults", func(t *testing.T) {
		t.Parallel()

		cf := &File{
			Defaults: SiteConfig{Cookie: "default=1", FollowPatterns: []string{"/docs/*"}},
			Sites:    map[string]SiteConfig{"example.test": {}},
		}
		cfg := cf.GetSiteConfig("example.test")
		if cfg.Cookie != "default=1" {
			t.Errorf("expected default cookie, got %q", cfg.Cookie)
		}
		if len(cfg.FollowPatterns) != 1 {
			t.Errorf("expected default follow patterns, got %v", cfg.FollowPatterns)
		}
	})

	t.Run("headers are merged and site wins", func(t *testing.T) {
		t.Parallel()

		cf := &File{
			Defaults: SiteConfig{Headers: map[string]string{"X-A": "1", "X-B": "default"}},
			Sites: map[string]SiteConfig{
				"example.test": {Headers: map[string]string{"X-B": "site", "X-C": "3"}},
			},
		}
		cfg := cf.GetSiteConfig("example.test")
		want := map[string]string{"X-A": "1", "X-B": "site", "X-C": "3"}
		for k, v := range want {
			if cfg.Headers[k] != v {
				t.Errorf("header %s: expected %q, got %q", k, v, cfg.Headers[k])
			}
		}
		if cf.Defaults.Headers["X-B"] != "default" {
			t.Error("defaults must not be modified by merging")
		}
	})

	t.Run("host lookup ignores case", func(t *testing.T) {
		t.Parallel()

		cf := &File{Sites: map[string]SiteConfig{"example.test": {MaxPages: 3}}}
		if cfg := cf.GetSiteConfig("Example.TEST"); cfg.MaxPages != 3 {
			t.Errorf("expected 3, got %d", cfg.MaxPages)
		}
	})

	t.Run("nil sites map", func(t *testing.T) {
		t.Parallel()

		cf := &File{Defaults: SiteConfig{MaxPages: 9}}
		if cfg := cf.GetSiteConfig("example.test"); cfg.MaxPages != 9 {
			t.Errorf("expected 9, got %d", cfg.MaxPages)
		}
	})
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		return path
	}

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		path := write(t, `defaults:
  maxPages: 30
  delay: 500ms
sites:
  Example.test:
    maxPages: 100
    delay: 0s
    cookie: "session=xyz"
    headers:
      Authorization: "Bearer token"
    ignorePatterns:
      - "/admin/*"
    followPatterns:
      - "/docs/*"
`)
		cfg, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Defaults.MaxPages != 30 {
			t.Errorf("expected default maxPages 30, got %d", cfg.Defaults.MaxPages)
		}
		if cfg.Defaults.Delay == nil || *cfg.Defaults.Delay != 500*time.Millisecond {
			t.Errorf("expected default delay 500ms, got %v", cfg.Defaults.Delay)
		}

		site, ok := cfg.Sites["example.test"]
		if !ok {
			t.Fatal("expected host keys to be lowercased")
		}
		if site.MaxPages != 100 {
			t.Errorf("expected site maxPages 100, got %d", site.MaxPages)
		}
		if site.Delay == nil || *site.Delay != 0 {
			t.Errorf("expected explicit zero delay, got %v", site.Delay)
		}
		if site.Headers["Authorization"] != "Bearer token" {
			t.Error("expected Authorization header")
		}
		if len(site.IgnorePatterns) != 1 || len(site.FollowPatterns) != 1 {
			t.Errorf("unexpected patterns: %v %v", site.IgnorePatterns, site.FollowPatterns)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadConfigFile(write(t, `invalid: yaml: content: [}`)); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("returns error for invalid duration", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadConfigFile(write(t, "defaults:\n  delay: soon\n")); err == nil {
			t.Error("expected error for invalid delay")
		}
	})

	t.Run("loads an empty file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile(write(t, ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Sites) != 0 || cfg.Defaults.Delay != nil {
			t.Errorf("expected empty config, got %+v", cfg)
		}
	})

	t.Run("reduces URL keys to hosts", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile(write(t, "sites:\n  https://Shop.test/products:\n    maxPages: 7\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites["shop.test"].MaxPages != 7 {
			t.Errorf("expected shop.test entry, got %v", cfg.Sites)
		}
	})

	t.Run("rejects bad site entries", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			content string
			want    error
		}{
			{"unknown key", "defaults:\n  ignorePattern:\n    - /admin\n", nil},
			{"negative default delay", "defaults:\n  delay: -1s\n", ErrInvalidCrawlDelay},
			{"negative site budget", "sites:\n  example.test:\n    maxPages: -3\n", ErrInvalidMaxPages},
			{"key with a path but no scheme", "sites:\n  example.test/shop:\n    maxPages: 3\n", ErrInvalidSiteConfig},
			{"host configured twice", "sites:\n  example.test:\n    maxPages: 3\n  EXAMPLE.test:\n    maxPages: 4\n", ErrInvalidSiteConfig},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				_, err := LoadConfigFile(write(t, tt.content))
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.want != nil && !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile(write(t, "defaults:\n  maxPages: 25\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for an explicit directory", func(t *testing.T) {
		t.Parallel()

		if result := FindConfigFile(t.TempDir()); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if result := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

// TestConfigSearchPaths tests the implicit lookup order.
func TestConfigSearchPaths(t *testing.T) {
	t.Parallel()

	paths := ConfigSearchPaths()
	if len(paths) == 0 {
		t.Fatal("expected search paths")
	}
	last := paths[len(paths)-1]
	if filepath.Base(last) != "config.yaml" || filepath.Base(filepath.Dir(last)) != AppName {
		t.Errorf("expected the XDG config file last, got %q", last)
	}
	for _, p := range paths[:len(paths)-1] {
		if filepath.Base(p) != DefaultConfigFile {
			t.Errorf("expected %s, got %q", DefaultConfigFile, p)
		}
	}
}

// TestXDGDataDir tests the XDG data directory.
func TestXDGDataDir(t *testing.T) {
	t.Parallel()

	t.Run("XDGDataDir ends with the app name", func(t *testing.T) {
		t.Parallel()
		if filepath.Base(XDGDataDir()) != AppName {
			t.Errorf("unexpected XDG data dir %q", XDGDataDir())
		}
	})
}

func ptr[T any](v T) *T {
	return &v
}
