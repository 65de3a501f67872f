package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".sitecrawl"

// xdgConfigFile is the file name inside the XDG config directory.
const xdgConfigFile = "config.yaml"

// LoadConfigFile reads the site settings at path.
//
// Unknown keys are rejected so that a misspelled "ignorePattern" does not
// silently crawl pages the operator meant to skip. Site keys may be written
// as a host or as any URL on that host; both are stored as the lowercase
// host. A missing file is reported as ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := checkSite("defaults", cf.Defaults); err != nil {
		return nil, err
	}

	sites := make(map[string]SiteConfig, len(cf.Sites))
	for key, site := range cf.Sites {
		host, err := siteHost(key)
		if err != nil {
			return nil, err
		}
		if err := checkSite(host, site); err != nil {
			return nil, err
		}
		if _, dup := sites[host]; dup {
			return nil, fmt.Errorf("%w: host %s is configured twice", ErrInvalidSiteConfig, host)
		}
		sites[host] = site
	}
	cf.Sites = sites

	return &cf, nil
}

// siteHost reduces a sites key to its lowercase host.
func siteHost(key string) (string, error) {
	key = strings.TrimSpace(key)
	if strings.Contains(key, "://") {
		u, err := url.Parse(key)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("%w: %q is not a host", ErrInvalidSiteConfig, key)
		}
		key = u.Host
	}
	key = strings.ToLower(strings.TrimSuffix(key, "/"))
	if key == "" || strings.ContainsAny(key, "/ ") {
		return "", fmt.Errorf("%w: %q is not a host", ErrInvalidSiteConfig, key)
	}
	return key, nil
}

// checkSite rejects values that flags would reject too.
func checkSite(name string, site SiteConfig) error {
	if site.MaxPages < 0 {
		return fmt.Errorf("%w: %s: maxPages %d", ErrInvalidMaxPages, name, site.MaxPages)
	}
	if site.Delay != nil && *site.Delay < 0 {
		return fmt.Errorf("%w: %s: delay %s", ErrInvalidCrawlDelay, name, *site.Delay)
	}
	return nil
}

// FindConfigFile returns the configuration file to load, or "" when there
// is none. An explicit configPath is used only if it exists. Otherwise the
// first existing file of ConfigSearchPaths wins.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if fileExists(configPath) {
			return configPath
		}
		return ""
	}

	for _, candidate := range ConfigSearchPaths() {
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

// ConfigSearchPaths lists the implicit configuration locations in lookup
// order: .sitecrawl in the working directory, .sitecrawl in the home
// directory, then sitecrawl/config.yaml in the XDG config directory.
func ConfigSearchPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, DefaultConfigFile))
	}
	return append(paths, filepath.Join(xdg.ConfigHome, AppName, xdgConfigFile))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
