package config

import (
	"maps"
	"strings"
	"time"
)

// SiteConfig holds settings for a single host.
type SiteConfig struct {
	// Cookie is sent with every request to this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent with every request to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MaxPages overrides the global page budget. Zero keeps the global value.
	MaxPages int `yaml:"maxPages,omitempty"`

	// Delay overrides the global crawl delay (e.g., "500ms", "2s").
	// A pointer so that an explicit "0s" can disable the delay.
	Delay *time.Duration `yaml:"delay,omitempty"`

	// IgnorePatterns are glob patterns for URL paths that are never queued.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict queueing to URL paths that match one of them.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .sitecrawl configuration file.
type File struct {
	// Sites maps hosts (e.g., "example.com", "localhost:8080") to their
	// settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every host unless the host's entry overrides them.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host merged over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	// Copy so that merging never writes into the defaults map.
	if cf.Defaults.Headers != nil {
		result.Headers = maps.Clone(cf.Defaults.Headers)
	}

	siteConfig, ok := cf.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if siteConfig.Delay != nil {
		result.Delay = siteConfig.Delay
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}

	return result
}
