// Package config provides the configuration of a sitecrawl run: crawl
// limits, politeness and transport settings, report selection, and the
// optional .sitecrawl YAML file with per-host overrides.
package config
