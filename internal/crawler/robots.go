package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// DefaultRobotsAgent is the robots.txt group the gate evaluates.
const DefaultRobotsAgent = "*"

// RobotsGate answers whether a URL may be fetched under the site's robots.txt.
//
// The policy for a host is retrieved on the first query for that host and
// cached for the lifetime of the gate, which is one crawl run.
//
// The gate fails closed: when robots.txt cannot be retrieved or parsed
// (transport error, timeout, 401 or 403 status, 5xx status, parse error),
// every URL on that host is denied for the rest of the run. The failure is
// logged once per host and never aborts the crawl.
//
// Any other 4xx status means the site has no robots.txt and everything is
// allowed.
//
// RobotsGate is safe for concurrent use. Concurrent first queries for the
// same host share a single retrieval.
type RobotsGate struct {
	fetcher Fetcher
	agent   string
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]robotsEntry
	group singleflight.Group
}

// robotsEntry is a cached policy or a cached retrieval failure.
type robotsEntry struct {
	data *robotstxt.RobotsData
	err  error
}

// RobotsOption configures a RobotsGate.
type RobotsOption func(*RobotsGate)

// WithRobotsAgent sets the user-agent group used for decisions.
func WithRobotsAgent(agent string) RobotsOption {
	return func(g *RobotsGate) {
		if agent != "" {
			g.agent = agent
		}
	}
}

// WithRobotsLogger sets the logger for retrieval failures.
func WithRobotsLogger(logger *slog.Logger) RobotsOption {
	return func(g *RobotsGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewRobotsGate creates a RobotsGate that retrieves robots.txt with fetcher.
func NewRobotsGate(fetcher Fetcher, opts ...RobotsOption) *RobotsGate {
	g := &RobotsGate{
		fetcher: fetcher,
		agent:   DefaultRobotsAgent,
		logger:  slog.Default(),
		cache:   make(map[string]robotsEntry),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MayFetch reports whether target may be fetched.
func (g *RobotsGate) MayFetch(ctx context.Context, target *url.URL) bool {
	return g.Check(ctx, target) == nil
}

// Check returns nil when target may be fetched. Otherwise it returns an error
// wrapping ErrPolicyDenied (robots.txt disallows the path) or
// ErrRobotsUnavailable (the policy could not be determined).
func (g *RobotsGate) Check(ctx context.Context, target *url.URL) error {
	if target == nil || !target.IsAbs() || target.Host == "" {
		return fmt.Errorf("%w: not an absolute URL", ErrRobotsUnavailable)
	}

	data, err := g.policy(ctx, target)
	if err != nil {
		return err
	}

	if !data.TestAgent(target.RequestURI(), g.agent) {
		return fmt.Errorf("%w: %s", ErrPolicyDenied, target.String())
	}
	return nil
}

// policy returns the cached policy for the target's host, retrieving it once.
func (g *RobotsGate) policy(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	if entry, ok := g.lookup(host); ok {
		return entry.data, entry.err
	}

	v, err, _ := g.group.Do(host, func() (any, error) {
		if entry, ok := g.lookup(host); ok {
			return entry.data, entry.err
		}

		data, err := g.retrieve(ctx, target)
		if err != nil && ctx.Err() != nil {
			// Cancelled retrievals are not cached.
			return nil, err
		}

		g.mu.Lock()
		g.cache[host] = robotsEntry{data: data, err: err}
		g.mu.Unlock()

		if err != nil {
			g.logger.Warn("robots.txt unavailable, denying host",
				"host", host,
				"error", err,
			)
		}
		return data, err
	})
	if err != nil {
		return nil, err
	}

	data, ok := v.(*robotstxt.RobotsData)
	if !ok || data == nil {
		return nil, fmt.Errorf("%w: %s", ErrRobotsUnavailable, host)
	}
	return data, nil
}

func (g *RobotsGate) lookup(host string) (robotsEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.cache[host]
	return entry, ok
}

// retrieve fetches and parses scheme://host/robots.txt.
func (g *RobotsGate) retrieve(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := (&url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/robots.txt"}).String()

	resp, err := g.fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRobotsUnavailable, err)
	}

	// robotstxt allows everything on any 4xx, including a robots.txt behind auth.
	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %s returned status %d", ErrRobotsUnavailable, robotsURL, resp.StatusCode)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrRobotsUnavailable, robotsURL, err)
	}
	return data, nil
}

// Known returns the number of hosts whose policy has been determined.
func (g *RobotsGate) Known() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cache)
}
