package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// LinkFilter restricts which in-scope URLs are queued, based on glob patterns
// matched against the URL path.
//
// Logic:
//  1. If the path matches any ignore pattern, the URL is rejected
//  2. If follow patterns are set and the path matches none, the URL is rejected
//  3. Otherwise the URL is accepted
//
// Patterns use github.com/gobwas/glob syntax with '/' as separator:
//   - "/admin/*" matches "/admin/users" and also "/admin" itself
//   - "/docs/**" matches any depth below "/docs/"
//   - "*.pdf" (no slash) matches against the last path segment
//   - "/api/v?" matches "/api/v1", "/api/v2"
//
// A nil *LinkFilter accepts everything.
type LinkFilter struct {
	ignore []pathPattern
	follow []pathPattern
}

// pathPattern is one compiled glob.
type pathPattern struct {
	raw      string
	g        glob.Glob
	basename bool
	prefix   string
}

// NewLinkFilter compiles the given patterns.
// It returns nil, nil when both lists are empty.
func NewLinkFilter(ignorePatterns, followPatterns []string) (*LinkFilter, error) {
	if len(ignorePatterns) == 0 && len(followPatterns) == 0 {
		return nil, nil //nolint:nilnil // a nil filter accepts everything
	}

	ignore, err := compilePatterns(ignorePatterns)
	if err != nil {
		return nil, err
	}
	follow, err := compilePatterns(followPatterns)
	if err != nil {
		return nil, err
	}
	return &LinkFilter{ignore: ignore, follow: follow}, nil
}

func compilePatterns(patterns []string) ([]pathPattern, error) {
	compiled := make([]pathPattern, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		g, err := glob.Compile(raw, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", raw, err)
		}
		p := pathPattern{
			raw:      raw,
			g:        g,
			basename: !strings.Contains(raw, "/"),
		}
		if strings.HasSuffix(raw, "/*") {
			p.prefix = strings.TrimSuffix(raw, "/*")
		}
		compiled = append(compiled, p)
	}
	return compiled, nil
}

// Allow reports whether u passes the filter.
func (f *LinkFilter) Allow(u *url.URL) bool {
	if f == nil {
		return true
	}

	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range f.ignore {
		if pattern.match(p) {
			return false
		}
	}

	if len(f.follow) == 0 {
		return true
	}
	for _, pattern := range f.follow {
		if pattern.match(p) {
			return true
		}
	}
	return false
}

func (p pathPattern) match(urlPath string) bool {
	if p.g.Match(urlPath) {
		return true
	}
	if p.prefix != "" && urlPath == p.prefix {
		return true
	}
	if p.basename {
		return p.g.Match(path.Base(urlPath))
	}
	return false
}
