package crawler

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Parser extracts the page title, the first paragraph and the outgoing links
// from an HTML document.
//
// Design decision: We parse with golang.org/x/net/html and query with goquery
// rather than using regex because:
//  1. It correctly handles malformed HTML common on the web
//  2. CSS selectors keep each extraction rule to one line
//  3. Missing elements degrade to empty values instead of errors
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving relative URLs.
	baseURL *url.URL
}

// ParseResult contains what was extracted from one page.
type ParseResult struct {
	// Title is the trimmed text of the first <title> element.
	Title string

	// Snippet is the trimmed text of the first <p> element.
	Snippet string

	// Links contains every <a href> resolved to an absolute http(s) URL,
	// with the fragment removed, in document order. Duplicates are kept.
	Links []string
}

// NewParser creates a new HTML parser with the given base URL.
// The base URL is used to resolve relative links and must be absolute.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("invalid base URL %q: not absolute", baseURL)
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content and extracts title, snippet and links.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	root, err := html.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	result := &ParseResult{
		Title:   strings.TrimSpace(doc.Find("title").First().Text()),
		Snippet: strings.TrimSpace(doc.Find("p").First().Text()),
		Links:   make([]string, 0),
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if resolved := p.resolveURL(href); resolved != "" {
			result.Links = append(result.Links, resolved)
		}
	})

	return result, nil
}

// Extract is a convenience wrapper around NewParser and Parse.
func Extract(body, baseURL string) (*ParseResult, error) {
	p, err := NewParser(baseURL)
	if err != nil {
		return nil, err
	}
	return p.Parse(strings.NewReader(body))
}

// resolveURL resolves href against the base URL.
// It returns "" for hrefs that do not point to a fetchable page.
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String()
}
