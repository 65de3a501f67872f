package crawler

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// DefaultUserAgent identifies sitecrawl on every request.
const DefaultUserAgent = "sitecrawl/1.0 (+https://github.com/nao1215/sitecrawl)"

const (
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBodySize caps how much of a response body is read.
	DefaultMaxBodySize int64 = 5 * 1024 * 1024
)

// Response is what a Fetcher returns for one URL.
// Non-200 statuses are returned as a Response, not as an error.
type Response struct {
	// URL is the URL that was requested.
	URL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body is the decompressed body, capped at the fetcher's limit.
	Body []byte
}

// Fetcher retrieves one URL.
// An error means a transport failure: the request could not be completed.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*Response, error)
}

// HTTPFetcher implements Fetcher with an *http.Client.
// Each call is a single attempt bounded by the fetcher's timeout.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	timeout     time.Duration
	maxBodySize int64
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithFetcherUserAgent sets the User-Agent header.
func WithFetcherUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithFetcherTimeout sets the per-request timeout.
func WithFetcherTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithFetcherMaxBodySize sets the maximum number of body bytes read.
// Longer bodies are truncated at the limit.
func WithFetcherMaxBodySize(size int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client means http.DefaultClient.
func NewHTTPFetcher(client *http.Client, opts ...FetcherOption) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFetcher{
		client:      client,
		userAgent:   DefaultUserAgent,
		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a GET request for target.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", target, err)
	}

	return &Response{
		URL:        target,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// readBody decompresses and reads at most maxBodySize bytes, then closes the body.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	return io.ReadAll(io.LimitReader(reader, f.maxBodySize))
}
