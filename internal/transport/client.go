package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// checkProxyTimeout bounds the SOCKS5 handshake check.
	checkProxyTimeout = 2 * time.Second

	// maxRedirects is the number of redirects followed before the last
	// response is returned as is.
	maxRedirects = 10
)

// SOCKS5 protocol constants used by CheckProxy.
const (
	socks5Version  = 0x05
	socks5AuthNone = 0x00
)

// Client builds the HTTP clients used for crawling.
// Connections go direct, or through a SOCKS5 proxy when one is configured.
// A cookie and extra headers can be attached to every request sent to the
// crawled host.
type Client struct {
	// proxyAddress is the SOCKS5 proxy in "host:port" form. Empty means direct.
	proxyAddress string

	// dialer is the SOCKS5 dialer. Nil when connecting directly.
	dialer proxy.Dialer

	// timeout is the overall client timeout.
	timeout time.Duration

	// scopeHost restricts cookie and header injection to one host.
	// Empty means every request.
	scopeHost string

	// cookie is a raw Cookie header value (e.g., "session=abc123").
	cookie string

	// headers are extra request headers.
	headers map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithProxy routes connections through the SOCKS5 proxy at addr ("host:port").
func WithProxy(addr string) Option {
	return func(c *Client) {
		c.proxyAddress = addr
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithCookie attaches a raw cookie string to requests.
func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithHeaders attaches extra headers to requests.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithScopeHost limits cookie and header injection to requests for host.
// Redirects to other hosts are sent without them.
func WithScopeHost(host string) Option {
	return func(c *Client) {
		c.scopeHost = strings.ToLower(host)
	}
}

// NewClient creates a Client.
//
// A proxy address is validated but not contacted. Call CheckProxy to verify
// that it is reachable.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}

	if c.proxyAddress != "" {
		if !isValidProxyAddress(c.proxyAddress) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, c.proxyAddress)
		}
		dialer, err := proxy.SOCKS5("tcp", c.proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		c.dialer = dialer
	}

	return c, nil
}

// isValidProxyAddress checks for "host:port" with a non-empty host and a
// port in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// ProxyAddress returns the configured proxy address, or "" for direct.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// NewHTTPClient creates an HTTP client for crawling.
//
// Design decisions:
//   - Redirect limit is 10 to prevent redirect loops while allowing normal redirects
//   - A cookie jar keeps session cookies set by the site during the crawl
//   - Compression is negotiated by the fetcher, so the transport does not add
//     its own Accept-Encoding
func (c *Client) NewHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	if c.dialer != nil {
		if cd, ok := c.dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return c.dialer.Dial(network, addr)
			}
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	client := &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	if c.cookie != "" || len(c.headers) > 0 {
		client.Transport = &headerInjectingTransport{
			base:      transport,
			scopeHost: c.scopeHost,
			cookie:    c.cookie,
			headers:   c.headers,
		}
	}

	return client
}

// CheckProxy verifies that the configured proxy completes a SOCKS5 no-auth
// handshake. It returns nil when no proxy is configured.
func (c *Client) CheckProxy(ctx context.Context) error {
	if c.proxyAddress == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrProxyTimeout
		}
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}

	// Version negotiation: offer "no authentication" only.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrProxyTimeout
		}
		return ErrProxyNotSOCKS5
	}

	if resp[0] != socks5Version || resp[1] != socks5AuthNone {
		return ErrProxyNotSOCKS5
	}
	return nil
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// custom headers and cookies into every in-scope request.
type headerInjectingTransport struct {
	base      http.RoundTripper
	scopeHost string
	cookie    string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.scopeHost != "" && !strings.EqualFold(req.URL.Host, t.scopeHost) {
		return t.base.RoundTrip(req)
	}

	// Clone the request to avoid modifying the original
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
