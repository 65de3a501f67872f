package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/sitecrawl/internal/model"
)

// fakePage is one canned response served by mapFetcher.
type fakePage struct {
	status int
	body   string
	err    error
}

// mapFetcher serves canned pages keyed by URL and records fetch order.
// Unknown robots.txt URLs answer 404, other unknown URLs answer 404 too.
type mapFetcher struct {
	mu      sync.Mutex
	pages   map[string]fakePage
	fetched []string
}

func newMapFetcher(pages map[string]fakePage) *mapFetcher {
	return &mapFetcher{pages: pages}
}

func (m *mapFetcher) Fetch(_ context.Context, target string) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !strings.HasSuffix(target, "/robots.txt") {
		m.fetched = append(m.fetched, target)
	}

	p, ok := m.pages[target]
	if !ok {
		return &Response{URL: target, StatusCode: http.StatusNotFound}, nil
	}
	if p.err != nil {
		return nil, p.err
	}
	status := p.status
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{URL: target, StatusCode: status, Body: []byte(p.body)}, nil
}

func (m *mapFetcher) Fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetched...)
}

func htmlPage(title string, links ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><head><title>" + title + "</title></head><body><p>About " + title + "</p>")
	for _, l := range links {
		sb.WriteString(`<a href="` + l + `">link</a>`)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func newTestSpider(f Fetcher, opts ...SpiderOption) *Spider {
	base := []SpiderOption{
		WithFetcher(f),
		WithDelay(0),
		WithLogger(discardLogger()),
	}
	return NewSpider(nil, append(base, opts...)...)
}

// TestParser tests HTML extraction.
func TestParser(t *testing.T) {
	t.Parallel()

	t.Run("extracts title and first paragraph", func(t *testing.T) {
		t.Parallel()

		html := `<html><head><title>  Test Page </title></head>
			<body><div><p> First paragraph. </p><p>Second</p></div></body></html>`
		result, err := Extract(html, "https://example.test/page")
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}

		if result.Title != "Test Page" {
			t.Errorf("expected title 'Test Page', got %q", result.Title)
		}
		if result.Snippet != "First paragraph." {
			t.Errorf("expected first paragraph, got %q", result.Snippet)
		}
	})

	t.Run("missing elements degrade to empty values", func(t *testing.T) {
		t.Parallel()

		result, err := Extract(`<html><body><div>no paragraph</div></body></html>`, "https://example.test/")
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}
		if result.Title != "" || result.Snippet != "" {
			t.Errorf("expected empty title and snippet, got %q / %q", result.Title, result.Snippet)
		}
		if result.Links == nil || len(result.Links) != 0 {
			t.Errorf("expected empty non-nil links, got %v", result.Links)
		}
	})

	t.Run("resolves links to absolute URLs in document order", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
			<a href="/products/1">p1</a>
			<a href="about">about</a>
			<a href="https://other.test/x">other</a>
			<a href="/products/1">p1 again</a>
		</body></html>`
		result, err := Extract(html, "https://example.test/shop/")
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}

		want := []string{
			"https://example.test/products/1",
			"https://example.test/shop/about",
			"https://other.test/x",
			"https://example.test/products/1",
		}
		if len(result.Links) != len(want) {
			t.Fatalf("expected %d links, got %d: %v", len(want), len(result.Links), result.Links)
		}
		for i := range want {
			if result.Links[i] != want[i] {
				t.Errorf("link %d: expected %s, got %s", i, want[i], result.Links[i])
			}
		}
	})

	t.Run("skips non page links and strips fragments", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
			<a href="#">top</a>
			<a href="#section">section</a>
			<a href="javascript:void(0)">js</a>
			<a href="mailto:a@example.test">mail</a>
			<a href="tel:+331234">tel</a>
			<a href="data:text/plain,hi">data</a>
			<a href="ftp://example.test/file">ftp</a>
			<a href="/faq#shipping">faq</a>
			<a>no href</a>
		</body></html>`
		result, err := Extract(html, "https://example.test/")
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}

		if len(result.Links) != 1 || result.Links[0] != "https://example.test/faq" {
			t.Errorf("expected only the faq link, got %v", result.Links)
		}
	})

	t.Run("relative base URL is rejected", func(t *testing.T) {
		t.Parallel()

		if _, err := NewParser("/relative"); err == nil {
			t.Error("expected error for relative base URL")
		}
	})
}

// TestDecodeBody tests the UTF-8 / Latin-1 fallback.
func TestDecodeBody(t *testing.T) {
	t.Parallel()

	t.Run("valid UTF-8 is kept", func(t *testing.T) {
		t.Parallel()

		got, err := DecodeBody([]byte("café ✓"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "café ✓" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("invalid UTF-8 falls back to Latin-1", func(t *testing.T) {
		t.Parallel()

		got, err := DecodeBody([]byte{'c', 'a', 'f', 0xe9})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "café" {
			t.Errorf("expected café, got %q", got)
		}
	})
}

// TestSpiderEndToEnd tests the reference crawl: seed with a product link,
// another in-scope link and an out-of-scope link.
func TestSpiderEndToEnd(t *testing.T) {
	t.Parallel()

	f := newMapFetcher(map[string]fakePage{
		"https://example.test/": {body: htmlPage("Home",
			"/about",
			"/products/widget",
			"https://elsewhere.test/products/x",
		)},
		// The about page links on, so the budget ends the crawl.
		"https://example.test/about":           {body: htmlPage("About", "/contact")},
		"https://example.test/products/widget": {body: htmlPage("Widget")},
		"https://example.test/contact":         {body: htmlPage("Contact")},
	})

	var progress bytes.Buffer
	spider := newTestSpider(f, WithMaxPages(3), WithProgress(&progress))

	report, err := spider.Crawl(context.Background(), "https://example.test/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"https://example.test/",
		"https://example.test/products/widget",
		"https://example.test/about",
	}
	got := report.URLs()
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if report.Metrics.PagesCrawled != 3 {
		t.Errorf("expected 3 pages crawled, got %d", report.Metrics.PagesCrawled)
	}
	if report.Metrics.Errors != 0 {
		t.Errorf("expected 0 errors, got %d", report.Metrics.Errors)
	}
	if report.State != model.StateBudgetReached {
		t.Errorf("expected budget_reached, got %s", report.State)
	}

	t.Run("out of scope links are never fetched", func(t *testing.T) {
		t.Parallel()
		for _, u := range f.Fetched() {
			if strings.Contains(u, "elsewhere.test") {
				t.Errorf("out of scope URL fetched: %s", u)
			}
		}
	})

	t.Run("record links contain only in scope links", func(t *testing.T) {
		t.Parallel()
		home := report.Records[0]
		if len(home.Links) != 2 {
			t.Errorf("expected 2 in-scope links, got %v", home.Links)
		}
		if home.Title != "Home" || home.Snippet != "About Home" {
			t.Errorf("unexpected title/snippet: %q / %q", home.Title, home.Snippet)
		}
		if home.ContentHash != ContentHash(htmlPage("Home", "/about", "/products/widget", "https://elsewhere.test/products/x")) {
			t.Errorf("unexpected content hash %q", home.ContentHash)
		}
	})

	t.Run("progress lines announce each visit", func(t *testing.T) {
		t.Parallel()
		out := progress.String()
		if !strings.HasPrefix(out, "Visit #1: https://example.test/\n") {
			t.Errorf("unexpected progress output: %q", out)
		}
		if !strings.Contains(out, "Visit #3: https://example.test/about") {
			t.Errorf("expected third visit line, got %q", out)
		}
	})
}

// TestSpiderTermination tests the terminal states.
func TestSpiderTermination(t *testing.T) {
	t.Parallel()

	t.Run("budget reached with a large frontier", func(t *testing.T) {
		t.Parallel()

		links := make([]string, 0, 20)
		pages := map[string]fakePage{}
		for i := range 20 {
			p := fmt.Sprintf("/page/%d", i)
			links = append(links, p)
			pages["https://example.test"+p] = fakePage{body: htmlPage(p)}
		}
		pages["https://example.test/"] = fakePage{body: htmlPage("Home", links...)}

		report, err := newTestSpider(newMapFetcher(pages), WithMaxPages(5)).
			Crawl(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.State != model.StateBudgetReached {
			t.Errorf("expected budget_reached, got %s", report.State)
		}
		if len(report.Records) != 5 {
			t.Errorf("expected 5 records, got %d", len(report.Records))
		}
		if report.Metrics.PagesCrawled != 5 {
			t.Errorf("expected 5 pages crawled, got %d", report.Metrics.PagesCrawled)
		}
	})

	t.Run("draining visits every reachable page once", func(t *testing.T) {
		t.Parallel()

		f := newMapFetcher(map[string]fakePage{
			"https://example.test/":  {body: htmlPage("Home", "/a", "/b")},
			"https://example.test/a": {body: htmlPage("A", "/", "/b", "/c")},
			"https://example.test/b": {body: htmlPage("B", "/a")},
			"https://example.test/c": {body: htmlPage("C", "/", "/a")},
		})

		report, err := newTestSpider(f, WithMaxPages(50)).Crawl(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.State != model.StateDraining {
			t.Errorf("expected draining, got %s", report.State)
		}
		if len(report.Records) != 4 {
			t.Errorf("expected 4 records, got %d", len(report.Records))
		}

		counts := make(map[string]int)
		for _, u := range f.Fetched() {
			counts[u]++
		}
		for u, n := range counts {
			if n != 1 {
				t.Errorf("URL %s fetched %d times", u, n)
			}
		}
	})

	t.Run("cancelled context stops before fetching", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		f := newMapFetcher(map[string]fakePage{
			"https://example.test/": {body: htmlPage("Home")},
		})
		report, err := newTestSpider(f).Crawl(ctx, "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.State != model.StateCancelled {
			t.Errorf("expected cancelled, got %s", report.State)
		}
		if len(f.Fetched()) != 0 {
			t.Errorf("expected no fetch, got %v", f.Fetched())
		}
		if !report.Metrics.Finalized() {
			t.Error("expected metrics to be finalized")
		}
	})
}

// TestSpiderFailures tests how per-URL failures are accounted.
func TestSpiderFailures(t *testing.T) {
	t.Parallel()

	t.Run("transport failures are counted and not visited", func(t *testing.T) {
		t.Parallel()

		f := newMapFetcher(map[string]fakePage{
			"https://example.test/":        {body: htmlPage("Home", "/broken", "/missing", "/down", "/ok")},
			"https://example.test/broken":  {status: http.StatusInternalServerError},
			"https://example.test/down":    {err: errors.New("connection reset")},
			"https://example.test/ok":      {body: htmlPage("OK", "/broken")},
			"https://example.test/missing": {status: http.StatusNotFound},
		})

		report, err := newTestSpider(f).Crawl(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Metrics.Errors != 3 {
			t.Errorf("expected 3 errors, got %d", report.Metrics.Errors)
		}
		if report.Metrics.PagesCrawled != 2 {
			t.Errorf("expected 2 pages, got %d", report.Metrics.PagesCrawled)
		}
		if _, ok := report.RecordByURL("https://example.test/broken"); ok {
			t.Error("failed page must not produce a record")
		}

		broken := 0
		for _, u := range f.Fetched() {
			if u == "https://example.test/broken" {
				broken++
			}
		}
		if broken != 1 {
			t.Errorf("expected failed URL to be fetched once, got %d", broken)
		}
	})

	t.Run("robots disallow is not an error", func(t *testing.T) {
		t.Parallel()

		f := newMapFetcher(map[string]fakePage{
			"https://example.test/robots.txt": {body: "User-agent: *\nDisallow: /private\n"},
			"https://example.test/":           {body: htmlPage("Home", "/private/a", "/public")},
			"https://example.test/private/a":  {body: htmlPage("Secret")},
			"https://example.test/public":     {body: htmlPage("Public")},
		})

		report, err := newTestSpider(f).Crawl(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Metrics.Errors != 0 {
			t.Errorf("expected 0 errors, got %d", report.Metrics.Errors)
		}
		if report.Metrics.RobotsDenied != 1 {
			t.Errorf("expected 1 robots denial, got %d", report.Metrics.RobotsDenied)
		}
		for _, u := range f.Fetched() {
			if strings.Contains(u, "/private") {
				t.Errorf("disallowed URL fetched: %s", u)
			}
		}
	})

	t.Run("unavailable robots.txt denies the whole host", func(t *testing.T) {
		t.Parallel()

		f := newMapFetcher(map[string]fakePage{
			"https://example.test/robots.txt": {err: errors.New("timeout")},
			"https://example.test/":           {body: htmlPage("Home", "/a")},
		})

		report, err := newTestSpider(f).Crawl(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(f.Fetched()) != 0 {
			t.Errorf("expected no page fetch, got %v", f.Fetched())
		}
		if len(report.Records) != 0 {
			t.Errorf("expected no records, got %d", len(report.Records))
		}
		if report.Metrics.Errors != 0 {
			t.Errorf("robots failure must not count as error, got %d", report.Metrics.Errors)
		}
		if report.Metrics.PagesPerSecond != 0 {
			t.Errorf("expected 0 pages/s, got %f", report.Metrics.PagesPerSecond)
		}
		if report.State != model.StateDraining {
			t.Errorf("expected draining, got %s", report.State)
		}
	})

	t.Run("malformed start URL is fatal", func(t *testing.T) {
		t.Parallel()

		for _, seed := range []string{"", "example.test", "ftp://example.test/", "https://", "/relative"} {
			_, err := newTestSpider(newMapFetcher(nil)).Crawl(context.Background(), seed)
			if !errors.Is(err, ErrInvalidStartURL) {
				t.Errorf("seed %q: expected ErrInvalidStartURL, got %v", seed, err)
			}
		}
	})

	t.Run("non positive budget is fatal", func(t *testing.T) {
		t.Parallel()

		for _, budget := range []int{0, -1} {
			f := newMapFetcher(nil)
			_, err := newTestSpider(f, WithMaxPages(budget)).Crawl(context.Background(), "https://example.test/")
			if !errors.Is(err, ErrInvalidMaxPages) {
				t.Errorf("budget %d: expected ErrInvalidMaxPages, got %v", budget, err)
			}
			if got := f.Fetched(); len(got) != 0 {
				t.Errorf("budget %d: expected no fetches, got %v", budget, got)
			}
		}
	})

	t.Run("content hash covers the decoded text", func(t *testing.T) {
		t.Parallel()

		latin1 := "<html><head><title>Caf\xe9</title></head><body><p>Caf\xe9 menu</p></body></html>"
		f := newMapFetcher(map[string]fakePage{
			"https://example.test/": {body: latin1},
		})

		report, err := newTestSpider(f).Crawl(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.Records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(report.Records))
		}

		decoded, err := DecodeBody([]byte(latin1))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := report.Records[0].ContentHash; got != ContentHash(decoded) {
			t.Errorf("expected hash of the decoded text %q, got %q", ContentHash(decoded), got)
		}
		if ContentHash(decoded) == ContentHash(latin1) {
			t.Error("expected raw and decoded bodies to hash differently")
		}
	})
}

// TestSpiderOptions tests politeness, workers and path filters.
func TestSpiderOptions(t *testing.T) {
	t.Parallel()

	t.Run("delay spaces out page fetches", func(t *testing.T) {
		t.Parallel()

		f := newMapFetcher(map[string]fakePage{
			"https://example.test/":  {body: htmlPage("Home", "/a", "/b")},
			"https://example.test/a": {body: htmlPage("A")},
			"https://example.test/b": {body: htmlPage("B")},
		})

		start := time.Now()
		report, err := newTestSpider(f, WithDelay(50*time.Millisecond)).
			Crawl(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		elapsed := time.Since(start)

		if len(report.Records) != 3 {
			t.Fatalf("expected 3 records, got %d", len(report.Records))
		}
		if elapsed < 90*time.Millisecond {
			t.Errorf("expected at least two delays, elapsed %v", elapsed)
		}
	})

	t.Run("workers visit every page once", func(t *testing.T) {
		t.Parallel()

		links := make([]string, 0, 30)
		pages := map[string]fakePage{}
		for i := range 30 {
			p := fmt.Sprintf("/item/%d", i)
			links = append(links, p)
			pages["https://example.test"+p] = fakePage{body: htmlPage(p, "/", links[0])}
		}
		pages["https://example.test/"] = fakePage{body: htmlPage("Home", links...)}
		f := newMapFetcher(pages)

		report, err := newTestSpider(f, WithWorkers(4), WithMaxPages(100)).
			Crawl(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(report.Records) != 31 {
			t.Errorf("expected 31 records, got %d", len(report.Records))
		}
		counts := make(map[string]int)
		for _, u := range f.Fetched() {
			counts[u]++
		}
		for u, n := range counts {
			if n != 1 {
				t.Errorf("URL %s fetched %d times", u, n)
			}
		}
	})

	t.Run("workers never exceed the budget", func(t *testing.T) {
		t.Parallel()

		links := make([]string, 0, 30)
		pages := map[string]fakePage{}
		for i := range 30 {
			p := fmt.Sprintf("/item/%d", i)
			links = append(links, p)
			pages["https://example.test"+p] = fakePage{body: htmlPage(p)}
		}
		pages["https://example.test/"] = fakePage{body: htmlPage("Home", links...)}

		report, err := newTestSpider(newMapFetcher(pages), WithWorkers(8), WithMaxPages(10)).
			Crawl(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.Records) != 10 {
			t.Errorf("expected 10 records, got %d", len(report.Records))
		}
		if report.State != model.StateBudgetReached {
			t.Errorf("expected budget_reached, got %s", report.State)
		}
	})

	t.Run("ignore patterns keep links out of the frontier", func(t *testing.T) {
		t.Parallel()

		f := newMapFetcher(map[string]fakePage{
			"https://example.test/":            {body: htmlPage("Home", "/admin/users", "/docs/a.pdf", "/blog")},
			"https://example.test/blog":        {body: htmlPage("Blog")},
			"https://example.test/admin/users": {body: htmlPage("Admin")},
		})

		report, err := newTestSpider(f, WithIgnorePatterns([]string{"/admin/*", "*.pdf"})).
			Crawl(context.Background(), "https://example.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(report.Records) != 2 {
			t.Errorf("expected 2 records, got %v", report.URLs())
		}
		if len(report.Records[0].Links) != 3 {
			t.Errorf("record links should still list every in-scope link, got %v", report.Records[0].Links)
		}
	})
}

// TestSpiderHTTP runs a crawl against a real HTTP server.
func TestSpiderHTTP(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	userAgents := make([]string, 0)

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "User-agent: *\nDisallow: /nope\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		userAgents = append(userAgents, r.UserAgent())
		mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/":
			_, _ = io.WriteString(w, htmlPage("Root", "/products", "/nope", "/gone"))
		case "/products":
			_, _ = io.WriteString(w, htmlPage("Products", "/"))
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	spider := NewSpider(server.Client(),
		WithDelay(0),
		WithLogger(discardLogger()),
		WithUserAgent("sitecrawl-test/1.0"),
	)
	report, err := spider.Crawl(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Records) != 2 {
		t.Errorf("expected 2 records, got %v", report.URLs())
	}
	if report.Metrics.Errors != 1 {
		t.Errorf("expected 1 error for /gone, got %d", report.Metrics.Errors)
	}
	if report.Metrics.RobotsDenied != 1 {
		t.Errorf("expected 1 robots denial, got %d", report.Metrics.RobotsDenied)
	}
	if report.Records[0].URL != server.URL+"/" {
		t.Errorf("expected normalized seed first, got %s", report.Records[0].URL)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, ua := range userAgents {
		if ua != "sitecrawl-test/1.0" {
			t.Errorf("unexpected User-Agent %q", ua)
		}
	}
}
