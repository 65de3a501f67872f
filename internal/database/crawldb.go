package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitecrawl/internal/model"
)

// DBFileName is the name of the history database inside the data directory.
const DBFileName = "sitecrawl.db"

// ErrRunNotFound is returned when no crawl run has the requested ID.
var ErrRunNotFound = errors.New("crawl run not found")

// timeLayout stores timestamps in UTC with a fixed width so that text
// ordering in SQL equals chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// CrawlDB provides SQLite-based storage for crawl runs and their pages.
//
// Design decision: We use a single database file for all hosts rather
// than one file per host. History and compare queries are per host and an
// index on seed_host keeps them fast.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	// Read-only commands such as history and compare leave it false.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("database not found at %s (run a crawl first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw prevents creating a new file when the caller only reads.
	// Foreign keys are enabled per connection through the DSN so that
	// deleting a run also deletes its pages. Concurrent commands wait for
	// the write lock instead of failing with SQLITE_BUSY.
	dsn := dbPath + "?mode=rw&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer. Batch crawls save their runs through
	// this single connection one after another.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	ctx := context.Background()
	if opts.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables(ctx context.Context) error {
	schema := `
	-- One row per crawl run
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		seed_host TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		state TEXT NOT NULL,
		pages_crawled INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		robots_denied INTEGER NOT NULL,
		total_time_ns INTEGER NOT NULL,
		pages_per_second REAL NOT NULL,
		fingerprint TEXT NOT NULL,
		results_file TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_host ON crawl_runs(seed_host);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);

	-- Page records of a run, in crawl order
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		snippet TEXT NOT NULL,
		links TEXT NOT NULL,
		content_hash TEXT,
		crawl_time TEXT NOT NULL,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	`

	_, err := cdb.db.ExecContext(ctx, schema)
	return err
}

// SaveRun stores a finished crawl run and its page records in one
// transaction. On success report.ID and report.Fingerprint are set.
func (cdb *CrawlDB) SaveRun(ctx context.Context, report *model.CrawlReport) (int64, error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // Rollback after Commit is a no-op

	fingerprint := Fingerprint(report.Records)
	m := report.Metrics

	result, err := tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (seed, seed_host, started_at, finished_at, state,
		pages_crawled, errors, robots_denied, total_time_ns, pages_per_second,
		fingerprint, results_file)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.Seed,
		report.SeedHost,
		formatTime(report.StartedAt),
		formatTime(report.FinishedAt),
		string(report.State),
		m.PagesCrawled,
		m.Errors,
		m.RobotsDenied,
		int64(m.TotalTime),
		m.PagesPerSecond,
		fingerprint,
		report.ResultsFile,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert crawl run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (run_id, position, url, title, snippet, links, content_hash, crawl_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range report.Records {
		linksJSON, err := json.Marshal(rec.Links)
		if err != nil {
			return 0, fmt.Errorf("failed to serialize links of %s: %w", rec.URL, err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID,
			i,
			rec.URL,
			rec.Title,
			rec.Snippet,
			string(linksJSON),
			rec.ContentHash,
			formatTime(rec.CrawlTime),
		); err != nil {
			return 0, fmt.Errorf("failed to insert page %s: %w", rec.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit crawl run: %w", err)
	}

	report.ID = runID
	report.Fingerprint = fingerprint
	return runID, nil
}

// RunMetadata contains summary information about a stored crawl run.
// It is used for listing history without loading the pages.
type RunMetadata struct {
	// ID is the unique identifier of the run in the database.
	ID int64

	// Seed is the start URL of the run.
	Seed string

	// SeedHost is the crawled host.
	SeedHost string

	// StartedAt is when the crawl started.
	StartedAt time.Time

	// State is the terminal state of the run.
	State model.CrawlState

	// PagesCrawled, Errors and RobotsDenied are the run counters.
	PagesCrawled int
	Errors       int
	RobotsDenied int

	// Fingerprint summarizes the crawled pages.
	Fingerprint string
}

// ListHosts returns every host that has at least one stored run.
func (cdb *CrawlDB) ListHosts(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT DISTINCT seed_host FROM crawl_runs
	ORDER BY seed_host
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}

	return hosts, rows.Err()
}

// ListRuns returns the runs for host, newest first.
func (cdb *CrawlDB) ListRuns(ctx context.Context, host string) ([]RunMetadata, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT id, seed, seed_host, started_at, state, pages_crawled, errors, robots_denied, fingerprint
	FROM crawl_runs
	WHERE seed_host = ?
	ORDER BY started_at DESC, id DESC
	`, host)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var startedAt, state string

		if err := rows.Scan(
			&meta.ID,
			&meta.Seed,
			&meta.SeedHost,
			&startedAt,
			&state,
			&meta.PagesCrawled,
			&meta.Errors,
			&meta.RobotsDenied,
			&meta.Fingerprint,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run metadata: %w", err)
		}
		meta.StartedAt = parseTimestamp(startedAt)
		meta.State = model.CrawlState(state)

		results = append(results, meta)
	}

	return results, rows.Err()
}

// GetRun loads a stored run with its page records.
// It returns ErrRunNotFound when no run has the given ID.
func (cdb *CrawlDB) GetRun(ctx context.Context, id int64) (*model.CrawlReport, error) {
	var (
		report                model.CrawlReport
		startedAt, finishedAt string
		state                 string
		totalTime             int64
		resultsFile           sql.NullString
	)

	err := cdb.db.QueryRowContext(ctx, `
	SELECT id, seed, seed_host, started_at, finished_at, state, pages_crawled, errors,
		robots_denied, total_time_ns, pages_per_second, fingerprint, results_file
	FROM crawl_runs
	WHERE id = ?
	`, id).Scan(
		&report.ID,
		&report.Seed,
		&report.SeedHost,
		&startedAt,
		&finishedAt,
		&state,
		&report.Metrics.PagesCrawled,
		&report.Metrics.Errors,
		&report.Metrics.RobotsDenied,
		&totalTime,
		&report.Metrics.PagesPerSecond,
		&report.Fingerprint,
		&resultsFile,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}

	report.StartedAt = parseTimestamp(startedAt)
	report.FinishedAt = parseTimestamp(finishedAt)
	report.State = model.CrawlState(state)
	report.Metrics.TotalTime = time.Duration(totalTime)
	report.ResultsFile = resultsFile.String

	records, err := cdb.pages(ctx, id)
	if err != nil {
		return nil, err
	}
	report.Records = records

	return &report, nil
}

// pages loads the page records of a run in crawl order.
func (cdb *CrawlDB) pages(ctx context.Context, runID int64) ([]model.PageRecord, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url, title, snippet, links, content_hash, crawl_time
	FROM pages
	WHERE run_id = ?
	ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	records := make([]model.PageRecord, 0)
	for rows.Next() {
		var (
			rec         model.PageRecord
			linksJSON   string
			contentHash sql.NullString
			crawlTime   string
		)
		if err := rows.Scan(&rec.URL, &rec.Title, &rec.Snippet, &linksJSON, &contentHash, &crawlTime); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		if err := json.Unmarshal([]byte(linksJSON), &rec.Links); err != nil {
			return nil, fmt.Errorf("failed to parse links of %s: %w", rec.URL, err)
		}
		if rec.Links == nil {
			rec.Links = make([]string, 0)
		}
		rec.ContentHash = contentHash.String
		rec.CrawlTime = parseTimestamp(crawlTime)

		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetLatestRuns loads up to n runs for host, newest first.
func (cdb *CrawlDB) GetLatestRuns(ctx context.Context, host string, n int) ([]*model.CrawlReport, error) {
	metas, err := cdb.ListRuns(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(metas) > n {
		metas = metas[:n]
	}

	reports := make([]*model.CrawlReport, 0, len(metas))
	for _, meta := range metas {
		report, err := cdb.GetRun(ctx, meta.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// DeleteRun removes a run and its pages.
func (cdb *CrawlDB) DeleteRun(ctx context.Context, id int64) error {
	result, err := cdb.db.ExecContext(ctx, "DELETE FROM crawl_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete crawl run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete crawl run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrRunNotFound, id)
	}
	return nil
}

// Fingerprint hashes the URLs and content hashes of records, independent
// of crawl order. An empty record list has a fingerprint too.
func Fingerprint(records []model.PageRecord) string {
	entries := make([]string, len(records))
	for i, rec := range records {
		entries[i] = rec.URL + "\x00" + rec.ContentHash
	}
	slices.Sort(entries)

	h := xxhash.New()
	for _, e := range entries {
		_, _ = h.WriteString(e)    //nolint:errcheck // xxhash writes never fail
		_, _ = h.WriteString("\n") //nolint:errcheck // xxhash writes never fail
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05", // SQLite default datetime format
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
