package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Run statuses recorded in the archive.
const (
	// RunStatusRunning marks a run that has started but not finished.
	RunStatusRunning = "running"

	// RunStatusCompleted marks a run that finished all stages.
	RunStatusCompleted = "completed"

	// RunStatusFailed marks a run that stopped on an error.
	RunStatusFailed = "failed"
)

// ResearchDB provides SQLite-based storage for research runs and the
// pages fetched during them.
//
// Design decision: We use a single database file in the XDG data
// directory rather than one per working directory. The archive spans
// runs across topics, which is what the history view needs, and a
// single file keeps backup/restore trivial.
type ResearchDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ResearchDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ResearchDB at the specified path.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
// DatabaseFile is the SQLite file name inside the database directory.
const DatabaseFile = "deepresearch.db"

func Open(dbDir string, opts Options) (*ResearchDB, error) {
	dbPath := filepath.Join(dbDir, DatabaseFile)

	// Check if we should create the database or require it to exist
	if !opts.CreateIfNotExists {
		// Check if database file exists
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		// Ensure directory exists
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Build connection string
	// We use modernc.org/sqlite which uses a different connection string format.
	// When CreateIfNotExists is false, we use mode=rw to prevent creating new files.
	// When CreateIfNotExists is true, we use mode=rwc to allow creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	// SQLite doesn't benefit from multiple connections for writes,
	// but multiple readers can improve performance
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &ResearchDB{
		db:     db,
		dbPath: dbPath,
	}

	// Enable WAL mode if requested
	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	// Create tables
	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Close closes the database connection.
func (rdb *ResearchDB) Close() error {
	return rdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (rdb *ResearchDB) createTables() error {
	schema := `
	-- Runs record one research pipeline execution each
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic TEXT NOT NULL,
		work_dir TEXT NOT NULL,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME,
		status TEXT NOT NULL DEFAULT 'running',
		pages_fetched INTEGER DEFAULT 0,
		pages_failed INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Crawl records store individual page fetches within a run
	CREATE TABLE IF NOT EXISTS crawl_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		url TEXT NOT NULL,
		title TEXT,
		content_type TEXT,
		content TEXT,
		from_cache INTEGER DEFAULT 0,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(url, run_id)
	);

	CREATE INDEX IF NOT EXISTS idx_crawl_url ON crawl_records(url);
	CREATE INDEX IF NOT EXISTS idx_crawl_run ON crawl_records(run_id);
	CREATE INDEX IF NOT EXISTS idx_crawl_fetched ON crawl_records(fetched_at);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// Run represents one recorded pipeline execution.
type Run struct {
	ID           int64
	Topic        string
	WorkDir      string
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       string
	PagesFetched int
	PagesFailed  int
}

// CreateRun records the start of a research run and returns its ID.
func (rdb *ResearchDB) CreateRun(ctx context.Context, topic, workDir string) (int64, error) {
	query := `INSERT INTO runs (topic, work_dir, status) VALUES (?, ?, ?)`

	result, err := rdb.db.ExecContext(ctx, query, topic, workDir, RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}

	return result.LastInsertId()
}

// FinishRun marks a run as finished with the given status and counters.
func (rdb *ResearchDB) FinishRun(ctx context.Context, runID int64, status string, fetched, failed int) error {
	query := `
	UPDATE runs
	SET status = ?, pages_fetched = ?, pages_failed = ?, finished_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`

	_, err := rdb.db.ExecContext(ctx, query, status, fetched, failed, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return nil
}

// ListRuns returns all recorded runs, most recent first.
func (rdb *ResearchDB) ListRuns(ctx context.Context) ([]Run, error) {
	query := `
	SELECT id, topic, work_dir, started_at, finished_at, status, pages_fetched, pages_failed
	FROM runs
	ORDER BY started_at DESC
	`

	rows, err := rdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started string
		var finished sql.NullString

		err := rows.Scan(
			&run.ID,
			&run.Topic,
			&run.WorkDir,
			&started,
			&finished,
			&run.Status,
			&run.PagesFetched,
			&run.PagesFailed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.StartedAt = parseTimestamp(started)
		if finished.Valid {
			run.FinishedAt = parseTimestamp(finished.String)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// CrawlRecord represents a stored page fetch.
type CrawlRecord struct {
	ID          int64
	RunID       int64
	URL         string
	Title       string
	ContentType string
	Content     string
	FromCache   bool
	FetchedAt   time.Time
}

// InsertCrawlRecord inserts or updates a crawl record.
// Uses UPSERT to handle duplicates (same URL within the same run).
func (rdb *ResearchDB) InsertCrawlRecord(ctx context.Context, record *CrawlRecord) (int64, error) {
	query := `
	INSERT INTO crawl_records (run_id, url, title, content_type, content, from_cache)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(url, run_id) DO UPDATE SET
		title = excluded.title,
		content_type = excluded.content_type,
		content = excluded.content,
		from_cache = excluded.from_cache,
		fetched_at = CURRENT_TIMESTAMP
	`

	result, err := rdb.db.ExecContext(ctx, query,
		record.RunID,
		record.URL,
		record.Title,
		record.ContentType,
		record.Content,
		record.FromCache,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert crawl record: %w", err)
	}

	return result.LastInsertId()
}

// GetCrawlRecord retrieves a crawl record by run and URL.
func (rdb *ResearchDB) GetCrawlRecord(ctx context.Context, runID int64, url string) (*CrawlRecord, error) {
	query := `
	SELECT id, run_id, url, title, content_type, content, from_cache, fetched_at
	FROM crawl_records
	WHERE run_id = ? AND url = ?
	`

	var record CrawlRecord
	var fetched string

	err := rdb.db.QueryRowContext(ctx, query, runID, url).Scan(
		&record.ID,
		&record.RunID,
		&record.URL,
		&record.Title,
		&record.ContentType,
		&record.Content,
		&record.FromCache,
		&fetched,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl record: %w", err)
	}

	// Parse timestamp (SQLite may return different formats depending on version/configuration)
	record.FetchedAt = parseTimestamp(fetched)

	return &record, nil
}

// GetRunRecords retrieves all crawl records for a run, in fetch order.
func (rdb *ResearchDB) GetRunRecords(ctx context.Context, runID int64) ([]CrawlRecord, error) {
	query := `
	SELECT id, run_id, url, title, content_type, content, from_cache, fetched_at
	FROM crawl_records
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := rdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run records: %w", err)
	}
	defer rows.Close()

	var records []CrawlRecord
	for rows.Next() {
		var record CrawlRecord
		var fetched string

		err := rows.Scan(
			&record.ID,
			&record.RunID,
			&record.URL,
			&record.Title,
			&record.ContentType,
			&record.Content,
			&record.FromCache,
			&fetched,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl record: %w", err)
		}

		record.FetchedAt = parseTimestamp(fetched)
		records = append(records, record)
	}

	return records, rows.Err()
}

// HasRecentCrawl checks if a URL was fetched in any run within the
// specified duration.
func (rdb *ResearchDB) HasRecentCrawl(ctx context.Context, url string, duration time.Duration) (bool, error) {
	query := `
	SELECT COUNT(*) FROM crawl_records
	WHERE url = ? AND fetched_at > datetime('now', ?)
	`

	// SQLite datetime modifier format
	modifier := fmt.Sprintf("-%d seconds", int(duration.Seconds()))

	var count int
	err := rdb.db.QueryRowContext(ctx, query, url, modifier).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent crawl: %w", err)
	}

	return count > 0, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	// Return zero time if no format matches
	// This is a fallback to avoid breaking functionality for edge cases
	return time.Time{}
}
