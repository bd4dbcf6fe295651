// Package history persists sync run records in an embedded SQLite database.
//
// The database runs in embedded mode with WAL so the daemon can record a
// run while an operator inspects history from the CLI.
//
// Schema:
//   - runs: one row per sync run with its rolled-up summary
//   - outcomes: one row per asset outcome, keyed to its run
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hwops/assetsync/internal/syncer"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the history database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a connection to the history database at path, creating the
// file and parent directory as needed.
//
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	// WAL lets history reads proceed while a run is being recorded.
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,               -- sync, retire
		started_at TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL,
		updated INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		errors INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		run_id INTEGER NOT NULL,
		object_key TEXT NOT NULL,
		updated INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		skip_reason TEXT,
		email TEXT,
		account_id TEXT,
		error TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_key ON outcomes(object_key);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// Run is one recorded sync run.
type Run struct {
	ID        int64
	Kind      string
	StartedAt time.Time
	DryRun    bool
	Total     int
	Updated   int
	Skipped   int
	Errors    int
}

// RecordRun stores a run and its outcomes in one transaction and returns
// the run id.
func (db *DB) RecordRun(ctx context.Context, kind string, startedAt time.Time, dryRun bool, outcomes []syncer.Outcome) (int64, error) {
	summary := syncer.Summarize(outcomes)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (kind, started_at, dry_run, total, updated, skipped, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		kind,
		startedAt.Format(time.RFC3339),
		boolToInt(dryRun),
		summary.Total,
		summary.Updated,
		summary.Skipped,
		summary.Errors,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	for i := range outcomes {
		out := &outcomes[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outcomes (run_id, object_key, updated, skipped, skip_reason, email, account_id, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID,
			out.ObjectKey,
			boolToInt(out.Updated),
			boolToInt(out.Skipped),
			nullIfEmpty(out.SkipReason),
			nullIfEmpty(out.Email),
			nullIfEmpty(out.AccountID),
			nullIfEmpty(out.Error),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert outcome for %s: %w", out.ObjectKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, kind, started_at, dry_run, total, updated, skipped, errors
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedAt string
		var dryRun int
		if err := rows.Scan(&run.ID, &run.Kind, &startedAt, &dryRun, &run.Total, &run.Updated, &run.Skipped, &run.Errors); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			run.StartedAt = t
		}
		run.DryRun = dryRun != 0
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// AssetHistory is one past outcome for an asset.
type AssetHistory struct {
	RunID      int64
	StartedAt  time.Time
	Updated    bool
	Skipped    bool
	SkipReason string
	Error      string
}

// HistoryForAsset returns past outcomes for one asset, newest first.
func (db *DB) HistoryForAsset(ctx context.Context, objectKey string, limit int) ([]AssetHistory, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT o.run_id, r.started_at, o.updated, o.skipped,
		       COALESCE(o.skip_reason, ''), COALESCE(o.error, '')
		FROM outcomes o
		JOIN runs r ON r.id = o.run_id
		WHERE o.object_key = ?
		ORDER BY r.started_at DESC, o.run_id DESC
		LIMIT ?`, objectKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset history: %w", err)
	}
	defer rows.Close()

	var history []AssetHistory
	for rows.Next() {
		var h AssetHistory
		var startedAt string
		var updated, skipped int
		if err := rows.Scan(&h.RunID, &startedAt, &updated, &skipped, &h.SkipReason, &h.Error); err != nil {
			return nil, fmt.Errorf("failed to scan asset history: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			h.StartedAt = t
		}
		h.Updated = updated != 0
		h.Skipped = skipped != 0
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset history: %w", err)
	}
	return history, nil
}

// RunCount returns the total number of recorded runs.
func (db *DB) RunCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
