// Package storage keeps the history of runs and their records in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazz-dev/dashprobe/internal/checker"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT    PRIMARY KEY,
    started_at    TEXT    NOT NULL,
    finished_at   TEXT    NOT NULL,
    config_digest TEXT    NOT NULL DEFAULT '',
    passed        INTEGER NOT NULL DEFAULT 0,
    failed        INTEGER NOT NULL DEFAULT 0,
    report_path   TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS results (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position   INTEGER NOT NULL,
    site       TEXT    NOT NULL DEFAULT '',
    company    TEXT    NOT NULL DEFAULT '',
    service    TEXT    NOT NULL DEFAULT '',
    menu       TEXT    NOT NULL DEFAULT '',
    url        TEXT    NOT NULL DEFAULT '',
    check_name TEXT    NOT NULL,
    type       TEXT    NOT NULL DEFAULT '',
    locator    TEXT    NOT NULL DEFAULT '',
    value      TEXT    NOT NULL DEFAULT '',
    status     TEXT    NOT NULL CHECK(status IN ('PASS', 'FAIL')),
    screenshot TEXT    NOT NULL DEFAULT '',
    error      TEXT    NOT NULL DEFAULT '',
    checked_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id, position);
CREATE INDEX IF NOT EXISTS idx_results_check ON results(check_name, checked_at DESC);
`

// Run is a stored batch summary.
type Run struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	ConfigDigest string    `json:"config_digest"`
	Passed       int       `json:"passed"`
	Failed       int       `json:"failed"`
	ReportPath   string    `json:"report_path"`
}

// Result is a stored record.
type Result struct {
	RunID    string `json:"run_id"`
	Position int    `json:"position"`
	checker.Record
}

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection would see its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertRun persists a run and its records in one transaction. Passed and
// Failed are computed from records.
func (d *DB) InsertRun(ctx context.Context, run Run, records []checker.Record) (err error) {
	run.Passed, run.Failed = 0, 0
	for _, r := range records {
		if r.Status == checker.StatusPass {
			run.Passed++
		} else {
			run.Failed++
		}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning run %s: %w", run.ID, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, config_digest, passed, failed, report_path) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.ConfigDigest,
		run.Passed,
		run.Failed,
		run.ReportPath,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (run_id, position, site, company, service, menu, url, check_name, type, locator, value, status, screenshot, error, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing result insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		checkedAt := r.CheckedAt
		if checkedAt.IsZero() {
			checkedAt = run.FinishedAt
		}
		_, err = stmt.ExecContext(ctx,
			run.ID, i, r.Site, r.Company, r.Service, r.Menu, r.URL, r.Check, r.Type,
			r.Locator, r.Value, string(r.Status), r.Screenshot, r.Error, formatTime(checkedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting result %q: %w", r.Check, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", run.ID, err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, config_digest, passed, failed, report_path`

// GetRun returns the run with the given id, or nil if none.
func (d *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}
	return r, nil
}

// LatestRun returns the most recently started run, or nil if none.
func (d *DB) LatestRun(ctx context.Context) (*Run, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs newest first plus the total count.
func (d *DB) ListRuns(ctx context.Context, limit, offset int) ([]Run, int, error) {
	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting runs: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating run rows: %w", err)
	}
	return runs, total, nil
}

const resultColumns = `run_id, position, site, company, service, menu, url, check_name, type, locator, value, status, screenshot, error, checked_at`

// RunResults returns the records of a run in execution order.
func (d *DB) RunResults(ctx context.Context, runID string) ([]Result, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying results of run %s: %w", runID, err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// LatestResults returns the most recent record of each check.
func (d *DB) LatestResults(ctx context.Context) ([]Result, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+resultColumns+`
		FROM results
		WHERE id IN (
			SELECT MAX(id) FROM results GROUP BY check_name
		)
		ORDER BY check_name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying latest results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// CheckHistory returns a check's records newest first plus the total count.
func (d *DB) CheckHistory(ctx context.Context, check string, limit, offset int) ([]Result, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM results WHERE check_name = ?`, check,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting results for %q: %w", check, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE check_name = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		check, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", check, err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// PassRate returns the percentage of PASS records among the last N records
// of a check.
func (d *DB) PassRate(ctx context.Context, check string, last int) (float64, error) {
	var total int
	var passCount sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN status = 'PASS' THEN 1 ELSE 0 END)
		FROM (
			SELECT status FROM results WHERE check_name = ? ORDER BY id DESC LIMIT ?
		)
	`, check, last).Scan(&total, &passCount)
	if err != nil {
		return 0, fmt.Errorf("calculating pass rate for %q: %w", check, err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(passCount.Int64) / float64(total) * 100, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
		}
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var started, finished string
	err := row.Scan(&r.ID, &started, &finished, &r.ConfigDigest, &r.Passed, &r.Failed, &r.ReportPath)
	if err != nil {
		return nil, err
	}
	if r.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanResults(rows *sql.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		var status, checkedAt string
		err := rows.Scan(&r.RunID, &r.Position, &r.Site, &r.Company, &r.Service, &r.Menu, &r.URL,
			&r.Check, &r.Type, &r.Locator, &r.Value, &status, &r.Screenshot, &r.Error, &checkedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		r.Status = checker.Status(status)
		if r.CheckedAt, err = parseTime(checkedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}
	return results, nil
}
