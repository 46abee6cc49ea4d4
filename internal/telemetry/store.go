// Package telemetry keeps local per-run indexing history. Rows live in
// a SQLite file inside the data dir and feed the stats command; nothing
// is reported anywhere.
package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/repovec/repovec/internal/engine"
	"github.com/repovec/repovec/internal/ledger"
)

// historyCap bounds the run table; the oldest rows are trimmed on
// insert.
const historyCap = 1000

// RunRow is one recorded pipeline run.
type RunRow struct {
	ID        int64         `json:"id"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	New       int `json:"new"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`

	Indexed        int  `json:"indexed"`
	Skipped        int  `json:"skipped"`
	Failed         int  `json:"failed"`
	Deferred       int  `json:"deferred"`
	UnitsCharged   int  `json:"unitsCharged"`
	QuotaExhausted bool `json:"quotaExhausted"`
}

// Summary aggregates runs over a date range.
type Summary struct {
	Runs           int64 `json:"runs"`
	Indexed        int64 `json:"indexed"`
	Failed         int64 `json:"failed"`
	Deferred       int64 `json:"deferred"`
	UnitsCharged   int64 `json:"unitsCharged"`
	QuotaExhausted int64 `json:"quotaExhaustedRuns"`
}

// Store persists run history through database/sql. Open uses the pure
// Go driver; NewStore accepts any handle with the schema in place.
type Store struct {
	db     *sql.DB
	ownsDB bool
}

var _ engine.Recorder = (*Store)(nil)

// NewStore wraps an existing database handle. InitSchema must have run
// against it. Close leaves the handle open for its owner.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &Store{db: db}, nil
}

// Open creates or opens the history database at path and initializes
// the schema. Close closes the handle.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores DSN pragma params; set them via statements.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := InitSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, ownsDB: true}, nil
}

// InitSchema creates the run history table if it does not exist.
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		date TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		new_files INTEGER NOT NULL,
		modified INTEGER NOT NULL,
		unchanged INTEGER NOT NULL,
		deleted INTEGER NOT NULL,
		indexed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		deferred INTEGER NOT NULL,
		units_charged INTEGER NOT NULL,
		quota_exhausted INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_index_runs_date ON index_runs(date);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// RecordRun inserts one row and trims the table to the cap. The date
// column uses the same local calendar day as the quota, so stats days
// line up with budget days.
func (s *Store) RecordRun(ctx context.Context, report *engine.RunReport) error {
	if report == nil {
		return fmt.Errorf("run report is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_runs (
			started_at, date, duration_ms,
			new_files, modified, unchanged, deleted,
			indexed, skipped, failed, deferred,
			units_charged, quota_exhausted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		ledger.Day(report.StartedAt),
		report.Duration.Milliseconds(),
		report.New, report.Modified, report.Unchanged, report.Deleted,
		report.Indexed, report.Skipped, report.Failed, report.Deferred,
		report.UnitsCharged, boolToInt(report.QuotaExhausted),
	)
	if err != nil {
		return fmt.Errorf("insert run row: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM index_runs
		WHERE id NOT IN (
			SELECT id FROM index_runs
			ORDER BY id DESC
			LIMIT ?
		)
	`, historyCap)
	if err != nil {
		return fmt.Errorf("trim run history: %w", err)
	}

	return nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms,
		       new_files, modified, unchanged, deleted,
		       indexed, skipped, failed, deferred,
		       units_charged, quota_exhausted
		FROM index_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRow
	for rows.Next() {
		var (
			r          RunRow
			startedAt  string
			durationMS int64
			exhausted  int
		)
		err := rows.Scan(&r.ID, &startedAt, &durationMS,
			&r.New, &r.Modified, &r.Unchanged, &r.Deleted,
			&r.Indexed, &r.Skipped, &r.Failed, &r.Deferred,
			&r.UnitsCharged, &exhausted)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.QuotaExhausted = exhausted != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Summary aggregates runs between two dates inclusive (2006-01-02).
func (s *Store) Summary(ctx context.Context, from, to string) (Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(indexed), 0),
		       COALESCE(SUM(failed), 0),
		       COALESCE(SUM(deferred), 0),
		       COALESCE(SUM(units_charged), 0),
		       COALESCE(SUM(quota_exhausted), 0)
		FROM index_runs
		WHERE date >= ? AND date <= ?
	`, from, to)

	var sum Summary
	err := row.Scan(&sum.Runs, &sum.Indexed, &sum.Failed,
		&sum.Deferred, &sum.UnitsCharged, &sum.QuotaExhausted)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize runs: %w", err)
	}
	return sum, nil
}

// Close closes the handle when this store opened it. A shared handle
// stays open for its owner.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
