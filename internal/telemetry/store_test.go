package telemetry

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repovec/repovec/internal/engine"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	require.NoError(t, err)

	err = InitSchema(db)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func report(started time.Time, indexed, units int, exhausted bool) *engine.RunReport {
	return &engine.RunReport{
		StartedAt:      started,
		Duration:       1500 * time.Millisecond,
		New:            2,
		Modified:       1,
		Unchanged:      7,
		Deleted:        1,
		Indexed:        indexed,
		Skipped:        1,
		Deferred:       3,
		UnitsCharged:   units,
		QuotaExhausted: exhausted,
	}
}

func TestNewStore_NilDB(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}

func TestStore_RecordRun_NilReport(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	assert.Error(t, store.RecordRun(context.Background(), nil))
}

func TestStore_RecordRun_RoundTrip(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	started := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	err = store.RecordRun(context.Background(), report(started, 12, 96, true))
	require.NoError(t, err)

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	r := runs[0]
	assert.True(t, r.StartedAt.Equal(started))
	assert.Equal(t, 1500*time.Millisecond, r.Duration)
	assert.Equal(t, 2, r.New)
	assert.Equal(t, 1, r.Modified)
	assert.Equal(t, 7, r.Unchanged)
	assert.Equal(t, 1, r.Deleted)
	assert.Equal(t, 12, r.Indexed)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 0, r.Failed)
	assert.Equal(t, 3, r.Deferred)
	assert.Equal(t, 96, r.UnitsCharged)
	assert.True(t, r.QuotaExhausted)
}

func TestStore_Recent_NewestFirst(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err = store.RecordRun(context.Background(),
			report(base.Add(time.Duration(i)*time.Hour), i, i*10, false))
		require.NoError(t, err)
	}

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, 2, runs[0].Indexed)
	assert.Equal(t, 1, runs[1].Indexed)
	assert.Equal(t, 0, runs[2].Indexed)
}

func TestStore_Recent_DefaultLimit(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		err = store.RecordRun(context.Background(),
			report(base.Add(time.Duration(i)*time.Minute), i, 0, false))
		require.NoError(t, err)
	}

	runs, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 20)
}

func TestStore_RecordRun_TrimsHistory(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewStore(db)
	require.NoError(t, err)

	// Seed past the cap in one transaction to keep the test fast.
	tx, err := db.Begin()
	require.NoError(t, err)
	stmt, err := tx.Prepare(`
		INSERT INTO index_runs (
			started_at, date, duration_ms,
			new_files, modified, unchanged, deleted,
			indexed, skipped, failed, deferred,
			units_charged, quota_exhausted
		) VALUES (?, '2026-08-01', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	`)
	require.NoError(t, err)
	for i := 0; i < historyCap+200; i++ {
		_, err = stmt.Exec(time.Now().UTC().Format(time.RFC3339Nano))
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close())
	require.NoError(t, tx.Commit())

	err = store.RecordRun(context.Background(),
		report(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC), 1, 1, false))
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM index_runs`).Scan(&count))
	assert.Equal(t, historyCap, count)
}

func TestStore_Summary_DateRange(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	days := []struct {
		started   time.Time
		indexed   int
		units     int
		exhausted bool
	}{
		{time.Date(2026, 8, 22, 10, 0, 0, 0, time.Local), 10, 80, false},
		{time.Date(2026, 8, 23, 10, 0, 0, 0, time.Local), 20, 160, true},
		{time.Date(2026, 8, 24, 10, 0, 0, 0, time.Local), 30, 240, false},
	}
	for _, d := range days {
		err = store.RecordRun(context.Background(),
			report(d.started, d.indexed, d.units, d.exhausted))
		require.NoError(t, err)
	}

	sum, err := store.Summary(context.Background(), "2026-08-22", "2026-08-23")
	require.NoError(t, err)

	assert.Equal(t, int64(2), sum.Runs)
	assert.Equal(t, int64(30), sum.Indexed)
	assert.Equal(t, int64(240), sum.UnitsCharged)
	assert.Equal(t, int64(6), sum.Deferred)
	assert.Equal(t, int64(1), sum.QuotaExhausted)
}

func TestStore_Summary_EmptyRange(t *testing.T) {
	store, err := NewStore(setupTestDB(t))
	require.NoError(t, err)

	sum, err := store.Summary(context.Background(), "2001-01-01", "2001-12-31")
	require.NoError(t, err)

	assert.Equal(t, Summary{}, sum)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(dbPath)
	require.NoError(t, err)

	started := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordRun(context.Background(), report(started, 5, 40, false)))
	require.NoError(t, store.Close())

	reopened, err := Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].Indexed)
	assert.Equal(t, 40, runs[0].UnitsCharged)
}
