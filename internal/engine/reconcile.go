package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/repovec/repovec/internal/ledger"
)

// reconcile compares the remote collection against the local ledger
// before the first run. The remote store is disposable from the
// engine's point of view: when it has lost the collection while the
// ledger still records indexed files, local bookkeeping is cleared so
// the next run rebuilds everything from the filesystem.
func (e *Engine) reconcile(ctx context.Context) error {
	remote, err := e.cfg.Vectors.PointCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to read remote point count: %w", err)
	}

	e.mu.Lock()
	local := len(e.led.IndexedFiles)
	e.mu.Unlock()

	switch {
	case remote == 0 && local == 0:
		slog.Debug("sync_check_fresh_start")
		return nil

	case remote > 0 && local > 0:
		// Point counts and file counts are different units, so equality
		// means nothing here; both being populated is the signal.
		slog.Debug("sync_check_assumed_in_sync",
			slog.Int("remote_points", remote),
			slog.Int("ledger_files", local))
		return nil

	case remote > 0 && local == 0:
		slog.Warn("sync_check_ledger_missing",
			slog.Int("remote_points", remote),
			slog.String("action", "remote data kept; files will re-index as the scanner finds them"))
		return nil
	}

	// Remote empty, ledger populated. An empty count can also be a
	// transient service hiccup, so read it again before destroying
	// local state.
	second, err := e.cfg.Vectors.PointCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm remote point count: %w", err)
	}
	if second > 0 {
		slog.Info("sync_check_recovered",
			slog.Int("remote_points", second))
		return nil
	}

	e.repairDrift(local)
	return nil
}

// repairDrift resets the ledger, pending queue, hash snapshot, daily
// consumption and keyword sidecar so the next run re-indexes the whole
// tree. The configured daily limit survives the reset.
func (e *Engine) repairDrift(ledgerFiles int) {
	slog.Warn("drift_repair_triggered",
		slog.Int("ledger_files", ledgerFiles),
		slog.String("reason", "remote collection is empty but the ledger records indexed files"))

	now := e.now()
	e.mu.Lock()
	limit := e.led.DailyQuota.Limit
	e.led.IndexedFiles = make(map[string]*ledger.FileRecord)
	e.led.PendingQueue = []string{}
	e.led.DailyQuota = ledger.DailyQuota{
		Date:  ledger.Day(now),
		Limit: limit,
	}
	e.led.Stats = ledger.RunStats{}
	e.hashes.Hashes = make(map[string]string)
	e.mu.Unlock()

	if e.cfg.Keyword != nil {
		if err := e.cfg.Keyword.Reset(); err != nil {
			slog.Warn("keyword_sidecar_reset_failed",
				slog.String("error", err.Error()))
		}
	}

	e.persistState()

	slog.Warn("drift_repair_complete",
		slog.Int("cleared_files", ledgerFiles),
		slog.String("action", "next run performs a full re-index"))
}
