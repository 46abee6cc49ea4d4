package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/repovec/repovec/internal/chunk"
	rverr "github.com/repovec/repovec/internal/errors"
	"github.com/repovec/repovec/internal/ledger"
	"github.com/repovec/repovec/internal/store"
)

// runOnce executes one full pipeline pass: scan, categorize, propagate
// deletions, then work through the prioritized list under the daily
// quota. State is checkpointed every CheckpointInterval files and
// persisted once more before returning no matter how the run ended, so
// an interrupted run resumes from its last committed file instead of
// restarting.
func (e *Engine) runOnce(ctx context.Context) (*RunReport, error) {
	started := e.now()
	report := &RunReport{StartedAt: started}

	e.setPhase(PhaseScanning)
	slog.Info("index_run_started", slog.String("root", e.cfg.RootDir))

	universe, err := e.cfg.Scanner.Snapshot(ctx, e.cfg.ScanOptions)
	if err != nil {
		return report, fmt.Errorf("scan failed: %w", err)
	}
	// A canceled scan can come back empty rather than failed; treating
	// that as "every file deleted" would tear down the index.
	if err := ctx.Err(); err != nil {
		return report, err
	}

	e.setPhase(PhaseCategorizing)
	e.mu.Lock()
	pending := e.led.DrainPending()
	cat := Categorize(universe, e.led)
	e.led.Stats = ledger.RunStats{
		New:       len(cat.New),
		Modified:  len(cat.Modified),
		Unchanged: len(cat.Unchanged),
		Deleted:   len(cat.Deleted),
		LastRunAt: started,
	}
	e.mu.Unlock()

	report.New = len(cat.New)
	report.Modified = len(cat.Modified)
	report.Unchanged = len(cat.Unchanged)
	report.Deleted = len(cat.Deleted)

	slog.Info("index_run_categorized",
		slog.Int("new", report.New),
		slog.Int("modified", report.Modified),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("deleted", report.Deleted),
		slog.Int("pending", len(pending)))

	// Deletions propagate before any quota consideration; removing
	// vectors costs no units.
	e.setPhase(PhaseDrainingDeletions)
	for _, path := range cat.Deleted {
		if ctx.Err() != nil {
			break
		}
		e.removePath(ctx, path, report)
	}

	e.setPhase(PhasePrioritizing)
	work := e.buildWorkList(pending, cat, universe, report)

	attempt, deferred := e.pregate(work)
	if len(deferred) > 0 {
		e.mu.Lock()
		e.led.Enqueue(deferred...)
		e.mu.Unlock()
		report.Deferred += len(deferred)
		report.QuotaExhausted = true
		slog.Info("quota_pre_gate_deferred",
			slog.Int("deferred", len(deferred)),
			slog.Int("admitted", len(attempt)))
	}

	e.setPhase(PhaseProcessing)
	sinceCheckpoint := 0
	for i, path := range attempt {
		if ctx.Err() != nil {
			slog.Warn("index_run_interrupted",
				slog.Int("processed", i),
				slog.Int("remaining", len(attempt)-i))
			break
		}
		stop := e.processPath(ctx, path, report)
		if e.cfg.OnProgress != nil {
			e.cfg.OnProgress(i+1, len(attempt), path)
		}
		sinceCheckpoint++
		if sinceCheckpoint >= e.cfg.CheckpointInterval {
			e.setPhase(PhaseCheckpointing)
			e.persistState()
			e.setPhase(PhaseProcessing)
			sinceCheckpoint = 0
		}
		if stop {
			break
		}
	}

	e.setPhase(PhaseFinalizing)
	e.persistState()

	report.Duration = e.now().Sub(started)

	slog.Info("index_run_complete",
		slog.Int("indexed", report.Indexed),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("deferred", report.Deferred),
		slog.Int("units_charged", report.UnitsCharged),
		slog.Bool("quota_exhausted", report.QuotaExhausted),
		slog.Duration("duration", report.Duration))

	if e.cfg.Telemetry != nil {
		// Record even interrupted runs; their partial counts are real.
		if err := e.cfg.Telemetry.RecordRun(context.WithoutCancel(ctx), report); err != nil {
			slog.Warn("telemetry_record_failed", slog.String("error", err.Error()))
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// buildWorkList orders this run's attempts: quota-deferred paths from
// earlier runs first, then new files, then modified ones. Pending paths
// that vanished from the tree drop out, and the trailing filter skips
// anything whose record already matches the fresh scan hash (a queued
// edit that was reverted needs no work).
func (e *Engine) buildWorkList(pending []string, cat Categorized, universe map[string]string, report *RunReport) []string {
	ordered := make([]string, 0, len(pending)+len(cat.New)+len(cat.Modified))
	seen := make(map[string]struct{}, cap(ordered))
	add := func(p string) {
		if _, dup := seen[p]; !dup {
			seen[p] = struct{}{}
			ordered = append(ordered, p)
		}
	}
	for _, p := range pending {
		if _, ok := universe[p]; ok {
			add(p)
		}
	}
	for _, p := range cat.New {
		add(p)
	}
	for _, p := range cat.Modified {
		add(p)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	work := make([]string, 0, len(ordered))
	for _, p := range ordered {
		rec, ok := e.led.Record(p)
		if ok && rec.Status == ledger.StatusIndexed && rec.ContentHash == universe[p] {
			report.Skipped++
			continue
		}
		work = append(work, p)
	}
	return work
}

// pregate walks the priority list charging estimated units against the
// remaining daily budget. The first path that would cross the limit and
// everything after it are deferred; files seen before are priced at
// their last known chunk count, unseen ones at the configured estimate.
func (e *Engine) pregate(work []string) (attempt, deferred []string) {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	prospective := 0
	for i, path := range work {
		units := e.cfg.EstimatedChunksPerFile
		if rec, ok := e.led.Record(path); ok {
			units = rec.ChunkCount
		}
		if !e.led.DailyQuota.HasRemaining(prospective+units, now) {
			return work[:i], work[i:]
		}
		prospective += units
	}
	return work, nil
}

// processPath runs one file through the delete, parse, gate, embed,
// upsert, commit sequence. Failures are recorded and the run moves on;
// a true return means the daily budget ran out and the attempt loop
// must stop.
func (e *Engine) processPath(ctx context.Context, path string, report *RunReport) bool {
	// Clear the path's existing vectors first so shifted chunk
	// boundaries leave no stale points behind.
	if err := e.cfg.Vectors.DeleteByPath(ctx, path); err != nil {
		e.recordFailure(report, path, fmt.Errorf("failed to clear stale vectors: %w", err))
		return false
	}

	absPath := filepath.Join(e.cfg.RootDir, filepath.FromSlash(path))
	content, err := os.ReadFile(absPath)
	if err != nil {
		if isNotExist(err) {
			// Deleted between scan and processing; the next run's scan
			// settles it.
			slog.Debug("file_vanished_mid_run", slog.String("path", path))
			return false
		}
		e.recordFailure(report, path, fmt.Errorf("failed to read file: %w", err))
		return false
	}

	chunks, err := e.cfg.Chunker.Parse(ctx, path, content)
	if err != nil {
		e.recordFailure(report, path, rverr.Wrap(rverr.ErrCodeChunkingFailed, err))
		return false
	}

	contentHash := chunk.HashContent(content)

	// Zero chunks is a valid outcome for empty or comment-only files.
	// Commit the hash so the scanner stops rediscovering them.
	if len(chunks) == 0 {
		e.commit(report, path, contentHash, 0)
		return false
	}

	// Second quota gate with the real chunk count; parsing may have
	// proven the file bigger than the pre-gate estimate.
	now := e.now()
	e.mu.Lock()
	admitted := e.led.DailyQuota.HasRemaining(len(chunks), now)
	if !admitted {
		e.led.Enqueue(path)
	}
	e.mu.Unlock()
	if !admitted {
		report.Deferred++
		report.QuotaExhausted = true
		slog.Info("quota_exhausted_mid_run",
			slog.String("path", path),
			slog.Int("chunks", len(chunks)))
		return true
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := e.cfg.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		e.recordFailure(report, path, rverr.Wrap(rverr.ErrCodeEmbeddingFailed, err))
		return false
	}

	points := make([]store.Point, 0, len(chunks))
	dropped := 0
	for i, ch := range chunks {
		if i >= len(vectors) || vectors[i] == nil {
			dropped++
			continue
		}
		points = append(points, store.Point{
			ID:     ch.ID,
			Vector: vectors[i],
			Payload: store.Payload{
				Path:      path,
				Content:   ch.Content,
				Symbol:    ch.Symbol,
				StartLine: ch.StartLine,
				EndLine:   ch.EndLine,
				Language:  ch.Language,
			},
		})
	}
	if dropped > 0 {
		slog.Warn("chunks_dropped_after_embed_rejection",
			slog.String("path", path),
			slog.Int("dropped", dropped),
			slog.Int("kept", len(points)))
	}

	if len(points) > 0 {
		if err := e.cfg.Vectors.Upsert(ctx, points); err != nil {
			e.recordFailure(report, path, rverr.Wrap(rverr.ErrCodeIndexFailed, err))
			return false
		}
	}

	e.feedKeyword(ctx, path, chunks)
	e.commit(report, path, contentHash, len(points))
	return false
}

// commit records a fully processed file: ledger record, committed hash
// and quota charge move together, after the upsert is durable.
func (e *Engine) commit(report *RunReport, path, contentHash string, chunkCount int) {
	now := e.now()
	e.mu.Lock()
	e.led.SetIndexed(path, contentHash, chunkCount, now)
	e.hashes.Hashes[path] = contentHash
	if chunkCount > 0 {
		e.led.DailyQuota.Charge(chunkCount, now)
	}
	e.mu.Unlock()

	report.Indexed++
	report.UnitsCharged += chunkCount
}

// removePath propagates one filesystem deletion to the remote store,
// the keyword sidecar and local bookkeeping. When the remote delete
// fails the record stays so the next run re-detects the deletion and
// retries.
func (e *Engine) removePath(ctx context.Context, path string, report *RunReport) {
	if err := e.cfg.Vectors.DeleteByPath(ctx, path); err != nil {
		e.recordFailure(report, path, fmt.Errorf("failed to delete vectors: %w", err))
		return
	}

	if e.cfg.Keyword != nil {
		if err := e.cfg.Keyword.DeleteByPath(ctx, path); err != nil {
			slog.Warn("keyword_sidecar_delete_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}

	e.mu.Lock()
	e.led.Remove(path)
	delete(e.hashes.Hashes, path)
	e.mu.Unlock()

	slog.Debug("deleted_path_cleared", slog.String("path", path))
}

// feedKeyword mirrors a file's chunks into the local keyword sidecar.
// Sidecar failures are logged and ignored; the vector store stays the
// source of truth.
func (e *Engine) feedKeyword(ctx context.Context, path string, chunks []chunk.Chunk) {
	if e.cfg.Keyword == nil {
		return
	}
	if err := e.cfg.Keyword.DeleteByPath(ctx, path); err != nil {
		slog.Warn("keyword_sidecar_clear_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	docs := make([]store.KeywordDoc, 0, len(chunks))
	for _, ch := range chunks {
		docs = append(docs, store.KeywordDoc{
			ID:      ch.ID,
			Path:    path,
			Symbol:  ch.Symbol,
			Content: ch.Content,
		})
	}
	if err := e.cfg.Keyword.IndexChunks(ctx, docs); err != nil {
		slog.Warn("keyword_sidecar_index_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}
