package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/repovec/repovec/internal/chunk"
	"github.com/repovec/repovec/internal/embed"
	"github.com/repovec/repovec/internal/ledger"
	"github.com/repovec/repovec/internal/scanner"
	"github.com/repovec/repovec/internal/store"
)

// Recorder receives a row per completed run. Implemented by the
// telemetry store; always best-effort.
type Recorder interface {
	RecordRun(ctx context.Context, report *RunReport) error
}

// Config wires the engine's collaborators and tuning knobs.
type Config struct {
	// RootDir is the absolute project root being indexed.
	RootDir string
	// DataDir holds the ledger, lock and sidecar files.
	DataDir string

	Scanner     *scanner.Scanner
	ScanOptions *scanner.Options
	Chunker     *chunk.Chunker
	Embedder    embed.Embedder
	Vectors     store.VectorStore
	// Keyword is the optional local sidecar; nil disables it.
	Keyword *store.KeywordIndex
	// State persists the ledger and hash documents.
	State ledger.Store
	// Telemetry records per-run history; nil disables it.
	Telemetry Recorder

	// CheckpointInterval is processed files between durable saves.
	CheckpointInterval int
	// DailyUnitLimit caps chunks upserted per calendar day.
	DailyUnitLimit int
	// EstimatedChunksPerFile prices unseen files at the quota pre-gate.
	EstimatedChunksPerFile int
	// ErrorLogSize bounds the rolling per-file error buffer.
	ErrorLogSize int

	// OnProgress, when set, is called after each processed file.
	OnProgress func(done, total int, path string)

	// Now injects a clock; defaults to time.Now.
	Now func() time.Time
}

// Engine owns all mutable indexing state: the ledger, the committed
// hash snapshot, the error log and the run guard. One Engine per
// project; a data-dir flock keeps other processes out.
type Engine struct {
	cfg  Config
	now  func() time.Time
	lock *instanceLock

	mu         sync.Mutex
	led        *ledger.Ledger
	hashes     *ledger.HashDoc
	errLog     *errorLog
	isIndexing bool
	absorbed   int
	reconciled bool
	phase      string
}

// New creates an engine, acquires the data-dir lock, and loads
// persisted state. Missing state files mean a fresh project; unreadable
// ones are logged and replaced with fresh in-memory documents.
func New(cfg Config) (*Engine, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("engine requires a project root")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("engine requires a data directory")
	}
	if cfg.Scanner == nil || cfg.ScanOptions == nil {
		return nil, fmt.Errorf("engine requires a scanner")
	}
	if cfg.Chunker == nil {
		return nil, fmt.Errorf("engine requires a chunker")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("engine requires an embedder")
	}
	if cfg.Vectors == nil {
		return nil, fmt.Errorf("engine requires a vector store")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("engine requires a state store")
	}

	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 10
	}
	if cfg.DailyUnitLimit <= 0 {
		cfg.DailyUnitLimit = 5000
	}
	if cfg.EstimatedChunksPerFile <= 0 {
		cfg.EstimatedChunksPerFile = 8
	}
	if cfg.ErrorLogSize <= 0 {
		cfg.ErrorLogSize = 50
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	lock, err := acquireLock(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		now:    now,
		lock:   lock,
		errLog: newErrorLog(cfg.ErrorLogSize),
		phase:  PhaseIdle,
	}
	e.loadState()

	slog.Debug("engine_ready",
		slog.String("root", cfg.RootDir),
		slog.String("model", cfg.Embedder.ModelName()),
		slog.Int("dimensions", cfg.Embedder.Dimensions()),
		slog.Int("embed_concurrency", cfg.Embedder.PreferredConcurrency()),
		slog.Int("daily_unit_limit", cfg.DailyUnitLimit))

	return e, nil
}

// loadState reads both persisted documents. State read errors are not
// fatal; the engine continues with fresh in-memory documents and
// accepts re-doing work.
func (e *Engine) loadState() {
	now := e.now()

	led, err := e.cfg.State.LoadLedger()
	if err != nil {
		if !isNotExist(err) {
			slog.Warn("ledger_load_failed",
				slog.String("error", err.Error()))
		}
		led = ledger.New(e.cfg.DailyUnitLimit, now)
	}
	// The configured limit wins over whatever was persisted.
	led.DailyQuota.Limit = e.cfg.DailyUnitLimit

	hashes, err := e.cfg.State.LoadHashes()
	if err != nil {
		if !isNotExist(err) {
			slog.Warn("hash_snapshot_load_failed",
				slog.String("error", err.Error()))
		}
		hashes = ledger.NewHashDoc()
	}

	e.mu.Lock()
	e.led = led
	e.hashes = hashes
	e.mu.Unlock()
}

// Close releases the data-dir lock. It does not close the injected
// collaborators; the caller owns their lifecycles.
func (e *Engine) Close() error {
	return e.lock.release()
}

// TriggerScanAndIndex runs the pipeline. When a run is already active
// the trigger is absorbed (nil report, nil error): the active run's
// successor will rescan and pick up whatever changed. After a run
// completes, absorbed triggers fold into one immediate follow-up run.
func (e *Engine) TriggerScanAndIndex(ctx context.Context) (*RunReport, error) {
	e.mu.Lock()
	if e.isIndexing {
		e.absorbed++
		depth := e.absorbed
		e.mu.Unlock()
		slog.Debug("index_trigger_absorbed", slog.Int("queue_depth", depth))
		return nil, nil
	}
	e.isIndexing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.isIndexing = false
		e.phase = PhaseIdle
		e.mu.Unlock()
	}()

	if err := e.ensureReconciled(ctx); err != nil {
		return nil, err
	}

	var report *RunReport
	for {
		var err error
		report, err = e.runOnce(ctx)
		if err != nil {
			return report, err
		}

		e.mu.Lock()
		rerun := e.absorbed > 0
		e.absorbed = 0
		e.mu.Unlock()
		if !rerun {
			return report, nil
		}
		slog.Debug("index_rerun_for_absorbed_triggers")
	}
}

// ensureReconciled runs the drift check once, before the first run.
func (e *Engine) ensureReconciled(ctx context.Context) error {
	e.mu.Lock()
	done := e.reconciled
	e.mu.Unlock()
	if done {
		return nil
	}

	if err := e.reconcile(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	e.reconciled = true
	e.mu.Unlock()
	return nil
}

// Status returns a read-only copy of the engine's state.
func (e *Engine) Status() StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	quota := e.led.DailyQuota
	return StatusSnapshot{
		IsIndexing:   e.isIndexing,
		Phase:        e.phase,
		QueueDepth:   e.absorbed,
		PendingCount: len(e.led.PendingQueue),
		IndexedFiles: len(e.led.IndexedFiles),
		Quota:        quota,
		Stats:        e.led.Stats,
		RecentErrors: e.errLog.recent(),
	}
}

// setPhase publishes the active run's stage for status readers.
func (e *Engine) setPhase(phase string) {
	e.mu.Lock()
	e.phase = phase
	e.mu.Unlock()
}

// persistState saves both documents atomically, logging failures
// instead of aborting: losing a checkpoint is re-doable work, a dead
// run is not.
func (e *Engine) persistState() {
	e.mu.Lock()
	led := e.led.Clone()
	hashes := e.hashes.Clone()
	e.mu.Unlock()

	if err := e.cfg.State.SaveLedger(led); err != nil {
		slog.Warn("ledger_persist_failed", slog.String("error", err.Error()))
	}
	if err := e.cfg.State.SaveHashes(hashes); err != nil {
		slog.Warn("hash_snapshot_persist_failed", slog.String("error", err.Error()))
	}
}

// isNotExist reports whether a state load failed because the file has
// never been written, which is the normal first-run case.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// recordFailure logs a per-file error into the bounded buffer and the
// run report. The run always continues.
func (e *Engine) recordFailure(report *RunReport, path string, err error) {
	report.Failed++
	now := e.now()

	e.mu.Lock()
	e.errLog.add(path, err.Error(), now)
	e.mu.Unlock()

	slog.Warn("file_processing_failed",
		slog.String("path", path),
		slog.String("error", err.Error()))
}
