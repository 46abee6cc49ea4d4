package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/repovec/repovec/internal/gitignore"
)

// HybridWatcher watches a repository tree with fsnotify and falls back to
// periodic polling where inotify-style watching is unavailable, such as
// some network mounts and container volume drivers.
//
// Events are filtered against the repository's .gitignore rules plus the
// configured extra patterns, debounced, and emitted as batches.
type HybridWatcher struct {
	opts      Options
	debouncer *Debouncer

	fsw  *fsnotify.Watcher
	poll *PollingWatcher

	events chan []FileEvent
	errors chan error
	stopCh chan struct{}

	mu       sync.RWMutex
	rootPath string
	ignore   *gitignore.Matcher
	stopped  bool

	droppedBatches atomic.Uint64
}

var _ Watcher = (*HybridWatcher)(nil)

// NewHybridWatcher creates a watcher with the given options. It prefers
// fsnotify and silently falls back to polling when fsnotify cannot be
// initialized.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()

	h := &HybridWatcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		ignore:    gitignore.New(),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, watching via polling",
			slog.String("error", err.Error()),
			slog.Duration("interval", opts.PollInterval))
		h.poll = NewPollingWatcher(opts.PollInterval)
		return h, nil
	}
	h.fsw = fsw
	return h, nil
}

// Start begins watching path recursively. It blocks until Stop is called
// or the context is cancelled.
func (h *HybridWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve watch root: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", absPath)
	}

	h.mu.Lock()
	h.rootPath = absPath
	h.mu.Unlock()

	h.reloadIgnoreRules()

	go h.forward(ctx)

	if h.fsw != nil {
		return h.runFsnotify(ctx)
	}
	return h.runPolling(ctx)
}

// runFsnotify registers the directory tree and pumps fsnotify events into
// the debouncer.
func (h *HybridWatcher) runFsnotify(ctx context.Context) error {
	if err := h.watchTree(h.RootPath()); err != nil {
		return fmt.Errorf("failed to register watch directories: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case ev, ok := <-h.fsw.Events:
			if !ok {
				return nil
			}
			h.handleFsnotify(ev)
		case err, ok := <-h.fsw.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

// runPolling pumps polling events into the debouncer and blocks in the
// polling loop.
func (h *HybridWatcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case ev, ok := <-h.poll.Events():
				if !ok {
					return
				}
				if h.shouldIgnore(ev.Path, ev.IsDir) {
					continue
				}
				if op, special := specialOp(ev.Path); special {
					if op == OpGitignoreChange {
						h.reloadIgnoreRules()
					}
					ev.Operation = op
					ev.IsDir = false
				}
				h.debouncer.Add(ev)
			case err, ok := <-h.poll.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()

	return h.poll.Start(ctx, h.RootPath())
}

// handleFsnotify converts one fsnotify event, filters it, and feeds the
// debouncer.
func (h *HybridWatcher) handleFsnotify(ev fsnotify.Event) {
	rel, err := filepath.Rel(h.RootPath(), ev.Name)
	if err != nil {
		rel = ev.Name
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	if h.shouldIgnore(rel, isDir) {
		return
	}

	if op, special := specialOp(rel); special {
		if op == OpGitignoreChange {
			h.reloadIgnoreRules()
		}
		h.debouncer.Add(FileEvent{Path: rel, Operation: op, Timestamp: time.Now()})
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		// Watch new directories as they appear so nested changes keep
		// flowing.
		if isDir {
			_ = h.fsw.Add(ev.Name)
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod and unknown ops carry no content change.
		return
	}

	h.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// specialOp classifies paths whose change means "re-evaluate the rules"
// rather than "reindex this file".
func specialOp(relPath string) (Operation, bool) {
	switch filepath.Base(relPath) {
	case ".gitignore":
		return OpGitignoreChange, true
	case ".repovec.yaml", ".repovec.yml":
		return OpConfigChange, true
	}
	return 0, false
}

// forward moves debounced batches to the public events channel.
func (h *HybridWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case batch, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) == 0 {
				continue
			}
			h.emit(batch)
		}
	}
}

// watchTree adds root and every non-ignored directory under it to the
// fsnotify watcher.
func (h *HybridWatcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}

		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return nil
		}
		if rel == "." {
			return h.fsw.Add(path)
		}
		if h.shouldIgnore(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}
		return h.fsw.Add(path)
	})
}

// shouldIgnore reports whether events for relPath are filtered out. The
// .git and .repovec trees are always skipped, the rest is up to the
// ignore rules.
func (h *HybridWatcher) shouldIgnore(relPath string, isDir bool) bool {
	if relPath == "" || relPath == "." {
		return true
	}
	if underDir(relPath, ".git") || underDir(relPath, ".repovec") {
		return true
	}
	return h.matcher().Ignored(relPath, isDir)
}

// underDir reports whether relPath is dir itself or anything beneath it.
func underDir(relPath, dir string) bool {
	return relPath == dir || strings.HasPrefix(relPath, dir+"/")
}

// reloadIgnoreRules rebuilds the ignore matcher from the configured
// patterns plus every .gitignore under the root, then swaps it in. The
// build happens on a fresh matcher so event filtering never sees a
// half-loaded rule set.
func (h *HybridWatcher) reloadIgnoreRules() {
	m := gitignore.New()
	for _, pattern := range h.opts.IgnorePatterns {
		m.Add(pattern)
	}

	root := h.RootPath()
	rootIgnore := filepath.Join(root, ".gitignore")
	if err := m.Load(rootIgnore, ""); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load root .gitignore",
			slog.String("path", rootIgnore),
			slog.String("error", err.Error()))
	}

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("skipping directory in ignore rule scan",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		if d.IsDir() || d.Name() != ".gitignore" || path == rootIgnore {
			return nil
		}
		scope, rerr := filepath.Rel(root, filepath.Dir(path))
		if rerr != nil {
			return nil
		}
		if err := m.Load(path, filepath.ToSlash(scope)); err != nil {
			slog.Warn("failed to load nested .gitignore",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})

	h.mu.Lock()
	h.ignore = m
	h.mu.Unlock()
}

func (h *HybridWatcher) matcher() *gitignore.Matcher {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ignore
}

// emit sends a batch without blocking, counting drops when the consumer
// falls behind. The read lock is held across the send so Stop cannot
// close the channel mid-send.
func (h *HybridWatcher) emit(batch []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.stopped {
		return
	}

	select {
	case h.events <- batch:
	default:
		dropped := h.droppedBatches.Add(1)
		slog.Warn("watch event buffer full, dropping batch",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("dropped_total", dropped))
	}
}

// emitError sends an error without blocking.
func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.stopped {
		return
	}

	select {
	case h.errors <- err:
	default:
	}
}

// Stop stops the watcher and closes the event and error channels. Safe to
// call more than once.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)

	h.debouncer.Stop()
	if h.fsw != nil {
		_ = h.fsw.Close()
	}
	if h.poll != nil {
		_ = h.poll.Stop()
	}

	close(h.events)
	close(h.errors)
	return nil
}

// Events returns the channel of debounced event batches.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns the channel of non-fatal errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// DroppedBatches returns how many batches were dropped because the event
// buffer was full.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.droppedBatches.Load()
}

// IsHealthy reports whether the watcher is still running.
func (h *HybridWatcher) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.stopped
}

// WatcherType reports which mechanism is active, "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// RootPath returns the watched root directory.
func (h *HybridWatcher) RootPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rootPath
}
