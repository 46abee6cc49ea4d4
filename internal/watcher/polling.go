package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by walking the tree on an interval and
// diffing modification time and size against the previous sweep. It is
// the fallback for filesystems where fsnotify delivers no events.
type PollingWatcher struct {
	interval time.Duration

	mu      sync.Mutex
	known   map[string]pollState
	root    string
	stopped bool

	events chan FileEvent
	errors chan error
	stopCh chan struct{}
}

type pollState struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher with the given sweep
// interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		known:    make(map[string]pollState),
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start begins sweeping the given directory. It blocks until Stop is
// called or the context is cancelled.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve watch root: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("failed to stat watch root: %w", err)
	}
	p.root = absPath

	// First walk establishes the baseline, no events are emitted for
	// files that already exist.
	p.mu.Lock()
	p.known = p.walk()
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.sweep()
		}
	}
}

// Stop stops the watcher and closes its channels. Safe to call more than
// once.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of raw file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of sweep errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// walk returns the current state of every entry under the root.
// Unreadable entries are skipped.
func (p *PollingWatcher) walk() map[string]pollState {
	state := make(map[string]pollState)
	_ = filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, rerr := filepath.Rel(p.root, path)
		if rerr != nil || rel == "." {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}
		state[filepath.ToSlash(rel)] = pollState{
			modTime: info.ModTime(),
			size:    info.Size(),
			isDir:   d.IsDir(),
		}
		return nil
	})
	return state
}

// sweep walks the tree once and emits an event for every difference
// against the previous sweep.
func (p *PollingWatcher) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	current := p.walk()

	for rel, now := range current {
		prev, seen := p.known[rel]
		switch {
		case !seen:
			p.emit(FileEvent{Path: rel, Operation: OpCreate, IsDir: now.isDir, Timestamp: time.Now()})
		case prev.modTime != now.modTime || prev.size != now.size:
			p.emit(FileEvent{Path: rel, Operation: OpModify, IsDir: now.isDir, Timestamp: time.Now()})
		}
	}

	for rel := range p.known {
		if _, still := current[rel]; !still {
			p.emit(FileEvent{Path: rel, Operation: OpDelete, Timestamp: time.Now()})
		}
	}

	p.known = current
}

// emit sends one event without blocking. Must be called with the lock
// held.
func (p *PollingWatcher) emit(event FileEvent) {
	select {
	case p.events <- event:
	default:
		slog.Warn("polling watcher buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}
