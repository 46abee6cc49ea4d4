package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces bursts of events for the same path so that one
// editor save (often a create, several writes and a chmod) produces one
// event instead of five. Merging follows the net effect of the sequence:
//
//	CREATE then MODIFY -> CREATE (file is still new)
//	CREATE then DELETE -> dropped (file never really existed)
//	MODIFY then DELETE -> DELETE (file is gone)
//	DELETE then CREATE -> MODIFY (file was replaced)
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*trackedEvent
	timer   *time.Timer
	out     chan []FileEvent
	stopped bool
}

type trackedEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer that emits batches after the given
// window of quiet.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*trackedEvent),
		out:     make(chan []FileEvent, 10),
	}
}

// Add records an event, merging it with any pending event for the same
// path, and arms the flush timer.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if tracked, ok := d.pending[event.Path]; ok {
		merged, keep := merge(tracked, event)
		if !keep {
			delete(d.pending, event.Path)
		} else {
			tracked.event = merged
		}
	} else {
		d.pending[event.Path] = &trackedEvent{event: event, firstOp: event.Operation}
	}

	d.armFlush()
}

// merge combines a tracked event with the next observed one. keep=false
// means the pair cancelled out and nothing should be emitted.
func merge(tracked *trackedEvent, next FileEvent) (merged FileEvent, keep bool) {
	switch tracked.firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return tracked.event, true
		case OpDelete:
			return FileEvent{}, false
		}
	case OpDelete:
		if next.Operation == OpCreate {
			next.Operation = OpModify
			return next, true
		}
	}
	return next, true
}

// armFlush restarts the flush timer. Each Add pushes the flush out, so a
// batch is emitted only after the window has been quiet.
func (d *Debouncer) armFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits everything pending as one batch.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, tracked := range d.pending {
		batch = append(batch, tracked.event)
	}
	d.pending = make(map[string]*trackedEvent)

	select {
	case d.out <- batch:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.out
}

// Stop stops the debouncer and closes the output channel. Safe to call
// more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
