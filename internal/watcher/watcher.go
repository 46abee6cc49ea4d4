package watcher

import (
	"context"
	"time"
)

// Operation classifies a filesystem change.
type Operation int

const (
	// OpCreate indicates a new file or directory appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing file's content changed.
	OpModify
	// OpDelete indicates a file or directory was removed.
	OpDelete
	// OpRename indicates a file or directory was renamed. The event names
	// the old path; the new path arrives as a separate OpCreate.
	OpRename
	// OpGitignoreChange indicates a .gitignore file was edited. Files may
	// have moved in or out of the indexable set without being touched, so
	// consumers should invalidate cached ignore rules and rescan.
	OpGitignoreChange
	// OpConfigChange indicates .repovec.yaml was edited. Exclude patterns
	// and quota settings may have changed.
	OpConfigChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed filesystem change.
type FileEvent struct {
	// Path is slash-separated and relative to the watch root.
	Path string

	// Operation is the kind of change observed.
	Operation Operation

	// IsDir reports whether the path was a directory. Always false for
	// deletions, the entry is gone before it can be checked.
	IsDir bool

	// Timestamp is when the event was observed.
	Timestamp time.Time
}

// Watcher watches a directory tree and reports changes as debounced
// batches.
type Watcher interface {
	// Start begins watching the given directory recursively and blocks
	// until Stop is called or the context is cancelled.
	Start(ctx context.Context, path string) error

	// Stop stops the watcher and releases resources. Safe to call more
	// than once.
	Stop() error

	// Events returns the channel of debounced event batches. The channel
	// is closed when the watcher stops.
	Events() <-chan []FileEvent

	// Errors returns the channel of non-fatal watcher errors. The watcher
	// keeps running after sending one.
	Errors() <-chan error
}

// Options configures watcher behavior.
type Options struct {
	// DebounceWindow is how long to coalesce events before emitting a
	// batch. Default: 200ms.
	DebounceWindow time.Duration

	// PollInterval is the sweep interval when falling back to polling.
	// Default: 5s.
	PollInterval time.Duration

	// EventBufferSize is the capacity of the batch channel. Batches are
	// dropped, with a counter, once it fills. Default: 1000.
	EventBufferSize int

	// IgnorePatterns are extra gitignore-syntax patterns applied on top
	// of the repository's .gitignore files.
	IgnorePatterns []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults returns a copy with defaults filled in for zero values.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = def.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = def.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = def.EventBufferSize
	}
	return o
}
