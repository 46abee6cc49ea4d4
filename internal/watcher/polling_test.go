package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPolling runs a polling watcher over root in the background and
// waits for the baseline sweep.
func startPolling(t *testing.T, root string, interval time.Duration) *PollingWatcher {
	t.Helper()

	w := NewPollingWatcher(interval)
	t.Cleanup(func() { _ = w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Start(ctx, root) }()

	time.Sleep(100 * time.Millisecond)
	return w
}

// waitForPollOp drains events until one matches path and op.
func waitForPollOp(t *testing.T, w *PollingWatcher, path string, op Operation) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "events channel closed while waiting for %s %s", op, path)
			if ev.Path == path && ev.Operation == op {
				return
			}
		case err := <-w.Errors():
			t.Fatalf("unexpected watcher error: %v", err)
		case <-deadline:
			t.Fatalf("timed out waiting for %s %s", op, path)
		}
	}
}

func TestPollingWatcher_Start_MissingRootFails(t *testing.T) {
	w := NewPollingWatcher(20 * time.Millisecond)

	err := w.Start(context.Background(), filepath.Join(t.TempDir(), "gone"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch root")
}

func TestPollingWatcher_BaselineEmitsNothing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.go"), []byte("package main"), 0o644))

	w := startPolling(t, root, 20*time.Millisecond)

	// A few sweeps happen, none of them should report the untouched file.
	time.Sleep(150 * time.Millisecond)
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %s %s", ev.Operation, ev.Path)
	default:
	}
}

func TestPollingWatcher_DetectsFileCreation(t *testing.T) {
	root := t.TempDir()
	w := startPolling(t, root, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.go"), []byte("package main"), 0o644))

	waitForPollOp(t, w, "new.go", OpCreate)
}

func TestPollingWatcher_DetectsFileModification(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "existing.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))

	w := startPolling(t, root, 20*time.Millisecond)

	// Longer content changes the size, so the diff is seen even on
	// filesystems with coarse mtime resolution.
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))

	waitForPollOp(t, w, "existing.go", OpModify)
}

func TestPollingWatcher_DetectsFileDeletion(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "doomed.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))

	w := startPolling(t, root, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))

	waitForPollOp(t, w, "doomed.go", OpDelete)
}

func TestPollingWatcher_DetectsNewDirectory(t *testing.T) {
	root := t.TempDir()
	w := startPolling(t, root, 20*time.Millisecond)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))

	waitForPollOp(t, w, "pkg", OpCreate)
}

func TestPollingWatcher_NestedPathsAreSlashRelative(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))

	w := startPolling(t, root, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "deep.go"), []byte("package b"), 0o644))

	waitForPollOp(t, w, "a/b/deep.go", OpCreate)
}

func TestPollingWatcher_StopIsIdempotent(t *testing.T) {
	w := NewPollingWatcher(20 * time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok, "events channel should be closed")
}
