// Package watcher provides filesystem watching with debouncing and
// gitignore-aware filtering, feeding the indexing engine's trigger in
// watch mode.
//
// Watching is hybrid:
//   - Primary: fsnotify, event-based
//   - Fallback: polling, for network mounts and container volumes where
//     fsnotify delivers nothing
//
// Rapid event bursts from editors and git operations are coalesced into
// batches, so a consumer typically turns one batch into one index run.
// Edits to .gitignore or .repovec.yaml surface as dedicated operations
// because they change which files are indexable without touching them.
//
// Usage:
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Start(ctx, root)
//
//	for batch := range w.Events() {
//	    // inspect batch, then trigger an index run
//	}
package watcher
