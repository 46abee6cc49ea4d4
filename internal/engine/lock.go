package engine

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	rverr "github.com/repovec/repovec/internal/errors"
)

const lockFileName = ".engine.lock"

// instanceLock is the cross-process guard on the data directory. Two
// processes indexing the same project would race on the ledger files
// and double-spend quota.
type instanceLock struct {
	flock  *flock.Flock
	locked bool
}

// acquireLock takes the data-dir lock without blocking. A held lock is
// a user-facing error, not a wait.
func acquireLock(dataDir string) (*instanceLock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, rverr.New(rverr.ErrCodeStateWriteFailed,
			"failed to create data directory", err).
			WithDetail("dir", dataDir)
	}

	l := &instanceLock{flock: flock.New(filepath.Join(dataDir, lockFileName))}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return nil, rverr.New(rverr.ErrCodeDataDirLocked,
			"failed to acquire data directory lock", err).
			WithDetail("dir", dataDir)
	}
	if !acquired {
		return nil, rverr.New(rverr.ErrCodeDataDirLocked,
			"another repovec process is using this project", nil).
			WithDetail("dir", dataDir).
			WithSuggestion("stop the other process or wait for it to finish")
	}

	l.locked = true
	return l, nil
}

// release drops the lock. Safe to call twice.
func (l *instanceLock) release() error {
	if l == nil || !l.locked {
		return nil
	}
	l.locked = false
	return l.flock.Unlock()
}
