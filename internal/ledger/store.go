package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	rverr "github.com/repovec/repovec/internal/errors"
)

const (
	ledgerFileName = "ledger.json"
	hashesFileName = "hashes.json"
)

// Store abstracts ledger persistence so the engine's state machine never
// touches the filesystem directly and an embedded KV store could be
// swapped in later.
type Store interface {
	LoadLedger() (*Ledger, error)
	SaveLedger(l *Ledger) error
	LoadHashes() (*HashDoc, error)
	SaveHashes(h *HashDoc) error
}

// FileStore persists both documents as human-readable JSON inside the
// data directory. Writes are atomic (temp file + rename) so a crash
// mid-write never leaves a partial document.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at the given data directory.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

var _ Store = (*FileStore)(nil)

// LoadLedger reads ledger.json. A missing file surfaces as an
// fs.ErrNotExist so callers can start fresh; a malformed file surfaces
// as a ledger-corrupt error.
func (s *FileStore) LoadLedger() (*Ledger, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, ledgerFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, rverr.New(rverr.ErrCodeLedgerCorrupt,
			"ledger.json is not valid JSON", err).
			WithDetail("path", filepath.Join(s.dir, ledgerFileName)).
			WithSuggestion("delete the file to rebuild the index from scratch")
	}

	if l.IndexedFiles == nil {
		l.IndexedFiles = make(map[string]*FileRecord)
	}
	if l.PendingQueue == nil {
		l.PendingQueue = []string{}
	}
	return &l, nil
}

// SaveLedger writes ledger.json atomically, stamping LastUpdated.
func (s *FileStore) SaveLedger(l *Ledger) error {
	l.LastUpdated = time.Now().UTC()
	return s.writeJSON(ledgerFileName, l)
}

// LoadHashes reads hashes.json with the same error contract as
// LoadLedger.
func (s *FileStore) LoadHashes() (*HashDoc, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, hashesFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read hash snapshot: %w", err)
	}

	var h HashDoc
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, rverr.New(rverr.ErrCodeLedgerCorrupt,
			"hashes.json is not valid JSON", err).
			WithDetail("path", filepath.Join(s.dir, hashesFileName))
	}

	if h.Hashes == nil {
		h.Hashes = make(map[string]string)
	}
	return &h, nil
}

// SaveHashes writes hashes.json atomically, stamping LastUpdated.
func (s *FileStore) SaveHashes(h *HashDoc) error {
	h.LastUpdated = time.Now().UTC()
	return s.writeJSON(hashesFileName, h)
}

// writeJSON marshals v with indentation and replaces the target file via
// temp file + rename.
func (s *FileStore) writeJSON(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return rverr.New(rverr.ErrCodeStateWriteFailed,
			"failed to create data directory", err).
			WithDetail("dir", s.dir)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	target := filepath.Join(s.dir, name)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return rverr.New(rverr.ErrCodeStateWriteFailed,
			"failed to write state file", err).
			WithDetail("path", tmp)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return rverr.New(rverr.ErrCodeStateWriteFailed,
			"failed to replace state file", err).
			WithDetail("path", target)
	}

	return nil
}
