// Package ledger holds the durable state of the indexing engine: per-file
// records, the pending queue, the daily quota, and the committed content
// hash snapshot. The engine owns the in-memory documents; this package
// only defines their shape and persistence.
package ledger

import (
	"sort"
	"time"
)

// Version is the current on-disk schema version for both documents.
const Version = 1

// StatusIndexed marks a file whose vectors are durably in the remote
// store at the recorded content hash.
const StatusIndexed = "indexed"

// FileRecord tracks one indexed file.
type FileRecord struct {
	// ContentHash is the SHA-256 of the content whose chunks are in the
	// remote store.
	ContentHash string `json:"contentHash"`
	// LastIndexedAt is when the upsert for this hash completed.
	LastIndexedAt time.Time `json:"lastIndexedAt"`
	// ChunkCount is the number of chunks upserted for this file.
	ChunkCount int `json:"chunkCount"`
	// Status is StatusIndexed once vectors are durable.
	Status string `json:"status"`
}

// DailyQuota is the cooperative per-calendar-day unit budget.
type DailyQuota struct {
	// Date is the local calendar day the consumption belongs to,
	// formatted as 2006-01-02.
	Date string `json:"date"`
	// UnitsConsumedToday counts chunks charged since Date began.
	UnitsConsumedToday int `json:"unitsConsumedToday"`
	// Limit is the configured daily ceiling.
	Limit int `json:"limit"`
}

// RunStats records the categorization counts of the most recent run.
type RunStats struct {
	New       int       `json:"new"`
	Modified  int       `json:"modified"`
	Unchanged int       `json:"unchanged"`
	Deleted   int       `json:"deleted"`
	LastRunAt time.Time `json:"lastRunAt"`
}

// Ledger is the engine's primary persisted document.
type Ledger struct {
	Version      int                    `json:"version"`
	LastUpdated  time.Time              `json:"lastUpdated"`
	IndexedFiles map[string]*FileRecord `json:"indexedFiles"`
	PendingQueue []string               `json:"pendingQueue"`
	DailyQuota   DailyQuota             `json:"dailyQuota"`
	Stats        RunStats               `json:"stats"`
}

// HashDoc is the committed content hash snapshot. A path's entry is
// written only after the file has been fully indexed, so a crash between
// scan and upsert leaves the stale hash in place and the file is
// rediscovered on the next run.
type HashDoc struct {
	Version     int               `json:"version"`
	LastUpdated time.Time         `json:"lastUpdated"`
	Hashes      map[string]string `json:"hashes"`
}

// Day formats a time as the quota's calendar-day key.
func Day(now time.Time) string {
	return now.Format("2006-01-02")
}

// New creates an empty ledger with the given daily limit.
func New(limit int, now time.Time) *Ledger {
	return &Ledger{
		Version:      Version,
		IndexedFiles: make(map[string]*FileRecord),
		PendingQueue: []string{},
		DailyQuota: DailyQuota{
			Date:  Day(now),
			Limit: limit,
		},
	}
}

// NewHashDoc creates an empty committed hash snapshot.
func NewHashDoc() *HashDoc {
	return &HashDoc{
		Version: Version,
		Hashes:  make(map[string]string),
	}
}

// rollover resets consumption when the stored date is no longer today.
func (q *DailyQuota) rollover(now time.Time) {
	if q.Date != Day(now) {
		q.Date = Day(now)
		q.UnitsConsumedToday = 0
	}
}

// HasRemaining reports whether prospective units still fit under the
// daily limit. The stored date rolls to today first, so the first check
// of a new day sees a full budget.
func (q *DailyQuota) HasRemaining(prospective int, now time.Time) bool {
	q.rollover(now)
	return q.UnitsConsumedToday+prospective < q.Limit
}

// Charge adds consumed units. Call only after the corresponding chunks
// are durably in the remote store.
func (q *DailyQuota) Charge(units int, now time.Time) {
	q.rollover(now)
	q.UnitsConsumedToday += units
}

// Remaining returns the units left today, never negative.
func (q *DailyQuota) Remaining(now time.Time) int {
	q.rollover(now)
	left := q.Limit - q.UnitsConsumedToday
	if left < 0 {
		return 0
	}
	return left
}

// Record returns the record for a path, if any.
func (l *Ledger) Record(path string) (*FileRecord, bool) {
	rec, ok := l.IndexedFiles[path]
	return rec, ok
}

// SetIndexed creates or updates the record for a path after a successful
// upsert.
func (l *Ledger) SetIndexed(path, contentHash string, chunkCount int, now time.Time) {
	l.IndexedFiles[path] = &FileRecord{
		ContentHash:   contentHash,
		LastIndexedAt: now,
		ChunkCount:    chunkCount,
		Status:        StatusIndexed,
	}
}

// Remove drops the record for a path.
func (l *Ledger) Remove(path string) {
	delete(l.IndexedFiles, path)
}

// Enqueue appends paths to the pending queue, skipping duplicates.
func (l *Ledger) Enqueue(paths ...string) {
	present := make(map[string]struct{}, len(l.PendingQueue))
	for _, p := range l.PendingQueue {
		present[p] = struct{}{}
	}
	for _, p := range paths {
		if _, ok := present[p]; ok {
			continue
		}
		present[p] = struct{}{}
		l.PendingQueue = append(l.PendingQueue, p)
	}
}

// DrainPending returns the queued paths and clears the queue.
func (l *Ledger) DrainPending() []string {
	drained := l.PendingQueue
	l.PendingQueue = []string{}
	return drained
}

// Paths returns the recorded paths in sorted order.
func (l *Ledger) Paths() []string {
	paths := make([]string, 0, len(l.IndexedFiles))
	for p := range l.IndexedFiles {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns a deep copy for status snapshots.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		Version:      l.Version,
		LastUpdated:  l.LastUpdated,
		IndexedFiles: make(map[string]*FileRecord, len(l.IndexedFiles)),
		PendingQueue: append([]string{}, l.PendingQueue...),
		DailyQuota:   l.DailyQuota,
		Stats:        l.Stats,
	}
	for p, rec := range l.IndexedFiles {
		copied := *rec
		c.IndexedFiles[p] = &copied
	}
	return c
}

// Clone returns a deep copy of the hash snapshot.
func (h *HashDoc) Clone() *HashDoc {
	c := &HashDoc{
		Version:     h.Version,
		LastUpdated: h.LastUpdated,
		Hashes:      make(map[string]string, len(h.Hashes)),
	}
	for p, hash := range h.Hashes {
		c.Hashes[p] = hash
	}
	return c
}
