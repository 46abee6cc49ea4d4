// Package engine drives incremental indexing: it decides per run which
// files need work, how far the daily budget lets it go, how to resume
// after interruption, and how to repair disagreement between the local
// ledger and the remote vector store.
package engine

import (
	"time"

	"github.com/repovec/repovec/internal/ledger"
)

// Run phases, visible through Status for observability.
const (
	PhaseIdle              = "idle"
	PhaseScanning          = "scanning"
	PhaseCategorizing      = "categorizing"
	PhaseDrainingDeletions = "draining_deletions"
	PhasePrioritizing      = "prioritizing"
	PhaseProcessing        = "processing"
	PhaseCheckpointing     = "checkpointing"
	PhaseFinalizing        = "finalizing"
)

// Categorized partitions the watched universe against the ledger. The
// four sets are disjoint; every watched file lands in exactly one, and
// every ledger path missing from the universe lands in Deleted.
type Categorized struct {
	// New paths have no ledger record.
	New []string
	// Modified paths have a record whose hash differs from the fresh one.
	Modified []string
	// Unchanged paths match their record; never passed downstream.
	Unchanged []string
	// Deleted paths have a record but are absent from the scan.
	Deleted []string
}

// IndexError is one entry of the bounded rolling per-file error log.
type IndexError struct {
	Path      string    `json:"path"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	// Categorization counts for the run's scan.
	New       int `json:"new"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`

	// Indexed counts files whose vectors were upserted (or that parsed
	// to zero chunks) and whose ledger records were committed.
	Indexed int `json:"indexed"`
	// Skipped counts paths dropped by the resume filter.
	Skipped int `json:"skipped"`
	// Failed counts files that hit a per-file error and were passed over.
	Failed int `json:"failed"`
	// Deferred counts paths pushed to the pending queue on quota
	// exhaustion.
	Deferred int `json:"deferred"`
	// UnitsCharged is the quota consumed by this run.
	UnitsCharged int `json:"unitsCharged"`
	// QuotaExhausted is true when the run ended early on the budget.
	QuotaExhausted bool `json:"quotaExhausted"`
}

// StatusSnapshot is a read-only copy of the engine's state.
type StatusSnapshot struct {
	// IsIndexing is true while a run is active.
	IsIndexing bool `json:"isIndexing"`
	// Phase is the active run's current stage, PhaseIdle between runs.
	Phase string `json:"phase"`
	// QueueDepth counts triggers absorbed while a run was active; the
	// engine folds them into a follow-up run.
	QueueDepth int `json:"queueDepth"`
	// PendingCount is the quota-deferred queue length.
	PendingCount int `json:"pendingCount"`
	// IndexedFiles is the number of paths the ledger believes indexed.
	IndexedFiles int `json:"indexedFiles"`

	Quota        ledger.DailyQuota `json:"quota"`
	Stats        ledger.RunStats   `json:"stats"`
	RecentErrors []IndexError      `json:"recentErrors"`
}
