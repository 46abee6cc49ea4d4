package engine

import (
	"sort"

	"github.com/repovec/repovec/internal/ledger"
)

// Categorize partitions the scanned universe (path -> fresh content
// hash) against the ledger. Deleted paths are inferred: a ledger record
// with no corresponding scan entry means the file is gone or no longer
// watched. A path deleted and recreated between runs shows up as
// modified, which over-approximates safely (it gets re-indexed).
func Categorize(universe map[string]string, led *ledger.Ledger) Categorized {
	var cat Categorized

	for path, hash := range universe {
		rec, ok := led.Record(path)
		switch {
		case !ok:
			cat.New = append(cat.New, path)
		case rec.ContentHash != hash:
			cat.Modified = append(cat.Modified, path)
		default:
			cat.Unchanged = append(cat.Unchanged, path)
		}
	}

	for path := range led.IndexedFiles {
		if _, present := universe[path]; !present {
			cat.Deleted = append(cat.Deleted, path)
		}
	}

	sort.Strings(cat.New)
	sort.Strings(cat.Modified)
	sort.Strings(cat.Unchanged)
	sort.Strings(cat.Deleted)

	return cat
}
