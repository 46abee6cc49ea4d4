package engine

import "time"

// errorLog is a bounded rolling buffer of per-file processing errors.
// When full, the oldest entry is dropped. Callers hold the engine lock.
type errorLog struct {
	max     int
	entries []IndexError
}

func newErrorLog(max int) *errorLog {
	if max <= 0 {
		max = 50
	}
	return &errorLog{max: max}
}

// add appends an entry, evicting the oldest when the buffer is full.
func (e *errorLog) add(path, message string, now time.Time) {
	e.entries = append(e.entries, IndexError{
		Path:      path,
		Message:   message,
		Timestamp: now,
	})
	if len(e.entries) > e.max {
		e.entries = e.entries[len(e.entries)-e.max:]
	}
}

// recent returns a copy, oldest first.
func (e *errorLog) recent() []IndexError {
	out := make([]IndexError, len(e.entries))
	copy(out, e.entries)
	return out
}

func (e *errorLog) len() int {
	return len(e.entries)
}
