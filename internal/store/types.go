// Package store persists chunk vectors. The engine talks to a VectorStore
// that is remote and drift-prone by assumption; a local keyword sidecar
// rides along for hybrid search.
package store

import (
	"context"
	"fmt"
)

// Payload is the metadata stored with each point. The path key is the
// anchor for delete-by-path and for reconciling against the ledger.
type Payload struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Symbol    string `json:"symbol,omitempty"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Language  string `json:"language,omitempty"`
}

// Point is one chunk vector with its payload. ID is the chunk ID.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchHit is a scored point returned by Search.
type SearchHit struct {
	ID      string
	Score   float32 // higher is more similar
	Payload Payload
}

// VectorStore is the engine's view of chunk vector persistence.
// All operations are idempotent: upserting the same point twice or
// deleting an absent path is not an error.
type VectorStore interface {
	// Upsert inserts or replaces points by ID
	Upsert(ctx context.Context, points []Point) error

	// DeleteByPath removes every point whose payload path matches
	DeleteByPath(ctx context.Context, path string) error

	// PointCount returns the number of stored points
	PointCount(ctx context.Context) (int, error)

	// ListIndexedPaths returns the distinct payload paths present
	ListIndexedPaths(ctx context.Context) (map[string]struct{}, error)

	// Search returns the limit nearest points to the query vector
	Search(ctx context.Context, vector []float32, limit int) ([]SearchHit, error)

	// Close releases resources
	Close() error
}

// ErrDimensionMismatch indicates a vector with the wrong width.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (reindex with the current embedding model)", e.Expected, e.Got)
}

// DefaultCodeStopWords contains programming keywords filtered out of the
// keyword sidecar. Generic filler identifiers are included because they
// match almost every code chunk.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}
