// Package embed turns chunk text into dense vectors. The engine talks to a
// single Embedder interface; batching, retry and rate limiting live behind it.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrTextRejected is returned by EmbedOne when the backend permanently
// rejected the text (a nil entry in the batch result).
var ErrTextRejected = errors.New("text rejected by embedding backend")

// Common embedding constants
const (
	// MinBatchSize is the minimum allowed batch size
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default number of texts per embedding request
	DefaultBatchSize = 32

	// DefaultRequestTimeout is the per-request timeout. Generous because a
	// cold model load on the far side can take 30-60s.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultConnectTimeout bounds the initial reachability probe
	DefaultConnectTimeout = 5 * time.Second

	// DefaultMaxRetries is the default number of attempts per batch
	DefaultMaxRetries = 3

	// DefaultPoolSize for the HTTP connection pool
	DefaultPoolSize = 4

	// DefaultDimensions is used when the service does not report a width
	DefaultDimensions = 768

	// StaticDimensions is the vector width of the hash-based embedder
	StaticDimensions = 256

	// DefaultCacheSize is the default LRU embedding cache capacity
	DefaultCacheSize = 4096
)

// Embedder generates vector embeddings for text.
//
// Implementations own their transport concerns (batching against the
// backend, retry/backoff, timeouts); callers see only the batch contract.
type Embedder interface {
	// EmbedBatch returns one vector per input text, in input order.
	// A nil entry marks a text the backend permanently rejected; the
	// caller decides what to do with it. A non-nil error means the
	// call as a whole failed and no entry is usable.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// PreferredConcurrency hints how many EmbedBatch calls the backend
	// handles well in parallel. Always at least 1.
	PreferredConcurrency() int

	// Dimensions returns the vector width
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available reports whether the backend can serve requests,
	// with a descriptive error when it cannot
	Available(ctx context.Context) error

	// Close releases resources
	Close() error
}

// EmbedOne embeds a single text through the batch contract.
// Returns an error if the backend rejected the text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || vecs[0] == nil {
		return nil, ErrTextRejected
	}
	return vecs[0], nil
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
