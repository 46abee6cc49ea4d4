package embed

import (
	"context"
	"math"
	"sync"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// mockEmbedder counts EmbedBatch calls and texts for cache tests.
// rejected texts come back as nil entries.
type mockEmbedder struct {
	mu            sync.Mutex
	batchCalls    int
	textsEmbedded int
	rejected      map[string]bool
	closed        bool
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{rejected: map[string]bool{}}
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	m.textsEmbedded += len(texts)

	results := make([][]float32, len(texts))
	for i, text := range texts {
		if m.rejected[text] {
			continue
		}
		vec := make([]float32, 4)
		for j, r := range text {
			vec[j%4] += float32(r)
		}
		results[i] = normalizeVector(vec)
	}
	return results, nil
}

func (m *mockEmbedder) PreferredConcurrency() int { return 2 }
func (m *mockEmbedder) Dimensions() int           { return 4 }
func (m *mockEmbedder) ModelName() string         { return "mock" }

func (m *mockEmbedder) Available(_ context.Context) error { return nil }

func (m *mockEmbedder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockEmbedder) calls() (batches, texts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchCalls, m.textsEmbedded
}
