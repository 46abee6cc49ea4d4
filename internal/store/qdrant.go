package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	rverr "github.com/repovec/repovec/internal/errors"
)

const (
	// upsertBatchSize bounds points per upsert request
	upsertBatchSize = 128

	// scrollPageSize bounds points per scroll page when listing paths
	scrollPageSize = 512
)

// RemoteConfig configures the remote vector store client.
type RemoteConfig struct {
	// Endpoint is the service base URL (default: http://localhost:6333)
	Endpoint string

	// Collection is the collection holding this project's points
	Collection string

	// Dimensions is the vector width used when creating the collection
	Dimensions int

	// RequestTimeout bounds each request (default: 30s)
	RequestTimeout time.Duration
}

// RemoteStore talks to a Qdrant-compatible REST service. The collection
// lives outside this process; it can be wiped or rebuilt behind our back,
// which is exactly the drift the reconciler exists to repair.
type RemoteStore struct {
	client     *http.Client
	transport  *http.Transport
	endpoint   string
	collection string
	timeout    time.Duration
	dims       int
	breaker    *rverr.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ VectorStore = (*RemoteStore)(nil)

// remoteEnvelope is the service's {result, status, time} wrapper.
type remoteEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

// remotePoint is the wire shape of one point.
type remotePoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload *remotePayload `json:"payload,omitempty"`
}

// remotePayload carries the chunk ID alongside the payload. The service
// requires UUID point IDs, so the original chunk ID travels as payload
// and comes back on search hits.
type remotePayload struct {
	Payload
	ChunkID string `json:"chunkId"`
}

// NewRemoteStore creates a client and ensures the collection exists,
// creating it with cosine distance when missing.
func NewRemoteStore(ctx context.Context, cfg RemoteConfig) (*RemoteStore, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:6333"
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("vector collection name is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     10 * time.Second,
	}

	s := &RemoteStore{
		client:     &http.Client{Transport: transport},
		transport:  transport,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		collection: cfg.Collection,
		timeout:    cfg.RequestTimeout,
		dims:       cfg.Dimensions,
		// A mid-run service outage otherwise means one connect timeout per
		// remaining file; fail fast instead and let those files land in
		// the error log.
		breaker: rverr.NewCircuitBreaker("vector-store",
			rverr.WithMaxFailures(5),
			rverr.WithResetTimeout(15*time.Second)),
	}

	if err := s.ensureCollection(ctx); err != nil {
		transport.CloseIdleConnections()
		return nil, err
	}

	return s, nil
}

// ensureCollection creates the collection when the service does not have it.
func (s *RemoteStore) ensureCollection(ctx context.Context) error {
	err := s.do(ctx, http.MethodGet, "/collections/"+s.collection, nil, nil)
	if err == nil {
		return nil
	}
	var se *remoteStatusError
	if !errors.As(err, &se) || se.status != http.StatusNotFound {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dims,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, "/collections/"+s.collection, body, nil); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}

	slog.Info("vector_collection_created",
		slog.String("collection", s.collection),
		slog.Int("dimensions", s.dims))
	return nil
}

// Upsert writes points in bounded batches. Each chunk ID maps to a
// deterministic UUID so a re-upserted chunk replaces its old point.
func (s *RemoteStore) Upsert(ctx context.Context, points []Point) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	if len(points) == 0 {
		return nil
	}

	for _, p := range points {
		if len(p.Vector) != s.dims {
			return ErrDimensionMismatch{Expected: s.dims, Got: len(p.Vector)}
		}
	}

	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}

		batch := make([]remotePoint, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, remotePoint{
				ID:      pointUUID(p.ID),
				Vector:  p.Vector,
				Payload: &remotePayload{Payload: p.Payload, ChunkID: p.ID},
			})
		}

		body := map[string]any{"points": batch}
		if err := s.do(ctx, http.MethodPut, "/collections/"+s.collection+"/points?wait=true", body, nil); err != nil {
			return rverr.New(rverr.ErrCodeUpsertFailed,
				fmt.Sprintf("failed to upsert %d points", end-start), err).
				WithDetail("collection", s.collection)
		}
	}

	return nil
}

// DeleteByPath removes every point whose payload path matches. Deleting
// a path with no points is a no-op on the service side.
func (s *RemoteStore) DeleteByPath(ctx context.Context, path string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "path", "match": map[string]any{"value": path}},
			},
		},
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/delete?wait=true", body, nil); err != nil {
		return fmt.Errorf("failed to delete points for %s: %w", path, err)
	}
	return nil
}

// PointCount returns the exact number of points in the collection.
func (s *RemoteStore) PointCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	var result struct {
		Count int `json:"count"`
	}
	body := map[string]any{"exact": true}
	if err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/count", body, &result); err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return result.Count, nil
}

// ListIndexedPaths scrolls the whole collection and collects distinct
// payload paths.
func (s *RemoteStore) ListIndexedPaths(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	paths := make(map[string]struct{})
	var offset json.RawMessage

	for {
		body := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": []string{"path"},
			"with_vector":  false,
		}
		if offset != nil {
			body["offset"] = offset
		}

		var result struct {
			Points []struct {
				Payload Payload `json:"payload"`
			} `json:"points"`
			NextPageOffset json.RawMessage `json:"next_page_offset"`
		}
		if err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/scroll", body, &result); err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}

		for _, p := range result.Points {
			if p.Payload.Path != "" {
				paths[p.Payload.Path] = struct{}{}
			}
		}

		if len(result.NextPageOffset) == 0 || string(result.NextPageOffset) == "null" {
			break
		}
		offset = result.NextPageOffset
	}

	return paths, nil
}

// Search returns the limit nearest points with payloads.
func (s *RemoteStore) Search(ctx context.Context, vector []float32, limit int) ([]SearchHit, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	if len(vector) != s.dims {
		return nil, ErrDimensionMismatch{Expected: s.dims, Got: len(vector)}
	}
	if limit <= 0 {
		limit = 10
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}

	var result []struct {
		ID      string        `json:"id"`
		Score   float32       `json:"score"`
		Payload remotePayload `json:"payload"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/search", body, &result); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(result))
	for _, r := range result {
		id := r.Payload.ChunkID
		if id == "" {
			id = r.ID
		}
		hits = append(hits, SearchHit{
			ID:      id,
			Score:   r.Score,
			Payload: r.Payload.Payload,
		})
	}
	return hits, nil
}

// Close releases idle connections.
func (s *RemoteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
	return nil
}

// remoteStatusError is a non-2xx response from the vector service.
type remoteStatusError struct {
	status int
	body   string
}

func (e *remoteStatusError) Error() string {
	return fmt.Sprintf("vector store returned status %d: %s", e.status, e.body)
}

// do performs one request against the service with the configured timeout,
// decoding the result envelope into out when non-nil.
func (s *RemoteStore) do(ctx context.Context, method, path string, body, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, s.endpoint+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if !s.breaker.Allow() {
		return rverr.New(rverr.ErrCodeVectorStoreUnavailable,
			fmt.Sprintf("vector store unreachable at %s", s.endpoint), rverr.ErrCircuitOpen).
			WithSuggestion("start the vector service or adjust vector.endpoint in config")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure()
		return rverr.New(rverr.ErrCodeVectorStoreUnavailable,
			fmt.Sprintf("vector store unreachable at %s", s.endpoint), err).
			WithSuggestion("start the vector service or adjust vector.endpoint in config")
	}
	defer func() { _ = resp.Body.Close() }()

	// Any HTTP response means the service is reachable; non-2xx statuses
	// are the service talking, not the transport failing.
	s.breaker.RecordSuccess()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &remoteStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}

	var envelope remoteEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// pointUUID derives a stable UUID from a chunk ID. The service accepts
// only UUIDs or unsigned integers as point IDs, and the derivation must
// be deterministic so re-upserting a chunk replaces its point.
func pointUUID(chunkID string) string {
	sum := sha256.Sum256([]byte(chunkID))
	b := sum[:16]
	b[6] = (b[6] & 0x0f) | 0x50
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
