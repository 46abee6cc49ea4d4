package embed

import (
	"bytes"
	"context"
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

// HTTPConfig configures the HTTP embedding gateway.
type HTTPConfig struct {
	// Endpoint is the embedding service base URL (default: http://localhost:11434)
	Endpoint string

	// Model is the embedding model to request
	Model string

	// Dimensions overrides auto-detection when non-zero
	Dimensions int

	// BatchSize is texts per request (default: 32)
	BatchSize int

	// RequestTimeout bounds each request (default: 60s)
	RequestTimeout time.Duration

	// ConnectTimeout bounds the startup reachability probe (default: 5s)
	ConnectTimeout time.Duration

	// MaxRetries is attempts per batch for transient failures (default: 3)
	MaxRetries int

	// PoolSize for the HTTP connection pool (default: 4)
	PoolSize int

	// Concurrency is the parallelism hint reported to callers (default: 1,
	// local inference services serialize on the accelerator anyway)
	Concurrency int

	// SkipHealthCheck skips the startup probe and dimension detection (tests)
	SkipHealthCheck bool
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Endpoint:       "http://localhost:11434",
		Model:          "qwen3-embedding:8b",
		Dimensions:     0, // Auto-detect
		BatchSize:      DefaultBatchSize,
		RequestTimeout: DefaultRequestTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		MaxRetries:     DefaultMaxRetries,
		PoolSize:       DefaultPoolSize,
		Concurrency:    1,
	}
}

// embedRequest is the /api/embed request body.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string for batch
}

// embedResponse is the /api/embed response body.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// modelListResponse is the /api/tags response body.
type modelListResponse struct {
	Models []modelInfo `json:"models"`
}

type modelInfo struct {
	Name string `json:"name"`
}

// statusError is a non-200 response from the embedding service.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embedding service returned status %d: %s", e.status, e.body)
}

// permanent reports whether retrying the same request is pointless.
// 408 and 429 are transient despite being 4xx.
func (e *statusError) permanent() bool {
	return e.status >= 400 && e.status < 500 &&
		e.status != http.StatusRequestTimeout &&
		e.status != http.StatusTooManyRequests
}

// HTTPEmbedder generates embeddings through an Ollama-compatible HTTP API.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig
	dims      int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates an HTTP embedder and probes the service unless
// the config skips the health check.
func NewHTTPEmbedder(ctx context.Context, cfg HTTPConfig) (*HTTPEmbedder, error) {
	def := DefaultHTTPConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.BatchSize < MinBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	// IdleConnTimeout is short because indexing runs are bursty; idle
	// connections should not linger between runs.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
		DisableKeepAlives:   false,
	}

	// No client-level timeout: each request carries its own
	// context.WithTimeout so a slow cold load does not poison later calls.
	e := &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		if err := e.Available(ctx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}

		if e.dims == 0 {
			dims, err := e.detectDimensions(ctx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
			}
			e.dims = dims
		}
	}

	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	return e, nil
}

// EmbedBatch embeds texts in configured batch sizes, preserving input order.
// Blank texts get zero vectors without a request. A batch the service
// permanently rejects leaves nil entries and processing continues; transport
// failures abort the whole call.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		embeddings, err := e.embedWithRetry(ctx, batchTexts)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.permanent() {
				// The service refused these texts outright. Leave their
				// entries nil so the caller can drop just these chunks.
				slog.Warn("embed_batch_rejected",
					slog.Int("texts", len(batchTexts)),
					slog.Int("status", se.status),
					slog.String("error", se.Error()))
				continue
			}
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}

		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

// embedWithRetry retries transient failures with exponential backoff.
// Permanent rejections surface immediately.
func (e *HTTPEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	retryCfg := rverr.RetryConfig{
		MaxRetries:   e.config.MaxRetries - 1,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
	if retryCfg.MaxRetries < 0 {
		retryCfg.MaxRetries = 0
	}

	attempt := 0
	return rverr.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
		attempt++

		reqCtx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
		embeddings, err := e.doEmbed(reqCtx, texts)
		cancel()

		if err == nil {
			return embeddings, nil
		}

		var se *statusError
		if errors.As(err, &se) && se.permanent() {
			return nil, rverr.Permanent(err)
		}

		slog.Debug("embedding_attempt_failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", e.config.MaxRetries),
			slog.Int("texts", len(texts)),
			slog.String("error", err.Error()))

		return nil, err
	})
}

// doEmbed performs a single /api/embed request.
func (e *HTTPEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	// Single string for one text, array for batch
	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(result.Embeddings))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if len(emb) == 0 {
			return nil, fmt.Errorf("empty embedding returned for text %d", i)
		}
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		embeddings[i] = normalizeVector(vec)
	}

	return embeddings, nil
}

// detectDimensions embeds a probe text and reports the vector width.
func (e *HTTPEmbedder) detectDimensions(ctx context.Context) (int, error) {
	probeCtx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	embeddings, err := e.doEmbed(probeCtx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	return len(embeddings[0]), nil
}

// listModels fetches the installed models from the service.
func (e *HTTPEmbedder) listModels(ctx context.Context) ([]modelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	var result modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Models, nil
}

// Available probes the service and verifies the configured model is
// installed. Matches on full name or base name without the tag.
func (e *HTTPEmbedder) Available(ctx context.Context) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, e.config.ConnectTimeout)
	defer cancel()

	models, err := e.listModels(probeCtx)
	if err != nil {
		return rverr.New(rverr.ErrCodeEmbedderUnavailable,
			fmt.Sprintf("embedding service unreachable at %s", e.config.Endpoint), err).
			WithSuggestion("start the embedding service or adjust embedding.endpoint in config")
	}

	want := strings.ToLower(e.config.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return nil
		}
	}

	return rverr.New(rverr.ErrCodeEmbedderUnavailable,
		fmt.Sprintf("embedding model %q is not installed", e.config.Model), nil).
		WithDetail("endpoint", e.config.Endpoint).
		WithSuggestion(fmt.Sprintf("pull the model first: ollama pull %s", e.config.Model))
}

// PreferredConcurrency reports the configured parallelism hint.
func (e *HTTPEmbedder) PreferredConcurrency() int {
	return e.config.Concurrency
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}
	return nil
}
