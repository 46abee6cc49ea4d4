package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/repovec/repovec/internal/config"
)

// Provider names accepted in config.
const (
	// ProviderHTTP talks to an Ollama-compatible embedding service (default)
	ProviderHTTP = "http"

	// ProviderStatic uses hash-based embeddings (no external service)
	ProviderStatic = "static"
)

// ValidProviders returns all accepted provider names.
func ValidProviders() []string {
	return []string{ProviderHTTP, ProviderStatic}
}

// IsValidProvider checks if a provider name is accepted.
func IsValidProvider(s string) bool {
	switch strings.ToLower(s) {
	case ProviderHTTP, ProviderStatic:
		return true
	}
	return false
}

// New creates an embedder from config and wraps it with the LRU cache
// when a cache size is configured. An empty provider means HTTP.
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	var embedder Embedder

	switch strings.ToLower(cfg.Provider) {
	case ProviderHTTP, "":
		e, err := NewHTTPEmbedder(ctx, HTTPConfig{
			Endpoint:       cfg.Endpoint,
			Model:          cfg.Model,
			Dimensions:     cfg.Dimensions,
			BatchSize:      cfg.BatchSize,
			RequestTimeout: cfg.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		embedder = e

	case ProviderStatic:
		embedder = NewStaticEmbedder()

	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: %s)",
			cfg.Provider, strings.Join(ValidProviders(), ", "))
	}

	if cfg.CacheSize > 0 {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}

	return embedder, nil
}

// Info describes an embedder for status output.
type Info struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Cached     bool   `json:"cached"`
}

// Describe reports provider, model and dimensions for an embedder,
// unwrapping the cache layer if present.
func Describe(e Embedder) Info {
	info := Info{
		Model:      e.ModelName(),
		Dimensions: e.Dimensions(),
	}

	inner := e
	if cached, ok := e.(*CachedEmbedder); ok {
		info.Cached = true
		inner = cached.Inner()
	}

	switch inner.(type) {
	case *HTTPEmbedder:
		info.Provider = ProviderHTTP
	case *StaticEmbedder:
		info.Provider = ProviderStatic
	default:
		info.Provider = inner.ModelName()
	}

	return info
}
