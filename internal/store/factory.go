package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/repovec/repovec/internal/config"
)

// Store mode names accepted in configuration.
const (
	ModeRemote = "remote"
	ModeMemory = "memory"
)

// New creates a vector store from configuration. The collection name in
// cfg must already be resolved (config.CollectionName handles the
// project-derived default). dims is the embedding dimensionality the
// store will enforce on every upsert and search.
func New(ctx context.Context, cfg config.VectorConfig, dims int) (VectorStore, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("vector store requires positive dimensions, got %d", dims)
	}

	switch strings.ToLower(cfg.Mode) {
	case ModeRemote, "":
		return NewRemoteStore(ctx, RemoteConfig{
			Endpoint:       cfg.Endpoint,
			Collection:     cfg.Collection,
			Dimensions:     dims,
			RequestTimeout: cfg.RequestTimeout,
		})
	case ModeMemory:
		return NewMemoryStore(dims), nil
	default:
		return nil, fmt.Errorf("unknown vector store mode %q (valid: %s, %s)", cfg.Mode, ModeRemote, ModeMemory)
	}
}
