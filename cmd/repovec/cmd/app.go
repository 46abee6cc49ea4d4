package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/repovec/repovec/internal/chunk"
	"github.com/repovec/repovec/internal/config"
	"github.com/repovec/repovec/internal/embed"
	"github.com/repovec/repovec/internal/engine"
	"github.com/repovec/repovec/internal/ledger"
	"github.com/repovec/repovec/internal/scanner"
	"github.com/repovec/repovec/internal/search"
	"github.com/repovec/repovec/internal/store"
	"github.com/repovec/repovec/internal/telemetry"
)

// Data file names inside the project's .repovec directory.
const (
	keywordIndexName = "keyword.bleve"
	historyDBName    = "history.db"
)

// app bundles the wired components a command needs. Build what the
// command asks for; Close releases everything that was built.
type app struct {
	cfg     *config.Config
	root    string
	dataDir string

	embedder embed.Embedder
	vectors  store.VectorStore
	keyword  *store.KeywordIndex
	history  *telemetry.Store
	engine   *engine.Engine
	searcher *search.Searcher

	chunker *chunk.Chunker
}

// appOptions controls which components buildApp wires.
type appOptions struct {
	// withEngine builds the indexing engine (acquires the data-dir lock).
	withEngine bool
	// withSearch builds the hybrid searcher.
	withSearch bool
	// onProgress, when set, receives per-file progress from the engine.
	onProgress func(done, total int, path string)
}

// buildApp resolves the project root, loads configuration, and wires
// the requested components. path may be any directory inside the
// project; the root is found by walking up to .git or .repovec.yaml.
func buildApp(ctx context.Context, path string, opts appOptions) (*app, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	dataDir := config.DataDir(root)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &app{cfg: cfg, root: root, dataDir: dataDir}

	a.embedder, err = embed.New(ctx, cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	vcfg := cfg.Vector
	vcfg.Collection = cfg.CollectionName(root)
	a.vectors, err = store.New(ctx, vcfg, a.embedder.Dimensions())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	// The keyword sidecar is best effort everywhere: failing to open it
	// degrades search to the vector leg, never blocks indexing.
	a.keyword, err = store.NewKeywordIndex(filepath.Join(dataDir, keywordIndexName))
	if err != nil {
		slog.Warn("keyword_sidecar_unavailable", slog.String("error", err.Error()))
		a.keyword = nil
	}

	if opts.withEngine {
		a.history, err = telemetry.Open(filepath.Join(dataDir, historyDBName))
		if err != nil {
			slog.Warn("run_history_unavailable", slog.String("error", err.Error()))
			a.history = nil
		}

		scn, err := scanner.New()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.chunker = chunk.NewChunker()

		engCfg := engine.Config{
			RootDir:                root,
			DataDir:                dataDir,
			Scanner:                scn,
			ScanOptions:            scanner.OptionsFromConfig(cfg, root),
			Chunker:                a.chunker,
			Embedder:               a.embedder,
			Vectors:                a.vectors,
			Keyword:                a.keyword,
			State:                  ledger.NewFileStore(dataDir),
			CheckpointInterval:     cfg.Indexing.CheckpointInterval,
			DailyUnitLimit:         cfg.Indexing.DailyUnitLimit,
			EstimatedChunksPerFile: cfg.Indexing.EstimatedChunksPerFile,
			ErrorLogSize:           cfg.Indexing.ErrorLogSize,
			OnProgress:             opts.onProgress,
		}
		if a.history != nil {
			engCfg.Telemetry = a.history
		}

		a.engine, err = engine.New(engCfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	if opts.withSearch {
		a.searcher = search.NewSearcher(a.embedder, a.vectors, a.keyword)
	}

	return a, nil
}

// Close releases every component that was built, engine first so the
// data-dir lock drops before the stores close.
func (a *app) Close() {
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			slog.Warn("engine_close_failed", slog.String("error", err.Error()))
		}
	}
	if a.chunker != nil {
		a.chunker.Close()
	}
	if a.history != nil {
		_ = a.history.Close()
	}
	if a.keyword != nil {
		_ = a.keyword.Close()
	}
	if a.vectors != nil {
		_ = a.vectors.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
}
