package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/repovec/repovec/internal/config"
	"github.com/repovec/repovec/internal/embed"
	"github.com/repovec/repovec/internal/ledger"
	"github.com/repovec/repovec/internal/store"
	"github.com/repovec/repovec/internal/ui"
)

// embedProbeTimeout bounds the embedder availability check so a down
// service cannot stall the status command.
const embedProbeTimeout = 3 * time.Second

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		remote     bool
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show index status",
		Long: `Show the state of the project's index: indexed files, the
quota-deferred queue, today's chunk budget, and on-disk storage.

Status reads the persisted ledger directly, so it works while an
'index --watch' or 'serve' process holds the instance lock. Pass
--remote to also query the vector service for its point count.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runStatus(cmd.Context(), cmd, path, jsonOutput, remote, noColor)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&remote, "remote", false, "Query the vector service for its point count")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, path string, jsonOutput, remote, noColor bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	dataDir := config.DataDir(root)
	info := ui.StatusInfo{
		ProjectName:  filepath.Base(root),
		RemotePoints: -1,
	}

	led, err := ledger.NewFileStore(dataDir).LoadLedger()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Never indexed; render the empty state.
	case err != nil:
		return err
	default:
		info.IndexedFiles = len(led.IndexedFiles)
		for _, rec := range led.IndexedFiles {
			info.TotalChunks += rec.ChunkCount
		}
		info.PendingCount = len(led.PendingQueue)
		info.LastRunAt = led.Stats.LastRunAt
		info.LastNew = led.Stats.New
		info.LastModified = led.Stats.Modified
		info.LastUnchanged = led.Stats.Unchanged
		info.LastDeleted = led.Stats.Deleted
		info.QuotaDate = led.DailyQuota.Date
		info.QuotaUsed = led.DailyQuota.UnitsConsumedToday
		info.QuotaLimit = led.DailyQuota.Limit
	}

	info.LedgerSize = fileSize(filepath.Join(dataDir, "ledger.json")) +
		fileSize(filepath.Join(dataDir, "hashes.json"))
	info.KeywordSize = dirSize(filepath.Join(dataDir, keywordIndexName))
	info.HistorySize = fileSize(filepath.Join(dataDir, historyDBName))

	info.EmbedderType = cfg.Embedding.Provider
	info.EmbedderModel = cfg.Embedding.Model
	info.EmbedderStatus = probeEmbedder(ctx, cfg)

	if remote {
		points, err := remotePointCount(ctx, cfg, root)
		if err != nil {
			return fmt.Errorf("failed to query vector service: %w", err)
		}
		info.RemotePoints = points
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// probeEmbedder reports whether the configured embedder can be reached.
func probeEmbedder(ctx context.Context, cfg *config.Config) string {
	probeCtx, cancel := context.WithTimeout(ctx, embedProbeTimeout)
	defer cancel()

	e, err := embed.New(probeCtx, cfg.Embedding)
	if err != nil {
		return "offline"
	}
	_ = e.Close()
	return "ready"
}

// remotePointCount opens the configured vector store and asks for its
// point count. Dimensions are irrelevant for counting; the static
// default keeps the probe from needing a live embedder.
func remotePointCount(ctx context.Context, cfg *config.Config, root string) (int, error) {
	vcfg := cfg.Vector
	vcfg.Collection = cfg.CollectionName(root)

	vs, err := store.New(ctx, vcfg, embed.StaticDimensions)
	if err != nil {
		return 0, err
	}
	defer func() { _ = vs.Close() }()

	return vs.PointCount(ctx)
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func dirSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}
