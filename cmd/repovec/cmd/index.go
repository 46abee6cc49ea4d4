package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/repovec/repovec/internal/embed"
	"github.com/repovec/repovec/internal/engine"
	"github.com/repovec/repovec/internal/logging"
	"github.com/repovec/repovec/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI bool
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Run one incremental index pass",
		Long: `Run one incremental index pass over the project.

The pass scans the tree, categorizes files against the ledger, drains
deletions, and then parses, embeds and upserts new and modified files
in priority order. Work beyond the daily chunk budget is deferred to
the pending queue and picked up on the next pass; everything already
indexed at its current content is skipped.

With --watch the process stays resident after the first pass and
re-runs on debounced filesystem changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			return runIndex(ctx, cmd, path, noTUI, watch)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&watch, "watch", false, "Stay resident and re-index on file changes")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, noTUI, watch bool) error {
	// CLI runs log to file only; the terminal belongs to the renderer.
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithProjectDir(path),
	))

	a, err := buildApp(ctx, path, appOptions{
		withEngine: true,
		onProgress: func(done, total int, file string) {
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageIndexing,
				Current:     done,
				Total:       total,
				CurrentFile: file,
			})
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: "Scanning " + a.root,
	})

	report, err := a.engine.TriggerScanAndIndex(ctx)
	if err != nil {
		renderer.AddError(ui.ErrorEvent{Err: err})
		return err
	}

	if report != nil {
		for _, ie := range a.engine.Status().RecentErrors {
			renderer.AddError(ui.ErrorEvent{File: ie.Path, Err: fmt.Errorf("%s", ie.Message), IsWarn: true})
		}
		renderer.Complete(completionStats(report, a.embedder))
	}

	if !watch {
		return nil
	}

	// The renderer is done; watch mode logs through slog.
	_ = renderer.Stop()
	return watchLoop(ctx, a)
}

// completionStats maps a run report onto the renderer's summary shape.
func completionStats(report *engine.RunReport, embedder embed.Embedder) ui.CompletionStats {
	info := embed.Describe(embedder)
	return ui.CompletionStats{
		Files:          report.Indexed,
		Chunks:         report.UnitsCharged,
		Deleted:        report.Deleted,
		Skipped:        report.Skipped,
		Deferred:       report.Deferred,
		Duration:       report.Duration,
		Errors:         report.Failed,
		QuotaExhausted: report.QuotaExhausted,
		Embedder: ui.EmbedderInfo{
			Provider:   info.Provider,
			Model:      info.Model,
			Dimensions: info.Dimensions,
		},
	}
}
