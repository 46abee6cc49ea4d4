package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/repovec/repovec/internal/logging"
	"github.com/repovec/repovec/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep the index synchronized with the filesystem",
		Long: `Run an initial index pass, then stay resident and re-index on
filesystem changes.

Change notifications are debounced: bursts of edits inside the
configured window (indexing.watch_debounce) collapse into a single
pass. Changes arriving while a pass is active are absorbed and picked
up by the following pass.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			return runWatch(ctx, cmd, path)
		},
	}

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path string) error {
	logCfg := logging.DefaultConfig()
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	a, err := buildApp(ctx, path, appOptions{withEngine: true})
	if err != nil {
		return err
	}
	defer a.Close()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", a.root)

	// Initial pass before watching, so the watcher only has deltas to chase.
	if _, err := a.engine.TriggerScanAndIndex(ctx); err != nil {
		return err
	}

	return watchLoop(ctx, a)
}

// watchLoop runs the debounced trigger until ctx is canceled. Each
// event batch triggers one pipeline pass; the engine absorbs triggers
// that arrive while a pass is active.
func watchLoop(ctx context.Context, a *app) error {
	opts := watcher.DefaultOptions()
	opts.DebounceWindow = a.cfg.DebounceWindow()
	opts.IgnorePatterns = a.cfg.Paths.Exclude

	w, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- w.Start(ctx, a.root)
	}()
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-watchErr:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("watcher stopped: %w", err)
			}
			return nil

		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))

		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			if len(batch) == 0 {
				continue
			}
			slog.Info("file_changes_detected", slog.Int("events", len(batch)))

			report, err := a.engine.TriggerScanAndIndex(ctx)
			if err != nil {
				slog.Error("index_pass_failed", slog.String("error", err.Error()))
				continue
			}
			if report != nil {
				slog.Info("index_pass_complete",
					slog.Int("indexed", report.Indexed),
					slog.Int("deleted", report.Deleted),
					slog.Int("deferred", report.Deferred),
					slog.Int("units_charged", report.UnitsCharged))
			}
		}
	}
}
