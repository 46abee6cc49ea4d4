package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/repovec/repovec/internal/logging"
	"github.com/repovec/repovec/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Run the MCP server on stdio",
		Long: `Run the MCP server, exposing search and indexing tools to MCP
clients over stdio.

The server runs an indexing pass in the background on startup and then
keeps the index synchronized with filesystem changes, so search results
stay fresh for the whole session. Logs go to a file, never stdio.`,
		Example: `  # Serve the current project
  repovec serve

  # Serve without background re-indexing
  repovec serve --no-watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runServe(ctx, path, noWatch)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Skip background indexing and watching")

	return cmd
}

func runServe(ctx context.Context, path string, noWatch bool) error {
	// Stdio carries the protocol; logging must be file-only before any
	// component gets a chance to write.
	cleanup, err := logging.SetupMCPMode()
	if err != nil {
		return err
	}
	defer func() { cleanup() }()

	a, err := buildApp(ctx, path, appOptions{withEngine: true, withSearch: true})
	if err != nil {
		return err
	}
	defer a.Close()

	// Re-apply with the configured level now that config is loaded.
	if lvl := a.cfg.Server.LogLevel; lvl != "" {
		if c, err := logging.SetupMCPModeWithLevel(lvl); err == nil {
			cleanup()
			cleanup = c
		}
	}

	srv, err := mcp.NewServer(a.searcher, a.engine, a.embedder, a.root)
	if err != nil {
		return err
	}

	if !noWatch {
		go func() {
			if _, err := a.engine.TriggerScanAndIndex(ctx); err != nil {
				slog.Error("startup_index_failed", slog.String("error", err.Error()))
			}
			if err := watchLoop(ctx, a); err != nil && ctx.Err() == nil {
				slog.Error("watch_loop_failed", slog.String("error", err.Error()))
			}
		}()
	}

	return srv.Serve(ctx)
}
