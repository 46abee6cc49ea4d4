package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/repovec/repovec/internal/config"
	"github.com/repovec/repovec/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
		days       int
	)

	cmd := &cobra.Command{
		Use:   "stats [path]",
		Short: "Show indexing run history",
		Long: `Display the recorded history of indexing runs: per-run counts
(new/modified/unchanged/deleted, indexed, failed, deferred), chunk units
charged against the daily budget, and an aggregate over the last days.

History lives in a local SQLite file inside the .repovec directory;
nothing is reported anywhere.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runStats(cmd.Context(), cmd, path, jsonOutput, limit, days)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent runs to show")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days in the summary")

	return cmd
}

// StatsOutput is the JSON output format for run history.
type StatsOutput struct {
	Recent  []telemetry.RunRow `json:"recent"`
	Summary telemetry.Summary  `json:"summary"`
	Days    int                `json:"summary_days"`
}

func runStats(ctx context.Context, cmd *cobra.Command, path string, jsonOutput bool, limit, days int) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dbPath := filepath.Join(config.DataDir(root), historyDBName)
	if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No run history yet. Run 'repovec index' first.")
		return nil
	}

	history, err := telemetry.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer func() { _ = history.Close() }()

	recent, err := history.Recent(ctx, limit)
	if err != nil {
		return err
	}

	now := time.Now()
	from := now.AddDate(0, 0, -days).Format("2006-01-02")
	to := now.Format("2006-01-02")
	summary, err := history.Summary(ctx, from, to)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(StatsOutput{Recent: recent, Summary: summary, Days: days})
	}

	printStats(cmd, recent, summary, days)
	return nil
}

func printStats(cmd *cobra.Command, recent []telemetry.RunRow, summary telemetry.Summary, days int) {
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(out, "Last %d days: %d runs, %d chunks indexed, %d units charged\n",
		days, summary.Runs, summary.Indexed, summary.UnitsCharged)
	if summary.Deferred > 0 || summary.QuotaExhausted > 0 {
		_, _ = fmt.Fprintf(out, "  %d files deferred on quota (%d runs hit the budget)\n",
			summary.Deferred, summary.QuotaExhausted)
	}
	if summary.Failed > 0 {
		_, _ = fmt.Fprintf(out, "  %d files failed\n", summary.Failed)
	}
	_, _ = fmt.Fprintln(out)

	if len(recent) == 0 {
		_, _ = fmt.Fprintln(out, "No runs recorded.")
		return
	}

	_, _ = fmt.Fprintln(out, "Recent runs:")
	_, _ = fmt.Fprintf(out, "  %-20s %8s %6s %6s %6s %6s %8s %6s\n",
		"STARTED", "DURATION", "NEW", "MOD", "DEL", "IDX", "DEFER", "UNITS")
	for _, r := range recent {
		marker := ""
		if r.QuotaExhausted {
			marker = " !"
		}
		_, _ = fmt.Fprintf(out, "  %-20s %8s %6d %6d %6d %6d %8d %6d%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration.Round(time.Millisecond),
			r.New, r.Modified, r.Deleted, r.Indexed, r.Deferred, r.UnitsCharged, marker)
	}
	_, _ = fmt.Fprintln(out, "\n  ! = run stopped by the daily chunk budget")
}
