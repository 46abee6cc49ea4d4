package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/repovec/repovec/internal/logging"
	"github.com/repovec/repovec/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit       int
	format      string   // "text", "json"
	scopes      []string // path prefixes for filtering
	keywordOnly bool     // skip the vector leg
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed project",
		Long: `Search the indexed project with hybrid retrieval.

Keyword and semantic rankings are fused with reciprocal rank fusion,
so queries match both exact identifiers and descriptions of behavior.

Examples:
  repovec search "daily quota rollover"
  repovec search "TriggerScanAndIndex" --keyword-only
  repovec search "checkpoint interval" --scope internal/engine
  repovec search "drift repair" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringSliceVarP(&opts.scopes, "scope", "s", nil, "Restrict to path prefixes (repeatable)")
	cmd.Flags().BoolVar(&opts.keywordOnly, "keyword-only", false, "Skip the vector leg, use keyword matching only")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	a, err := buildApp(ctx, ".", appOptions{withSearch: true})
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.searcher.Search(ctx, query, search.Options{
		Limit:       opts.limit,
		KeywordOnly: opts.keywordOnly,
		Scopes:      opts.scopes,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	switch strings.ToLower(opts.format) {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "text", "":
		printResults(cmd, query, results)
		return nil
	default:
		return fmt.Errorf("unknown format %q (valid: text, json)", opts.format)
	}
}

// printResults renders hits as path:line blocks with a content preview.
func printResults(cmd *cobra.Command, query string, results []search.Result) {
	out := cmd.OutOrStdout()

	if len(results) == 0 {
		_, _ = fmt.Fprintf(out, "No results for %q\n", query)
		return
	}

	_, _ = fmt.Fprintf(out, "%d results for %q\n\n", len(results), query)

	for i, r := range results {
		location := r.Path
		if r.Payload.StartLine > 0 {
			location = fmt.Sprintf("%s:%d-%d", r.Path, r.Payload.StartLine, r.Payload.EndLine)
		}

		_, _ = fmt.Fprintf(out, "%2d. %s  (score %.3f)\n", i+1, location, r.Score)
		if r.Payload.Symbol != "" {
			_, _ = fmt.Fprintf(out, "    %s", r.Payload.Symbol)
			if r.Payload.Language != "" {
				_, _ = fmt.Fprintf(out, "  [%s]", r.Payload.Language)
			}
			_, _ = fmt.Fprintln(out)
		}
		if len(r.MatchedTerms) > 0 {
			_, _ = fmt.Fprintf(out, "    matched: %s\n", strings.Join(r.MatchedTerms, ", "))
		}
		if preview := firstLines(r.Payload.Content, 3); preview != "" {
			for _, line := range strings.Split(preview, "\n") {
				_, _ = fmt.Fprintf(out, "    | %s\n", line)
			}
		}
		_, _ = fmt.Fprintln(out)
	}
}

// firstLines returns up to n non-empty leading lines of s.
func firstLines(s string, n int) string {
	if s == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" && len(kept) == 0 {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
		if len(kept) == n {
			break
		}
	}
	return strings.Join(kept, "\n")
}
