package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/repovec/repovec/internal/embed"
	"github.com/repovec/repovec/internal/engine"
	"github.com/repovec/repovec/internal/ledger"
	"github.com/repovec/repovec/internal/search"
	"github.com/repovec/repovec/pkg/version"
)

// Querier runs hybrid queries. Implemented by search.Searcher.
type Querier interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// Indexer exposes the engine operations the tools wrap. Implemented by
// engine.Engine.
type Indexer interface {
	TriggerScanAndIndex(ctx context.Context) (*engine.RunReport, error)
	Status() engine.StatusSnapshot
}

// Server bridges MCP clients with the indexing engine and the hybrid
// searcher over stdio.
type Server struct {
	mcp      *mcp.Server
	querier  Querier
	indexer  Indexer
	embedder embed.Embedder // may be nil, reported as unavailable
	rootPath string
	logger   *slog.Logger
}

// NewServer creates the MCP server and registers its tools. rootPath
// is used for project identification in index_status.
func NewServer(querier Querier, indexer Indexer, embedder embed.Embedder, rootPath string) (*Server, error) {
	if querier == nil {
		return nil, errors.New("searcher is required")
	}
	if indexer == nil {
		return nil, errors.New("engine is required")
	}

	s := &Server{
		querier:  querier,
		indexer:  indexer,
		embedder: embedder,
		rootPath: rootPath,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "repovec",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying SDK server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers the search, index_status and reindex tools.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid code search over the indexed project. Fuses semantic vector matches with keyword matches, so it finds code by meaning as well as by identifier. Results carry paths, line ranges and relevance scores.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report the state of the index: run phase, indexed file count, pending queue, daily quota consumption and the active embedder. Use before searching to verify the index is ready.",
	}, s.indexStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reindex",
		Description: "Run one incremental index pass now: scan the tree, index new and changed files, drain deletions. Respects the daily chunk quota; deferred files queue for the next pass.",
	}, s.reindexHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 3))
}

// searchHandler is the SDK handler for the search tool.
func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", input.Limit))

	results, err := s.querier.Search(ctx, input.Query, search.Options{
		Limit:       input.Limit,
		KeywordOnly: input.KeywordOnly,
		Scopes:      input.Scope,
	})
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	output := SearchOutput{
		Results: make([]SearchResultOutput, 0, len(results)),
	}
	for _, r := range results {
		output.Results = append(output.Results, toResultOutput(r))
	}

	return nil, output, nil
}

// indexStatusHandler is the SDK handler for the index_status tool.
func (s *Server) indexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	snap := s.indexer.Status()

	output := &IndexStatusOutput{
		Project: DetectProject(s.rootPath),
		Index: IndexStateInfo{
			IsIndexing:   snap.IsIndexing,
			Phase:        snap.Phase,
			IndexedFiles: snap.IndexedFiles,
			PendingCount: snap.PendingCount,
			QueueDepth:   snap.QueueDepth,
		},
		Quota:      toQuotaInfo(snap.Quota),
		Embeddings: s.embeddingInfo(ctx),
	}
	if !snap.Stats.LastRunAt.IsZero() {
		output.Index.LastRunAt = snap.Stats.LastRunAt.Format(time.RFC3339)
	}
	for _, ie := range snap.RecentErrors {
		output.RecentErrors = append(output.RecentErrors, IndexErrorInfo{
			Path:      ie.Path,
			Message:   ie.Message,
			Timestamp: ie.Timestamp.Format(time.RFC3339),
		})
	}

	return nil, output, nil
}

// reindexHandler is the SDK handler for the reindex tool.
func (s *Server) reindexHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ReindexInput) (
	*mcp.CallToolResult,
	ReindexOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("reindex started", slog.String("request_id", requestID))

	report, err := s.indexer.TriggerScanAndIndex(ctx)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("reindex failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, ReindexOutput{}, MapError(err)
	}

	if report == nil {
		// An active run absorbed the trigger; its successor rescans.
		s.logger.Info("reindex absorbed", slog.String("request_id", requestID))
		return nil, ReindexOutput{Absorbed: true}, nil
	}

	s.logger.Info("reindex completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("indexed", report.Indexed),
		slog.Int("deferred", report.Deferred),
		slog.Int("units_charged", report.UnitsCharged))

	return nil, ReindexOutput{Report: toReportOutput(report)}, nil
}

// embeddingInfo reports the active embedder's runtime state.
func (s *Server) embeddingInfo(ctx context.Context) EmbeddingInfo {
	if s.embedder == nil {
		return EmbeddingInfo{
			Model:            "none",
			Status:           "unavailable",
			IsFallbackActive: true,
		}
	}

	info := EmbeddingInfo{
		Model:            s.embedder.ModelName(),
		Dimensions:       s.embedder.Dimensions(),
		IsFallbackActive: s.embedder.ModelName() == "static",
	}
	if err := s.embedder.Available(ctx); err != nil {
		info.Status = "unavailable"
	} else {
		info.Status = "ready"
	}
	return info
}

// Serve runs the server on stdio until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("MCP server starting", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

func toResultOutput(r search.Result) SearchResultOutput {
	return SearchResultOutput{
		Path:         r.Path,
		StartLine:    r.Payload.StartLine,
		EndLine:      r.Payload.EndLine,
		Score:        r.Score,
		Language:     r.Payload.Language,
		Symbol:       r.Payload.Symbol,
		Content:      r.Payload.Content,
		MatchedTerms: r.MatchedTerms,
		InBoth:       r.InBoth,
	}
}

func toQuotaInfo(q ledger.DailyQuota) QuotaInfo {
	left := q.Limit - q.UnitsConsumedToday
	if left < 0 {
		left = 0
	}
	return QuotaInfo{
		Date:               q.Date,
		Limit:              q.Limit,
		UnitsConsumedToday: q.UnitsConsumedToday,
		Remaining:          left,
	}
}

func toReportOutput(r *engine.RunReport) *RunReportOutput {
	return &RunReportOutput{
		DurationMS:     r.Duration.Milliseconds(),
		New:            r.New,
		Modified:       r.Modified,
		Unchanged:      r.Unchanged,
		Deleted:        r.Deleted,
		Indexed:        r.Indexed,
		Skipped:        r.Skipped,
		Failed:         r.Failed,
		Deferred:       r.Deferred,
		UnitsCharged:   r.UnitsCharged,
		QuotaExhausted: r.QuotaExhausted,
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
