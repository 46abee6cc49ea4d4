package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repovec/repovec/internal/embed"
	"github.com/repovec/repovec/internal/engine"
	"github.com/repovec/repovec/internal/ledger"
	"github.com/repovec/repovec/internal/search"
	"github.com/repovec/repovec/internal/store"
)

// fakeQuerier implements Querier with a pluggable function.
type fakeQuerier struct {
	searchFn func(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

func (f *fakeQuerier) Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	return f.searchFn(ctx, query, opts)
}

// fakeIndexer implements Indexer with pluggable functions.
type fakeIndexer struct {
	triggerFn func(ctx context.Context) (*engine.RunReport, error)
	statusFn  func() engine.StatusSnapshot
}

func (f *fakeIndexer) TriggerScanAndIndex(ctx context.Context) (*engine.RunReport, error) {
	if f.triggerFn == nil {
		return nil, nil
	}
	return f.triggerFn(ctx)
}

func (f *fakeIndexer) Status() engine.StatusSnapshot {
	if f.statusFn == nil {
		return engine.StatusSnapshot{Phase: engine.PhaseIdle}
	}
	return f.statusFn()
}

// unavailableEmbedder reports a named model whose backend is down.
type unavailableEmbedder struct {
	embed.Embedder
}

func (unavailableEmbedder) ModelName() string               { return "all-minilm-l6-v2" }
func (unavailableEmbedder) Dimensions() int                 { return 384 }
func (unavailableEmbedder) Available(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, querier Querier, indexer Indexer, embedder embed.Embedder) *Server {
	t.Helper()
	srv, err := NewServer(querier, indexer, embedder, t.TempDir())
	require.NoError(t, err)
	return srv
}

func TestNewServer_RequiresSearcher(t *testing.T) {
	_, err := NewServer(nil, &fakeIndexer{}, nil, "/tmp/p")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "searcher is required")
}

func TestNewServer_RequiresEngine(t *testing.T) {
	_, err := NewServer(&fakeQuerier{}, nil, nil, "/tmp/p")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine is required")
}

func TestNewServer_NilEmbedderAllowed(t *testing.T) {
	srv, err := NewServer(&fakeQuerier{}, &fakeIndexer{}, nil, "/tmp/p")

	require.NoError(t, err)
	assert.NotNil(t, srv.MCPServer())
}

func TestSearchHandler_EmptyQueryRejected(t *testing.T) {
	called := false
	querier := &fakeQuerier{
		searchFn: func(context.Context, string, search.Options) ([]search.Result, error) {
			called = true
			return nil, nil
		},
	}
	srv := newTestServer(t, querier, &fakeIndexer{}, nil)

	for _, query := range []string{"", "   ", "\n\t"} {
		_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: query})

		require.Error(t, err)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	}
	assert.False(t, called, "rejected queries must not reach the searcher")
}

func TestSearchHandler_PassesOptionsThrough(t *testing.T) {
	// Given: a querier that captures the options it receives
	var gotQuery string
	var gotOpts search.Options
	querier := &fakeQuerier{
		searchFn: func(_ context.Context, query string, opts search.Options) ([]search.Result, error) {
			gotQuery = query
			gotOpts = opts
			return nil, nil
		},
	}
	srv := newTestServer(t, querier, &fakeIndexer{}, nil)

	// When: calling with every option set
	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{
		Query:       "auth token",
		Limit:       5,
		KeywordOnly: true,
		Scope:       []string{"internal/auth", "cmd"},
	})

	// Then: the searcher sees them unchanged
	require.NoError(t, err)
	assert.Equal(t, "auth token", gotQuery)
	assert.Equal(t, 5, gotOpts.Limit)
	assert.True(t, gotOpts.KeywordOnly)
	assert.Equal(t, []string{"internal/auth", "cmd"}, gotOpts.Scopes)
}

func TestSearchHandler_ConvertsResults(t *testing.T) {
	querier := &fakeQuerier{
		searchFn: func(context.Context, string, search.Options) ([]search.Result, error) {
			return []search.Result{
				{
					ID:           "c1",
					Path:         "internal/auth/login.go",
					Score:        1.0,
					InBoth:       true,
					MatchedTerms: []string{"authenticate"},
					Payload: store.Payload{
						Path:      "internal/auth/login.go",
						Content:   "func AuthenticateUser() {}",
						Symbol:    "AuthenticateUser",
						StartLine: 10,
						EndLine:   24,
						Language:  "go",
					},
				},
				{
					ID:    "c2",
					Path:  "internal/auth/token.go",
					Score: 0.41,
				},
			}, nil
		},
	}
	srv := newTestServer(t, querier, &fakeIndexer{}, nil)

	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "authenticate"})

	require.NoError(t, err)
	require.Len(t, out.Results, 2)

	first := out.Results[0]
	assert.Equal(t, "internal/auth/login.go", first.Path)
	assert.Equal(t, 10, first.StartLine)
	assert.Equal(t, 24, first.EndLine)
	assert.Equal(t, 1.0, first.Score)
	assert.Equal(t, "go", first.Language)
	assert.Equal(t, "AuthenticateUser", first.Symbol)
	assert.Equal(t, "func AuthenticateUser() {}", first.Content)
	assert.Equal(t, []string{"authenticate"}, first.MatchedTerms)
	assert.True(t, first.InBoth)

	// Keyword-only hits have no payload beyond the path.
	second := out.Results[1]
	assert.Equal(t, "internal/auth/token.go", second.Path)
	assert.Empty(t, second.Content)
	assert.False(t, second.InBoth)
}

func TestSearchHandler_MapsSearchErrors(t *testing.T) {
	querier := &fakeQuerier{
		searchFn: func(context.Context, string, search.Options) ([]search.Result, error) {
			return nil, context.DeadlineExceeded
		},
	}
	srv := newTestServer(t, querier, &fakeIndexer{}, nil)

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "anything"})

	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeTimeout, mcpErr.Code)
}

func TestIndexStatusHandler_MapsSnapshot(t *testing.T) {
	lastRun := time.Date(2026, 8, 24, 9, 15, 0, 0, time.UTC)
	failedAt := time.Date(2026, 8, 24, 9, 14, 30, 0, time.UTC)
	indexer := &fakeIndexer{
		statusFn: func() engine.StatusSnapshot {
			return engine.StatusSnapshot{
				IsIndexing:   true,
				Phase:        engine.PhaseProcessing,
				QueueDepth:   1,
				PendingCount: 12,
				IndexedFiles: 340,
				Quota: ledger.DailyQuota{
					Date:               "2026-08-24",
					UnitsConsumedToday: 800,
					Limit:              1000,
				},
				Stats: ledger.RunStats{
					New:       3,
					Modified:  2,
					LastRunAt: lastRun,
				},
				RecentErrors: []engine.IndexError{
					{Path: "internal/broken.go", Message: "chunking failed", Timestamp: failedAt},
				},
			}
		},
	}
	srv := newTestServer(t, &fakeQuerier{}, indexer, nil)

	_, out, err := srv.indexStatusHandler(context.Background(), nil, IndexStatusInput{})

	require.NoError(t, err)
	require.NotNil(t, out)

	assert.True(t, out.Index.IsIndexing)
	assert.Equal(t, engine.PhaseProcessing, out.Index.Phase)
	assert.Equal(t, 1, out.Index.QueueDepth)
	assert.Equal(t, 12, out.Index.PendingCount)
	assert.Equal(t, 340, out.Index.IndexedFiles)
	assert.Equal(t, lastRun.Format(time.RFC3339), out.Index.LastRunAt)

	assert.Equal(t, "2026-08-24", out.Quota.Date)
	assert.Equal(t, 1000, out.Quota.Limit)
	assert.Equal(t, 800, out.Quota.UnitsConsumedToday)
	assert.Equal(t, 200, out.Quota.Remaining)

	require.Len(t, out.RecentErrors, 1)
	assert.Equal(t, "internal/broken.go", out.RecentErrors[0].Path)
	assert.Equal(t, "chunking failed", out.RecentErrors[0].Message)
	assert.Equal(t, failedAt.Format(time.RFC3339), out.RecentErrors[0].Timestamp)
}

func TestIndexStatusHandler_IdleIndexOmitsLastRun(t *testing.T) {
	srv := newTestServer(t, &fakeQuerier{}, &fakeIndexer{}, nil)

	_, out, err := srv.indexStatusHandler(context.Background(), nil, IndexStatusInput{})

	require.NoError(t, err)
	assert.Equal(t, engine.PhaseIdle, out.Index.Phase)
	assert.Empty(t, out.Index.LastRunAt)
	assert.Empty(t, out.RecentErrors)
}

func TestIndexStatusHandler_OverdrawnQuotaClampsToZero(t *testing.T) {
	// An in-flight batch can push consumption past the limit.
	indexer := &fakeIndexer{
		statusFn: func() engine.StatusSnapshot {
			return engine.StatusSnapshot{
				Phase: engine.PhaseIdle,
				Quota: ledger.DailyQuota{Date: "2026-08-24", UnitsConsumedToday: 1010, Limit: 1000},
			}
		},
	}
	srv := newTestServer(t, &fakeQuerier{}, indexer, nil)

	_, out, err := srv.indexStatusHandler(context.Background(), nil, IndexStatusInput{})

	require.NoError(t, err)
	assert.Equal(t, 0, out.Quota.Remaining)
}

func TestIndexStatusHandler_NilEmbedder(t *testing.T) {
	srv := newTestServer(t, &fakeQuerier{}, &fakeIndexer{}, nil)

	_, out, err := srv.indexStatusHandler(context.Background(), nil, IndexStatusInput{})

	require.NoError(t, err)
	assert.Equal(t, "none", out.Embeddings.Model)
	assert.Equal(t, "unavailable", out.Embeddings.Status)
	assert.True(t, out.Embeddings.IsFallbackActive)
}

func TestIndexStatusHandler_StaticEmbedderIsFallback(t *testing.T) {
	srv := newTestServer(t, &fakeQuerier{}, &fakeIndexer{}, embed.NewStaticEmbedder())

	_, out, err := srv.indexStatusHandler(context.Background(), nil, IndexStatusInput{})

	require.NoError(t, err)
	assert.Equal(t, "static", out.Embeddings.Model)
	assert.Equal(t, embed.StaticDimensions, out.Embeddings.Dimensions)
	assert.Equal(t, "ready", out.Embeddings.Status)
	assert.True(t, out.Embeddings.IsFallbackActive)
}

func TestIndexStatusHandler_UnavailableEmbedder(t *testing.T) {
	srv := newTestServer(t, &fakeQuerier{}, &fakeIndexer{}, unavailableEmbedder{})

	_, out, err := srv.indexStatusHandler(context.Background(), nil, IndexStatusInput{})

	require.NoError(t, err)
	assert.Equal(t, "all-minilm-l6-v2", out.Embeddings.Model)
	assert.Equal(t, 384, out.Embeddings.Dimensions)
	assert.Equal(t, "unavailable", out.Embeddings.Status)
	assert.False(t, out.Embeddings.IsFallbackActive)
}

func TestIndexStatusHandler_DetectsProject(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "go.mod", "module github.com/acme/indexed-repo\n")
	srv, err := NewServer(&fakeQuerier{}, &fakeIndexer{}, nil, root)
	require.NoError(t, err)

	_, out, err := srv.indexStatusHandler(context.Background(), nil, IndexStatusInput{})

	require.NoError(t, err)
	assert.Equal(t, "indexed-repo", out.Project.Name)
	assert.Equal(t, "go", out.Project.Type)
	assert.Equal(t, root, out.Project.RootPath)
}

func TestReindexHandler_ReturnsReport(t *testing.T) {
	report := &engine.RunReport{
		StartedAt:      time.Now(),
		Duration:       2500 * time.Millisecond,
		New:            4,
		Modified:       2,
		Unchanged:      90,
		Deleted:        1,
		Indexed:        6,
		Skipped:        1,
		Failed:         0,
		Deferred:       3,
		UnitsCharged:   48,
		QuotaExhausted: true,
	}
	indexer := &fakeIndexer{
		triggerFn: func(context.Context) (*engine.RunReport, error) {
			return report, nil
		},
	}
	srv := newTestServer(t, &fakeQuerier{}, indexer, nil)

	_, out, err := srv.reindexHandler(context.Background(), nil, ReindexInput{})

	require.NoError(t, err)
	assert.False(t, out.Absorbed)
	require.NotNil(t, out.Report)
	assert.Equal(t, int64(2500), out.Report.DurationMS)
	assert.Equal(t, 4, out.Report.New)
	assert.Equal(t, 2, out.Report.Modified)
	assert.Equal(t, 90, out.Report.Unchanged)
	assert.Equal(t, 1, out.Report.Deleted)
	assert.Equal(t, 6, out.Report.Indexed)
	assert.Equal(t, 1, out.Report.Skipped)
	assert.Equal(t, 3, out.Report.Deferred)
	assert.Equal(t, 48, out.Report.UnitsCharged)
	assert.True(t, out.Report.QuotaExhausted)
}

func TestReindexHandler_AbsorbedTrigger(t *testing.T) {
	// Given: an engine already mid-run, which absorbs the trigger
	indexer := &fakeIndexer{
		triggerFn: func(context.Context) (*engine.RunReport, error) {
			return nil, nil
		},
	}
	srv := newTestServer(t, &fakeQuerier{}, indexer, nil)

	_, out, err := srv.reindexHandler(context.Background(), nil, ReindexInput{})

	// Then: the caller learns the work folded into the active run
	require.NoError(t, err)
	assert.True(t, out.Absorbed)
	assert.Nil(t, out.Report)
}

func TestReindexHandler_MapsEngineErrors(t *testing.T) {
	indexer := &fakeIndexer{
		triggerFn: func(context.Context) (*engine.RunReport, error) {
			return nil, errors.New("ledger locked")
		},
	}
	srv := newTestServer(t, &fakeQuerier{}, indexer, nil)

	_, _, err := srv.reindexHandler(context.Background(), nil, ReindexInput{})

	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInternalError, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "ledger locked")
}
