package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/repovec/repovec/internal/embed"
	"github.com/repovec/repovec/internal/store"
)

const (
	// DefaultLimit is the result count when none is requested.
	DefaultLimit = 10
	// MaxLimit caps the result count.
	MaxLimit = 100
)

// Options configures one query.
type Options struct {
	// Limit caps the number of fused results. Default 10, max 100.
	Limit int

	// Weights overrides the default leg weights.
	Weights *Weights

	// KeywordOnly skips the vector leg entirely. Useful when the
	// embedding backend is down or for exact identifier lookups.
	KeywordOnly bool

	// Scopes restricts results to paths equal to or under any of these
	// prefixes. Empty means no restriction.
	Scopes []string
}

// Searcher runs hybrid queries against the vector store and the keyword
// sidecar. Either leg may be absent; whichever is present serves alone.
type Searcher struct {
	embedder embed.Embedder
	vectors  store.VectorStore
	keyword  *store.KeywordIndex
	fusion   *Fusion
}

// NewSearcher creates a searcher. keyword may be nil to disable the
// keyword leg; embedder may be nil to force keyword-only queries.
func NewSearcher(embedder embed.Embedder, vectors store.VectorStore, keyword *store.KeywordIndex) *Searcher {
	return &Searcher{
		embedder: embedder,
		vectors:  vectors,
		keyword:  keyword,
		fusion:   NewFusion(),
	}
}

// Search runs one hybrid query and returns fused results, best first.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	weights := DefaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}

	keywordHits, vectorHits, err := s.gather(ctx, query, limit, opts.KeywordOnly)
	if err != nil {
		return nil, err
	}

	results := s.fusion.Fuse(keywordHits, vectorHits, weights)
	results = filterScopes(results, opts.Scopes)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// gather runs both legs in parallel. One failed leg degrades the query
// to the other's results; both failing fails the query.
func (s *Searcher) gather(ctx context.Context, query string, limit int, keywordOnly bool) ([]store.KeywordHit, []store.SearchHit, error) {
	useVector := !keywordOnly && s.embedder != nil && s.vectors != nil
	useKeyword := s.keyword != nil

	if !useVector && !useKeyword {
		return nil, nil, fmt.Errorf("no search backend configured")
	}

	var (
		keywordHits []store.KeywordHit
		vectorHits  []store.SearchHit
		keywordErr  error
		vectorErr   error
	)

	g, gctx := errgroup.WithContext(ctx)

	if useKeyword {
		g.Go(func() error {
			keywordHits, keywordErr = s.keyword.Search(gctx, query, limit)
			return nil
		})
	}
	if useVector {
		g.Go(func() error {
			vec, err := embed.EmbedOne(gctx, s.embedder, query)
			if err != nil {
				vectorErr = fmt.Errorf("failed to embed query: %w", err)
				return nil
			}
			vectorHits, vectorErr = s.vectors.Search(gctx, vec, limit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if useVector && vectorErr != nil && (!useKeyword || keywordErr != nil) {
		return nil, nil, errors.Join(vectorErr, keywordErr)
	}
	if useKeyword && keywordErr != nil && !useVector {
		return nil, nil, keywordErr
	}

	if keywordErr != nil {
		slog.Warn("keyword leg failed, serving vector results only",
			slog.String("error", keywordErr.Error()))
		keywordHits = nil
	}
	if vectorErr != nil {
		slog.Warn("vector leg failed, serving keyword results only",
			slog.String("error", vectorErr.Error()))
		vectorHits = nil
	}

	return keywordHits, vectorHits, nil
}

// filterScopes keeps results whose path falls under any scope prefix.
func filterScopes(results []Result, scopes []string) []Result {
	if len(scopes) == 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		for _, scope := range scopes {
			if underScope(r.Path, scope) {
				kept = append(kept, r)
				break
			}
		}
	}
	return kept
}

// underScope reports whether path is scope itself or inside it. Scopes
// are slash-relative like result paths.
func underScope(path, scope string) bool {
	scope = strings.TrimSuffix(strings.TrimSpace(scope), "/")
	if scope == "" {
		return true
	}
	return path == scope || strings.HasPrefix(path, scope+"/")
}
