// Package search runs hybrid queries: dense vector hits from the remote
// store fused with local keyword hits via reciprocal rank fusion.
package search

import (
	"sort"

	"github.com/repovec/repovec/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// the widely used default.
const DefaultRRFConstant = 60

// Weights sets the relative contribution of each leg to the fused score.
type Weights struct {
	// Keyword is the weight of the keyword leg.
	Keyword float64
	// Semantic is the weight of the vector leg.
	Semantic float64
}

// DefaultWeights favors the semantic leg. The keyword leg earns its keep
// on exact identifiers, which rank tie-breaking also prefers.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.35, Semantic: 0.65}
}

// Result is one fused search hit.
type Result struct {
	// ID is the chunk ID.
	ID string

	// Path is the file the chunk came from.
	Path string

	// Score is the fused score, normalized so the best hit is 1.0.
	Score float64

	// KeywordScore and KeywordRank describe the keyword leg. Rank is
	// 1-indexed, 0 when the leg did not return the hit.
	KeywordScore float64
	KeywordRank  int

	// VecScore and VecRank describe the vector leg, same convention.
	VecScore float64
	VecRank  int

	// InBoth marks hits found by both legs.
	InBoth bool

	// MatchedTerms are the keyword-leg query terms that matched.
	MatchedTerms []string

	// Payload carries chunk content and location when the vector leg
	// returned the hit. Keyword-only hits carry just the path.
	Payload store.Payload
}

// Fusion merges per-leg rankings with reciprocal rank fusion:
//
//	score(d) = Σ weight_i / (k + rank_i)
//
// Hits missing from one leg are charged that leg's contribution at rank
// max(len(keyword), len(vector)) + 1, so single-leg hits are penalized
// but not discarded.
type Fusion struct {
	K int
}

// NewFusion returns a fusion with the default smoothing constant.
func NewFusion() *Fusion {
	return &Fusion{K: DefaultRRFConstant}
}

// NewFusionWithK returns a fusion with a custom smoothing constant.
// Non-positive values fall back to the default.
func NewFusionWithK(k int) *Fusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &Fusion{K: k}
}

// Fuse combines the two rankings. The returned slice is sorted best
// first and never nil.
func (f *Fusion) Fuse(keyword []store.KeywordHit, vector []store.SearchHit, w Weights) []Result {
	if len(keyword) == 0 && len(vector) == 0 {
		return []Result{}
	}

	fused := make(map[string]*Result, len(keyword)+len(vector))

	for i, hit := range keyword {
		r := f.at(fused, hit.ID)
		r.Path = hit.Path
		r.KeywordScore = hit.Score
		r.KeywordRank = i + 1
		r.MatchedTerms = hit.MatchedTerms
		r.Score += w.Keyword / float64(f.K+i+1)
	}

	for i, hit := range vector {
		r := f.at(fused, hit.ID)
		r.Path = hit.Payload.Path
		r.Payload = hit.Payload
		r.VecScore = float64(hit.Score)
		r.VecRank = i + 1
		r.Score += w.Semantic / float64(f.K+i+1)
		if r.KeywordRank > 0 {
			r.InBoth = true
		}
	}

	missing := max(len(keyword), len(vector)) + 1
	for _, r := range fused {
		if r.KeywordRank == 0 {
			r.Score += w.Keyword / float64(f.K+missing)
		}
		if r.VecRank == 0 {
			r.Score += w.Semantic / float64(f.K+missing)
		}
	}

	results := make([]Result, 0, len(fused))
	for _, r := range fused {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		return less(results[i], results[j])
	})

	normalize(results)
	return results
}

func (f *Fusion) at(fused map[string]*Result, id string) *Result {
	if r, ok := fused[id]; ok {
		return r
	}
	r := &Result{ID: id}
	fused[id] = r
	return r
}

// less orders a before b. Ties prefer hits both legs agreed on, then
// stronger keyword matches, then the smaller chunk ID so the order is
// stable across runs.
func less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.InBoth != b.InBoth {
		return a.InBoth
	}
	if a.KeywordScore != b.KeywordScore {
		return a.KeywordScore > b.KeywordScore
	}
	return a.ID < b.ID
}

// normalize rescales fused scores so the best hit is 1.0. The input is
// sorted, so the first element holds the maximum.
func normalize(results []Result) {
	if len(results) == 0 || results[0].Score == 0 {
		return
	}
	top := results[0].Score
	for i := range results {
		results[i].Score /= top
	}
}
