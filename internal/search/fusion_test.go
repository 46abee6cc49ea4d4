package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repovec/repovec/internal/store"
)

func kwHit(id, path string, score float64, terms ...string) store.KeywordHit {
	return store.KeywordHit{ID: id, Path: path, Score: score, MatchedTerms: terms}
}

func vecHit(id, path string, score float32) store.SearchHit {
	return store.SearchHit{ID: id, Score: score, Payload: store.Payload{Path: path, Content: "body of " + id}}
}

func TestNewFusionWithK_NonPositiveFallsBack(t *testing.T) {
	assert.Equal(t, DefaultRRFConstant, NewFusionWithK(0).K)
	assert.Equal(t, DefaultRRFConstant, NewFusionWithK(-5).K)
	assert.Equal(t, 10, NewFusionWithK(10).K)
}

func TestFuse_EmptyInputsReturnEmptySlice(t *testing.T) {
	results := NewFusion().Fuse(nil, nil, DefaultWeights())

	require.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFuse_SingleLegKeepsItsOrder(t *testing.T) {
	keyword := []store.KeywordHit{
		kwHit("a", "a.go", 4.0),
		kwHit("b", "b.go", 2.5),
		kwHit("c", "c.go", 1.0),
	}

	results := NewFusion().Fuse(keyword, nil, DefaultWeights())

	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "b", "c"}, ids(results))
	assert.Equal(t, 1.0, results[0].Score)
	for _, r := range results {
		assert.Zero(t, r.VecRank)
		assert.False(t, r.InBoth)
	}
}

func TestFuse_LegFieldsArePreserved(t *testing.T) {
	keyword := []store.KeywordHit{kwHit("x", "pkg/x.go", 3.2, "token", "refresh")}
	vector := []store.SearchHit{vecHit("x", "pkg/x.go", 0.91)}

	results := NewFusion().Fuse(keyword, vector, DefaultWeights())

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, "x", r.ID)
	assert.Equal(t, "pkg/x.go", r.Path)
	assert.Equal(t, 1.0, r.Score)
	assert.Equal(t, 3.2, r.KeywordScore)
	assert.Equal(t, 1, r.KeywordRank)
	assert.InDelta(t, 0.91, r.VecScore, 1e-6)
	assert.Equal(t, 1, r.VecRank)
	assert.True(t, r.InBoth)
	assert.Equal(t, []string{"token", "refresh"}, r.MatchedTerms)
	assert.Equal(t, "body of x", r.Payload.Content)
}

func TestFuse_DefaultWeightsFavorTheVectorLeg(t *testing.T) {
	// a: keyword #1 only. b: both legs at #2. c: vector #1 only.
	// With k=60 rank gaps barely matter, so the heavier semantic
	// weight decides: c > b > a.
	keyword := []store.KeywordHit{
		kwHit("a", "a.go", 5.0),
		kwHit("b", "b.go", 3.0),
	}
	vector := []store.SearchHit{
		vecHit("c", "c.go", 0.9),
		vecHit("b", "b.go", 0.8),
	}

	results := NewFusion().Fuse(keyword, vector, DefaultWeights())

	require.Len(t, results, 3)
	assert.Equal(t, []string{"c", "b", "a"}, ids(results))
	assert.Equal(t, 1.0, results[0].Score)
	assert.True(t, results[1].InBoth)
	assert.Greater(t, results[1].Score, results[2].Score)
}

func TestFuse_EqualWeightsBreakTiesOnKeywordScore(t *testing.T) {
	// With equal weights, a (keyword #1) and c (vector #1) land on
	// exactly the same fused score; the keyword score decides.
	keyword := []store.KeywordHit{
		kwHit("a", "a.go", 5.0),
		kwHit("b", "b.go", 3.0),
	}
	vector := []store.SearchHit{
		vecHit("c", "c.go", 0.9),
		vecHit("b", "b.go", 0.8),
	}

	results := NewFusion().Fuse(keyword, vector, Weights{Keyword: 0.5, Semantic: 0.5})

	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "c", "b"}, ids(results))
}

func TestFuse_ExactTiesOrderByID(t *testing.T) {
	// Equal weights and a zero keyword score produce two hits with
	// identical fused scores and identical tie-break fields except ID.
	keyword := []store.KeywordHit{kwHit("zz", "zz.go", 0)}
	vector := []store.SearchHit{vecHit("aa", "aa.go", 0.4)}

	results := NewFusion().Fuse(keyword, vector, Weights{Keyword: 0.5, Semantic: 0.5})

	require.Len(t, results, 2)
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Equal(t, []string{"aa", "zz"}, ids(results))
}

func TestFuse_ZeroWeightsLeaveScoresAtZero(t *testing.T) {
	keyword := []store.KeywordHit{kwHit("a", "a.go", 2.0)}

	results := NewFusion().Fuse(keyword, nil, Weights{})

	require.Len(t, results, 1)
	assert.Zero(t, results[0].Score)
}

func TestFuse_SmallerKSharpensRankGaps(t *testing.T) {
	keyword := []store.KeywordHit{
		kwHit("a", "a.go", 5.0),
		kwHit("b", "b.go", 4.0),
	}

	loose := NewFusion().Fuse(keyword, nil, DefaultWeights())
	sharp := NewFusionWithK(1).Fuse(keyword, nil, DefaultWeights())

	require.Len(t, loose, 2)
	require.Len(t, sharp, 2)
	// Normalized top is always 1.0; the runner-up falls further behind
	// with a small k.
	assert.Less(t, sharp[1].Score, loose[1].Score)
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
