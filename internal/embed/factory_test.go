package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repovec/repovec/internal/config"
)

func TestNew_StaticProvider(t *testing.T) {
	cfg := config.EmbeddingConfig{Provider: "static"}

	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	// No cache size configured means no cache wrapper
	static, ok := e.(*StaticEmbedder)
	require.True(t, ok, "expected bare *StaticEmbedder, got %T", e)
	assert.Equal(t, StaticDimensions, static.Dimensions())
}

func TestNew_WrapsWithCache(t *testing.T) {
	cfg := config.EmbeddingConfig{Provider: "static", CacheSize: 128}

	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok, "expected *CachedEmbedder, got %T", e)
	_, ok = cached.Inner().(*StaticEmbedder)
	assert.True(t, ok)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.EmbeddingConfig{Provider: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
	assert.Contains(t, err.Error(), "static")
}

func TestNew_HTTPProviderUnreachable(t *testing.T) {
	cfg := config.EmbeddingConfig{
		Provider: "http",
		Endpoint: "http://127.0.0.1:1",
	}

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestIsValidProvider(t *testing.T) {
	assert.True(t, IsValidProvider("http"))
	assert.True(t, IsValidProvider("HTTP"))
	assert.True(t, IsValidProvider("static"))
	assert.False(t, IsValidProvider("mlx"))
	assert.False(t, IsValidProvider(""))
}

func TestDescribe(t *testing.T) {
	static := NewStaticEmbedder()
	t.Cleanup(func() { _ = static.Close() })

	info := Describe(static)
	assert.Equal(t, ProviderStatic, info.Provider)
	assert.Equal(t, "static", info.Model)
	assert.Equal(t, StaticDimensions, info.Dimensions)
	assert.False(t, info.Cached)

	cached := NewCachedEmbedder(static, 8)
	info = Describe(cached)
	assert.Equal(t, ProviderStatic, info.Provider)
	assert.True(t, info.Cached)
}

func TestEmbedOne(t *testing.T) {
	mock := newMockEmbedder()

	vec, err := EmbedOne(context.Background(), mock, "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)

	mock.rejected["bad"] = true
	_, err = EmbedOne(context.Background(), mock, "bad")
	assert.ErrorIs(t, err, ErrTextRejected)
}
