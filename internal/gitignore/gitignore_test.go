package gitignore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Ignored_SimplePatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{name: "exact filename match", pattern: "foo.txt", path: "foo.txt", isDir: false, expected: true},
		{name: "exact filename no match", pattern: "foo.txt", path: "bar.txt", isDir: false, expected: false},
		{name: "filename in subdir", pattern: "foo.txt", path: "src/foo.txt", isDir: false, expected: true},
		{name: "filename deep nested", pattern: "foo.txt", path: "a/b/c/foo.txt", isDir: false, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Add(tt.pattern)
			got := m.Ignored(tt.path, tt.isDir)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatcher_Ignored_WildcardPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{name: "*.log matches .log", pattern: "*.log", path: "error.log", isDir: false, expected: true},
		{name: "*.log matches nested .log", pattern: "*.log", path: "logs/error.log", isDir: false, expected: true},
		{name: "*.log no match .txt", pattern: "*.log", path: "error.txt", isDir: false, expected: false},
		{name: "prefix wildcard", pattern: "test*", path: "test_util.go", isDir: false, expected: true},
		{name: "prefix wildcard no match", pattern: "test*", path: "production.go", isDir: false, expected: false},
		{name: "question mark single char", pattern: "file?.txt", path: "file1.txt", isDir: false, expected: true},
		{name: "question mark two chars", pattern: "file?.txt", path: "file12.txt", isDir: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Add(tt.pattern)
			got := m.Ignored(tt.path, tt.isDir)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatcher_Ignored_DoubleStarPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{name: "leading double star", pattern: "**/foo.txt", path: "a/b/foo.txt", isDir: false, expected: true},
		{name: "leading double star at root", pattern: "**/foo.txt", path: "foo.txt", isDir: false, expected: true},
		{name: "trailing double star", pattern: "logs/**", path: "logs/a/b/c.log", isDir: false, expected: true},
		{name: "middle double star", pattern: "a/**/b", path: "a/x/y/b", isDir: false, expected: true},
		{name: "middle double star direct", pattern: "a/**/b", path: "a/b", isDir: false, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Add(tt.pattern)
			got := m.Ignored(tt.path, tt.isDir)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatcher_Ignored_DirectoryOnlyPatterns(t *testing.T) {
	m := New()
	m.Add("build/")

	// Given a directory-only pattern
	// When matching a directory and a file of the same name
	// Then only the directory and its contents are ignored
	assert.True(t, m.Ignored("build", true))
	assert.False(t, m.Ignored("build", false))
	assert.True(t, m.Ignored("build/output.bin", false))
	assert.True(t, m.Ignored("src/build/cache.o", false))
}

func TestMatcher_Ignored_RootedPatterns(t *testing.T) {
	m := New()
	m.Add("/dist")

	assert.True(t, m.Ignored("dist", true))
	assert.False(t, m.Ignored("packages/dist", true))
}

func TestMatcher_Ignored_InternalSlashAnchors(t *testing.T) {
	m := New()
	m.Add("doc/frotz")

	// "doc/frotz" means /doc/frotz, not **/doc/frotz
	assert.True(t, m.Ignored("doc/frotz", false))
	assert.False(t, m.Ignored("a/doc/frotz", false))
}

func TestMatcher_Ignored_NegationPatterns(t *testing.T) {
	m := New()
	m.Add("*.log")
	m.Add("!important.log")

	assert.True(t, m.Ignored("error.log", false))
	assert.False(t, m.Ignored("important.log", false))
}

func TestMatcher_Ignored_NegationOrderMatters(t *testing.T) {
	m := New()
	m.Add("!important.log")
	m.Add("*.log")

	// The re-ignore comes later, so it wins
	assert.True(t, m.Ignored("important.log", false))
}

func TestMatcher_Ignored_CommentsAndBlanksSkipped(t *testing.T) {
	m := New()
	m.Add("# this is a comment")
	m.Add("")
	m.Add("   ")
	m.Add("*.tmp")

	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Ignored("scratch.tmp", false))
	assert.False(t, m.Ignored("# this is a comment", false))
}

func TestMatcher_Ignored_EscapedSpecialPrefixes(t *testing.T) {
	m := New()
	m.Add(`\#notacomment`)
	m.Add(`\!notanegation`)

	assert.True(t, m.Ignored("#notacomment", false))
	assert.True(t, m.Ignored("!notanegation", false))
}

func TestMatcher_AddUnder_ScopesPatternToSubdirectory(t *testing.T) {
	m := New()
	m.AddUnder("*.gen.go", "src/api")

	assert.True(t, m.Ignored("src/api/client.gen.go", false))
	assert.False(t, m.Ignored("src/web/client.gen.go", false))
	assert.False(t, m.Ignored("client.gen.go", false))
}

func TestMatcher_Load_ReadsPatternsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	content := "# build artifacts\n*.o\nbin/\n!bin/keep.sh\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := New()
	require.NoError(t, m.Load(path, ""))

	assert.True(t, m.Ignored("main.o", false))
	assert.True(t, m.Ignored("bin/tool", false))
	assert.False(t, m.Ignored("bin/keep.sh", false))
}

func TestMatcher_Load_MissingFileReturnsError(t *testing.T) {
	m := New()
	err := m.Load(filepath.Join(t.TempDir(), "nope"), "")
	require.Error(t, err)
}

func TestMatcher_Ignored_ConcurrentUse(t *testing.T) {
	m := New()
	m.Add("*.log")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Ignored("some/error.log", false)
				m.AddUnder("*.tmp", "scratch")
			}
		}()
	}
	wg.Wait()

	assert.True(t, m.Ignored("error.log", false))
}

func TestMatcher_Ignored_CharacterClass(t *testing.T) {
	m := New()
	m.Add("file[0-9].txt")

	assert.True(t, m.Ignored("file5.txt", false))
	assert.False(t, m.Ignored("fileA.txt", false))
}
