package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSource = `package demo

import "fmt"

// Greet prints a greeting.
// It is exported.
func Greet(name string) {
	fmt.Println("hello", name)
}

type Server struct {
	Addr string
}

func (s *Server) Start() error {
	return nil
}

const MaxRetries = 3
`

func TestHashContent_Deterministic(t *testing.T) {
	a := HashContent([]byte("package main\n"))
	b := HashContent([]byte("package main\n"))
	c := HashContent([]byte("package main\n\n"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestID_DeterministicPerPathAndLine(t *testing.T) {
	assert.Equal(t, ID("a.go", 10), ID("a.go", 10))
	assert.NotEqual(t, ID("a.go", 10), ID("a.go", 11))
	assert.NotEqual(t, ID("a.go", 10), ID("b.go", 10))
	assert.Len(t, ID("a.go", 10), 16)
}

func TestChunker_Parse_EmptyContentYieldsZeroChunks(t *testing.T) {
	c := NewChunker()
	defer c.Close()

	chunks, err := c.Parse(context.Background(), "empty.go", []byte(""))
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = c.Parse(context.Background(), "blank.go", []byte("   \n\n\t\n"))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunker_Parse_GoDeclarations(t *testing.T) {
	c := NewChunker()
	defer c.Close()

	chunks, err := c.Parse(context.Background(), "demo.go", []byte(goSource))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	bySymbol := make(map[string]Chunk)
	for _, ch := range chunks {
		bySymbol[ch.Symbol] = ch
		assert.Equal(t, "demo.go", ch.FilePath)
		assert.Equal(t, "go", ch.Language)
		assert.NotEmpty(t, ch.ID)
		assert.LessOrEqual(t, ch.StartLine, ch.EndLine)
	}

	greet, ok := bySymbol["Greet"]
	require.True(t, ok, "function chunk missing")
	// The doc comment travels with the declaration
	assert.Contains(t, greet.Content, "// Greet prints a greeting.")
	assert.Contains(t, greet.Content, "func Greet(name string)")
	assert.Equal(t, 5, greet.StartLine)

	start, ok := bySymbol["Start"]
	require.True(t, ok, "method chunk missing")
	assert.Contains(t, start.Content, "func (s *Server) Start() error")

	server, ok := bySymbol["Server"]
	require.True(t, ok, "type chunk missing")
	assert.Contains(t, server.Content, "type Server struct")

	retries, ok := bySymbol["MaxRetries"]
	require.True(t, ok, "const chunk missing")
	assert.Contains(t, retries.Content, "MaxRetries = 3")
}

func TestChunker_Parse_GoChunkIDsAreStable(t *testing.T) {
	c := NewChunker()
	defer c.Close()

	first, err := c.Parse(context.Background(), "demo.go", []byte(goSource))
	require.NoError(t, err)
	second, err := c.Parse(context.Background(), "demo.go", []byte(goSource))
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestChunker_Parse_PythonDeclarations(t *testing.T) {
	src := `import os

def load(path):
    return open(path).read()

class Loader:
    def run(self):
        pass
`
	c := NewChunker()
	defer c.Close()

	chunks, err := c.Parse(context.Background(), "loader.py", []byte(src))
	require.NoError(t, err)

	symbols := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		symbols = append(symbols, ch.Symbol)
		assert.Equal(t, "python", ch.Language)
	}
	assert.Contains(t, symbols, "load")
	assert.Contains(t, symbols, "Loader")
}

func TestChunker_Parse_TypeScriptDeclarations(t *testing.T) {
	src := `export interface Point {
  x: number;
  y: number;
}

function distance(a: Point, b: Point): number {
  return Math.hypot(a.x - b.x, a.y - b.y);
}
`
	c := NewChunker()
	defer c.Close()

	chunks, err := c.Parse(context.Background(), "geo.ts", []byte(src))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var symbols []string
	for _, ch := range chunks {
		symbols = append(symbols, ch.Symbol)
	}
	assert.Contains(t, symbols, "distance")
}

func TestChunker_Parse_MarkdownHeadingSections(t *testing.T) {
	src := `intro paragraph before any heading

# Install

Run the installer.

## Requirements

A computer.

# Usage

Run the binary.
`
	c := NewChunker()
	defer c.Close()

	chunks, err := c.Parse(context.Background(), "README.md", []byte(src))
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	// Preamble first, then one chunk per heading
	assert.Equal(t, "", chunks[0].Symbol)
	assert.Contains(t, chunks[0].Content, "intro paragraph")

	assert.Equal(t, "Install", chunks[1].Symbol)
	assert.Contains(t, chunks[1].Content, "Run the installer.")

	assert.Equal(t, "Requirements", chunks[2].Symbol)
	assert.Equal(t, "Usage", chunks[3].Symbol)

	for _, ch := range chunks {
		assert.Equal(t, "markdown", ch.Language)
	}
}

func TestChunker_Parse_MarkdownShebangNotHeading(t *testing.T) {
	c := NewChunker()
	defer c.Close()

	chunks, err := c.Parse(context.Background(), "notes.md", []byte("#no space heading\nbody\n"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "", chunks[0].Symbol)
}

func TestChunker_Parse_PlainTextWindows(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("some plain text line with a handful of words on it\n")
	}

	c := NewChunker()
	defer c.Close()

	chunks, err := c.Parse(context.Background(), "notes.txt", []byte(b.String()))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), maxChunkChars)
		assert.Equal(t, "", ch.Language)
	}

	// Adjacent windows overlap
	assert.Less(t, chunks[1].StartLine, chunks[0].EndLine+1)
}

func TestChunker_Parse_OversizedDeclarationSplits(t *testing.T) {
	var b strings.Builder
	b.WriteString("package big\n\nfunc Huge() {\n")
	for i := 0; i < 300; i++ {
		b.WriteString("\tdoSomethingWithAReasonablyLongCallName(argument, other)\n")
	}
	b.WriteString("}\n")

	c := NewChunker()
	defer c.Close()

	chunks, err := c.Parse(context.Background(), "big.go", []byte(b.String()))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		assert.Equal(t, "Huge", ch.Symbol)
		assert.LessOrEqual(t, len(ch.Content), maxChunkChars)
	}
}

func TestChunker_Parse_UnknownExtensionFallsBackToText(t *testing.T) {
	c := NewChunker()
	defer c.Close()

	chunks, err := c.Parse(context.Background(), "data.xyz", []byte("line one\nline two\n"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, "", chunks[0].Symbol)
}

func TestParser_Parse_ReturnsTree(t *testing.T) {
	p := NewParser()
	defer p.Close()

	tree, err := p.Parse(context.Background(), []byte("package demo\n\nfunc F() {}\n"), "go")
	require.NoError(t, err)
	require.NotNil(t, tree.Root)
	assert.Equal(t, "source_file", tree.Root.Type)
	assert.NotEmpty(t, tree.Root.Children)
}

func TestParser_Parse_UnsupportedLanguage(t *testing.T) {
	p := NewParser()
	defer p.Close()

	_, err := p.Parse(context.Background(), []byte("x"), "cobol")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
}

func TestLanguageRegistry_GetByExtension(t *testing.T) {
	r := DefaultRegistry()

	config, ok := r.GetByExtension(".go")
	require.True(t, ok)
	assert.Equal(t, "go", config.Name)

	config, ok = r.GetByExtension("ts")
	require.True(t, ok)
	assert.Equal(t, "typescript", config.Name)

	_, ok = r.GetByExtension(".zig")
	assert.False(t, ok)
}
