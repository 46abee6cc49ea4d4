// Package chunk splits file content into retrievable units. Code files
// chunk at declaration boundaries via tree-sitter, markdown at heading
// boundaries, everything else into overlapping line windows.
package chunk

// Token budget approximations used when splitting oversized content.
const (
	// MaxChunkTokens keeps chunks inside typical embedding context.
	MaxChunkTokens = 512
	// OverlapTokens is carried between adjacent window chunks.
	OverlapTokens = 64
	// CharsPerToken is the rough chars-to-tokens ratio for code.
	CharsPerToken = 4

	maxChunkChars = MaxChunkTokens * CharsPerToken
	overlapChars  = OverlapTokens * CharsPerToken
)

// Chunk is one retrievable unit of a file.
type Chunk struct {
	// ID is deterministic for a (path, start line) pair so re-indexing
	// a file overwrites its previous points.
	ID string
	// FilePath is relative to the project root.
	FilePath string
	// Content is the chunk text sent to the embedder.
	Content string
	// StartLine and EndLine are 1-indexed and inclusive.
	StartLine int
	EndLine   int
	// Symbol is the enclosing declaration or heading, when known.
	Symbol string
	// Language is the source language, empty for plain text.
	Language string
}

// Tree is a parsed syntax tree.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is one syntax tree node.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a zero-indexed source position.
type Point struct {
	Row    uint32
	Column uint32
}

// LanguageConfig describes how one language chunks: which node types
// are top-level declarations and which child node types carry their
// names.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Declarations maps declaration node types to the node types that
	// hold the declared name, in preference order.
	Declarations map[string][]string
}
