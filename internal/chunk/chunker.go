package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
)

// HashContent returns the hex SHA-256 of content. Pure and
// deterministic, so hashes compare across processes and runs.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ID derives the deterministic chunk ID for a (path, start line) pair.
// Re-indexing a file therefore overwrites its previous points instead
// of accumulating duplicates.
func ID(path string, startLine int) string {
	sum := sha256.Sum256([]byte(path + ":" + strconv.Itoa(startLine)))
	return hex.EncodeToString(sum[:])[:16]
}

// markdownExtensions chunk at heading boundaries.
var markdownExtensions = map[string]bool{
	".md":       true,
	".mdx":      true,
	".markdown": true,
}

// Chunker splits file content into chunks. Not safe for concurrent
// use; the indexing pipeline processes files sequentially.
type Chunker struct {
	parser   *Parser
	registry *LanguageRegistry
}

// NewChunker creates a chunker with the default language registry.
func NewChunker() *Chunker {
	return &Chunker{
		parser:   NewParser(),
		registry: DefaultRegistry(),
	}
}

// Close releases parser resources.
func (c *Chunker) Close() {
	c.parser.Close()
}

// Parse splits content into chunks for the given path. Empty or
// whitespace-only content yields zero chunks and no error.
func (c *Chunker) Parse(ctx context.Context, path string, content []byte) ([]Chunk, error) {
	if strings.TrimSpace(string(content)) == "" {
		return nil, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	if markdownExtensions[ext] {
		return c.chunkMarkdown(path, content), nil
	}

	if config, ok := c.registry.GetByExtension(ext); ok {
		chunks, err := c.chunkCode(ctx, path, content, config)
		if err != nil {
			return nil, err
		}
		if len(chunks) > 0 {
			return chunks, nil
		}
		// No recognizable declarations, window the whole file instead
		return c.chunkText(path, content, config.Name), nil
	}

	return c.chunkText(path, content, ""), nil
}

// chunkCode parses the file and emits one chunk per top-level
// declaration, pulling directly preceding comment blocks into the
// declaration's chunk.
func (c *Chunker) chunkCode(ctx context.Context, path string, content []byte, config *LanguageConfig) ([]Chunk, error) {
	tree, err := c.parser.Parse(ctx, content, config.Name)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(content), "\n")
	var chunks []Chunk

	// Track the comment block directly above the cursor so doc
	// comments travel with their declaration.
	commentStart, commentEnd := -1, -1

	for _, node := range tree.Root.Children {
		if node.Type == "comment" {
			s, e := int(node.StartPoint.Row), int(node.EndPoint.Row)
			if commentEnd >= 0 && s == commentEnd+1 {
				commentEnd = e
			} else {
				commentStart, commentEnd = s, e
			}
			continue
		}

		nameTypes, isDecl := config.Declarations[node.Type]
		if !isDecl {
			commentStart, commentEnd = -1, -1
			continue
		}

		startRow := int(node.StartPoint.Row)
		if commentEnd >= 0 && commentEnd+1 == startRow {
			startRow = commentStart
		}
		commentStart, commentEnd = -1, -1

		endRow := int(node.EndPoint.Row)
		if endRow >= len(lines) {
			endRow = len(lines) - 1
		}

		symbol := declName(node, tree.Source, nameTypes)
		text := strings.Join(lines[startRow:endRow+1], "\n")

		if len(text) > maxChunkChars {
			chunks = append(chunks, windowChunks(path, lines[startRow:endRow+1], startRow+1, config.Name, symbol)...)
			continue
		}

		chunks = append(chunks, Chunk{
			ID:        ID(path, startRow+1),
			FilePath:  path,
			Content:   text,
			StartLine: startRow + 1,
			EndLine:   endRow + 1,
			Symbol:    symbol,
			Language:  config.Name,
		})
	}

	return chunks, nil
}

// declName extracts the declared name. Direct children are preferred so
// a Go method's receiver identifiers are never picked up; a shallow
// walk covers declarations whose name sits one level down (type specs,
// const specs).
func declName(decl *Node, source []byte, nameTypes []string) string {
	for _, want := range nameTypes {
		if child := decl.FindChildByType(want); child != nil {
			return child.GetContent(source)
		}
	}

	for _, want := range nameTypes {
		var found *Node
		decl.Walk(func(n *Node) bool {
			if found != nil {
				return false
			}
			if n != decl && n.Type == want {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			return found.GetContent(source)
		}
	}

	return ""
}

// chunkMarkdown splits at ATX heading boundaries, keeping each heading
// with its section body. Content before the first heading becomes its
// own chunk.
func (c *Chunker) chunkMarkdown(path string, content []byte) []Chunk {
	lines := strings.Split(string(content), "\n")
	var chunks []Chunk

	flush := func(start, end int, symbol string) {
		if start > end {
			return
		}
		body := lines[start : end+1]
		text := strings.Join(body, "\n")
		if strings.TrimSpace(text) == "" {
			return
		}
		if len(text) > maxChunkChars {
			chunks = append(chunks, windowChunks(path, body, start+1, "markdown", symbol)...)
			return
		}
		chunks = append(chunks, Chunk{
			ID:        ID(path, start+1),
			FilePath:  path,
			Content:   text,
			StartLine: start + 1,
			EndLine:   end + 1,
			Symbol:    symbol,
			Language:  "markdown",
		})
	}

	start, symbol := 0, ""
	started := false
	for i, line := range lines {
		h, ok := headingLine(line)
		if !ok {
			continue
		}
		if started {
			flush(start, i-1, symbol)
		} else if i > 0 {
			flush(0, i-1, "")
		}
		start, symbol, started = i, h, true
	}
	if started {
		flush(start, len(lines)-1, symbol)
	} else {
		flush(0, len(lines)-1, "")
	}

	return chunks
}

// headingLine reports whether a line is an ATX heading and returns its
// text.
func headingLine(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, "#")
	level := len(line) - len(trimmed)
	if level < 1 || level > 6 || !strings.HasPrefix(trimmed, " ") {
		return "", false
	}
	return strings.TrimSpace(trimmed), true
}

// chunkText windows arbitrary content by lines.
func (c *Chunker) chunkText(path string, content []byte, language string) []Chunk {
	lines := strings.Split(string(content), "\n")
	return windowChunks(path, lines, 1, language, "")
}

// windowChunks splits lines into overlapping windows under the token
// budget. startLine is the 1-indexed line number of lines[0].
func windowChunks(path string, lines []string, startLine int, language, symbol string) []Chunk {
	var chunks []Chunk

	i := 0
	for i < len(lines) {
		chars := 0
		j := i
		for j < len(lines) {
			lineChars := len(lines[j]) + 1
			if chars > 0 && chars+lineChars > maxChunkChars {
				break
			}
			chars += lineChars
			j++
		}

		content := strings.Join(lines[i:j], "\n")
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, Chunk{
				ID:        ID(path, startLine+i),
				FilePath:  path,
				Content:   content,
				StartLine: startLine + i,
				EndLine:   startLine + j - 1,
				Symbol:    symbol,
				Language:  language,
			})
		}

		if j >= len(lines) {
			break
		}

		// Step back so adjacent windows overlap
		back := j
		overlap := 0
		for back > i+1 && overlap < overlapChars {
			back--
			overlap += len(lines[back]) + 1
		}
		i = back
	}

	return chunks
}
