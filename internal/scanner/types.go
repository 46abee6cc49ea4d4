// Package scanner walks a project tree and reports every eligible file
// together with a fresh content hash. It respects exclusion patterns,
// .gitignore rules, and sensitive file patterns, and never touches the
// hash snapshot the indexing engine keeps on disk.
package scanner

import (
	"time"
)

// FileInfo describes one eligible file found during a walk.
type FileInfo struct {
	Path     string    // Slash-separated path relative to the project root
	AbsPath  string    // Absolute path
	Size     int64     // File size in bytes
	ModTime  time.Time // Last modification time
	Hash     string    // Hex-encoded SHA-256 of the file content
	Language string    // go, typescript, python, etc.
}

// Options configures a walk.
type Options struct {
	// RootDir is the project root directory to scan.
	RootDir string

	// IncludeDirs restricts the walk to these directories relative to
	// the root. Empty means the whole root.
	IncludeDirs []string

	// Extensions is the allow-list of file extensions (with leading
	// dot). Empty means every non-binary file is eligible.
	Extensions []string

	// ExcludePatterns lists glob patterns to skip.
	ExcludePatterns []string

	// RespectGitignore enables .gitignore parsing.
	RespectGitignore bool

	// MaxFileSize skips files larger than this in bytes (0 = 2MB).
	MaxFileSize int64

	// FollowSymlinks enables following symbolic links.
	FollowSymlinks bool

	// Workers is the number of concurrent hashing workers (0 = NumCPU).
	Workers int
}

// Result is one item streamed from Scan.
type Result struct {
	File *FileInfo
	Err  error
}

// DefaultMaxFileSize is the fallback size cutoff (2MB).
const DefaultMaxFileSize = 2 * 1024 * 1024

// languageMap maps file extensions to languages understood by the
// chunker. Extensions outside this map still scan, they just chunk as
// plain text.
var languageMap = map[string]string{
	".go": "go",

	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",

	".py":  "python",
	".pyw": "python",
	".pyi": "python",

	".rb":    "ruby",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".php":   "php",
	".scala": "scala",
	".ex":    "elixir",
	".exs":   "elixir",
	".lua":   "lua",
	".sql":   "sql",

	".sh":   "shell",
	".bash": "shell",
	".zsh":  "shell",

	".html": "html",
	".css":  "css",
	".scss": "scss",

	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".xml":  "xml",

	".md":       "markdown",
	".mdx":      "markdown",
	".markdown": "markdown",
	".rst":      "rst",
	".txt":      "text",

	".proto":   "protobuf",
	".graphql": "graphql",
	".vue":     "vue",
	".svelte":  "svelte",

	"Dockerfile":  "dockerfile",
	"Makefile":    "makefile",
	"makefile":    "makefile",
	"GNUmakefile": "makefile",
}

// DetectLanguage detects the language from a file path.
func DetectLanguage(path string) string {
	// Exact filename matches first (Dockerfile, Makefile)
	base := baseName(path)
	if lang, ok := languageMap[base]; ok {
		return lang
	}

	ext := extension(path)
	if lang, ok := languageMap[ext]; ok {
		return lang
	}

	return ""
}

// baseName returns the file name from a path.
func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// extension returns the file extension including the dot.
func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
