package scanner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/repovec/repovec/internal/config"
	"github.com/repovec/repovec/internal/gitignore"
)

// gitignoreCacheSize bounds the matcher cache so long-running watch
// sessions do not grow without limit.
const gitignoreCacheSize = 1000

// Scanner walks project trees and fingerprints eligible files.
type Scanner struct {
	// gitignoreCache caches parsed gitignore matchers by directory.
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	cacheMu        sync.RWMutex
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// OptionsFromConfig builds scan options from the resolved configuration.
func OptionsFromConfig(cfg *config.Config, root string) *Options {
	return &Options{
		RootDir:          root,
		IncludeDirs:      cfg.Paths.Include,
		Extensions:       cfg.Paths.Extensions,
		ExcludePatterns:  cfg.Paths.Exclude,
		RespectGitignore: true,
		MaxFileSize:      int64(cfg.Paths.MaxFileSizeMB) * 1024 * 1024,
	}
}

// candidate is a file that passed the walk-time filters and is waiting
// to be read and hashed.
type candidate struct {
	relPath string
	absPath string
}

// Scan walks the project and streams every eligible file with a fresh
// content hash. The channel closes when the walk completes.
func (s *Scanner) Scan(ctx context.Context, opts *Options) (<-chan Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan Result, workers*8)
	candidates := make(chan candidate, workers*8)

	go func() {
		defer close(results)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			defer close(candidates)
			return s.walk(gctx, absRoot, opts, maxFileSize, candidates)
		})

		for i := 0; i < workers; i++ {
			g.Go(func() error {
				for c := range candidates {
					fi, err := fingerprint(c, maxFileSize)
					if err != nil {
						slog.Warn("skipping unreadable file",
							slog.String("path", c.relPath),
							slog.String("error", err.Error()))
						continue
					}
					if fi == nil {
						continue // binary or grew past the size cutoff
					}
					select {
					case results <- Result{File: fi}:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil && err != context.Canceled {
			select {
			case results <- Result{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return results, nil
}

// Snapshot runs a full walk and returns the current universe as a map
// of relative path to content hash.
func (s *Scanner) Snapshot(ctx context.Context, opts *Options) (map[string]string, error) {
	results, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	universe := make(map[string]string)
	for res := range results {
		if res.Err != nil {
			// Drain so the workers can exit
			for range results {
			}
			return nil, res.Err
		}
		universe[res.File.Path] = res.File.Hash
	}
	return universe, nil
}

// walk traverses the configured roots and pushes candidates for hashing.
func (s *Scanner) walk(ctx context.Context, absRoot string, opts *Options, maxFileSize int64, out chan<- candidate) error {
	roots := []string{absRoot}
	if len(opts.IncludeDirs) > 0 {
		roots = roots[:0]
		for _, dir := range opts.IncludeDirs {
			roots = append(roots, filepath.Join(absRoot, dir))
		}
	}

	seen := make(map[string]struct{})

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err != nil {
				return nil // Skip entries we cannot access
			}

			relPath, err := filepath.Rel(absRoot, path)
			if err != nil {
				return nil
			}
			if relPath == "." {
				return nil
			}

			if d.IsDir() {
				if s.shouldExcludeDir(relPath, opts) {
					return filepath.SkipDir
				}
				return nil
			}

			if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
				return nil
			}

			if s.shouldExcludeFile(relPath, absRoot, opts) {
				return nil
			}

			if len(opts.Extensions) > 0 && !matchesExtension(relPath, opts.Extensions) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.Size() > maxFileSize {
				return nil
			}

			slashPath := filepath.ToSlash(relPath)
			if _, dup := seen[slashPath]; dup {
				return nil
			}
			seen[slashPath] = struct{}{}

			select {
			case out <- candidate{relPath: slashPath, absPath: path}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// fingerprint reads a candidate once, rejecting binaries and oversized
// files, and returns it with a SHA-256 content hash.
func fingerprint(c candidate, maxFileSize int64) (*FileInfo, error) {
	info, err := os.Stat(c.absPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(c.absPath)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxFileSize {
		return nil, nil
	}

	probe := data
	if len(probe) > 512 {
		probe = probe[:512]
	}
	if bytes.IndexByte(probe, 0) >= 0 {
		return nil, nil
	}

	sum := sha256.Sum256(data)

	return &FileInfo{
		Path:     c.relPath,
		AbsPath:  c.absPath,
		Size:     int64(len(data)),
		ModTime:  info.ModTime(),
		Hash:     hex.EncodeToString(sum[:]),
		Language: DetectLanguage(c.relPath),
	}, nil
}

// alwaysExcludeDirs is the safety floor applied even when the caller
// passes no patterns. The data directory must never index itself.
var alwaysExcludeDirs = []string{
	"**/.git/**",
	"**/" + config.DataDirName + "/**",
}

// sensitiveFilePatterns are never indexed regardless of configuration.
var sensitiveFilePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	"*password*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

// shouldExcludeDir checks if a directory should be pruned from the walk.
func (s *Scanner) shouldExcludeDir(relPath string, opts *Options) bool {
	for _, pattern := range alwaysExcludeDirs {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	for _, pattern := range opts.ExcludePatterns {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

// shouldExcludeFile checks if a file should be skipped.
func (s *Scanner) shouldExcludeFile(relPath, absRoot string, opts *Options) bool {
	base := filepath.Base(relPath)

	for _, pattern := range sensitiveFilePatterns {
		if matchFilePattern(base, relPath, pattern) {
			return true
		}
	}
	for _, pattern := range opts.ExcludePatterns {
		if matchFilePattern(base, relPath, pattern) {
			return true
		}
	}

	if opts.RespectGitignore && s.isGitignored(relPath, absRoot) {
		return true
	}
	return false
}

// matchesExtension checks the extension allow-list. Entries without a
// leading dot match exact filenames (Dockerfile, Makefile).
func matchesExtension(relPath string, extensions []string) bool {
	ext := extension(relPath)
	base := baseName(relPath)
	for _, allowed := range extensions {
		if strings.HasPrefix(allowed, ".") {
			if strings.EqualFold(ext, allowed) {
				return true
			}
		} else if base == allowed {
			return true
		}
	}
	return false
}

// matchDirPattern checks if a directory path matches a pattern.
func matchDirPattern(relPath, pattern string) bool {
	// **/name/** matches the directory anywhere in the tree
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		suffix = strings.TrimSuffix(suffix, "/**")
		for _, part := range strings.Split(relPath, string(filepath.Separator)) {
			if part == suffix {
				return true
			}
		}
		return false
	}

	// name/** matches the directory itself and everything below it
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	return relPath == pattern || strings.HasPrefix(relPath, pattern+string(filepath.Separator))
}

// matchFilePattern checks if a file matches a pattern.
func matchFilePattern(base, relPath, pattern string) bool {
	// dir/** matches any file below dir
	if strings.HasSuffix(pattern, "/**") && !strings.HasPrefix(pattern, "**/") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	// dir/glob.ext patterns match a glob inside one directory
	if strings.Contains(pattern, string(filepath.Separator)) && strings.Contains(pattern, "*") && !strings.HasPrefix(pattern, "**/") {
		if filepath.Dir(relPath) != filepath.Dir(pattern) {
			return false
		}
		matched, err := filepath.Match(filepath.Base(pattern), base)
		return err == nil && matched
	}

	// **/suffix patterns
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if strings.HasPrefix(suffix, "*.") {
			return strings.HasSuffix(base, strings.TrimPrefix(suffix, "*"))
		}
		for _, part := range strings.Split(relPath, string(filepath.Separator)) {
			if part == suffix {
				return true
			}
		}
		return false
	}

	// *middle* contains match
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") {
		middle := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")
		return strings.Contains(strings.ToLower(base), strings.ToLower(middle))
	}

	// *suffix
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(base, strings.TrimPrefix(pattern, "*"))
	}

	// prefix*
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(base, strings.TrimSuffix(pattern, "*"))
	}

	return base == pattern
}

// isGitignored checks the root .gitignore plus every nested one on the
// path from the root to the file.
func (s *Scanner) isGitignored(relPath, absRoot string) bool {
	if m := s.matcherFor(absRoot, ""); m != nil && m.Ignored(relPath, false) {
		return true
	}

	dir := filepath.Dir(relPath)
	if dir == "." {
		return false
	}

	scope := ""
	current := absRoot
	for _, part := range strings.Split(dir, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		if scope == "" {
			scope = part
		} else {
			scope = scope + "/" + part
		}
		if m := s.matcherFor(current, scope); m != nil && m.Ignored(relPath, false) {
			return true
		}
	}
	return false
}

// matcherFor returns the cached gitignore matcher for a directory, or
// nil when the directory has no .gitignore file.
func (s *Scanner) matcherFor(dir, scope string) *gitignore.Matcher {
	s.cacheMu.RLock()
	matcher, ok := s.gitignoreCache.Get(dir)
	s.cacheMu.RUnlock()
	if ok {
		return matcher
	}

	ignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(ignorePath); os.IsNotExist(err) {
		return nil
	}

	matcher = gitignore.New()
	if err := matcher.Load(ignorePath, scope); err != nil {
		return nil
	}

	s.cacheMu.Lock()
	s.gitignoreCache.Add(dir, matcher)
	s.cacheMu.Unlock()

	return matcher
}

// InvalidateGitignoreCache clears cached matchers. The watcher calls
// this when a .gitignore file changes.
func (s *Scanner) InvalidateGitignoreCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gitignoreCache.Purge()
}
