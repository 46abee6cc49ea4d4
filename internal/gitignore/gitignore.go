// Package gitignore implements gitignore pattern matching per
// https://git-scm.com/docs/gitignore, including negation, directory-only
// and rooted patterns, and nested ignore files.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher evaluates paths against an ordered list of gitignore rules.
// Later rules override earlier ones, so negations behave as git does.
// Safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	raw     string
	re      *regexp.Regexp
	negate  bool   // pattern started with !
	dirOnly bool   // pattern ended with /
	rooted  bool   // pattern anchored to its scope root
	scope   string // directory of the ignore file, "" for root
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// Add registers a single pattern scoped to the repository root.
func (m *Matcher) Add(pattern string) {
	m.AddUnder(pattern, "")
}

// AddUnder registers a pattern that applies only below dir. Nested
// .gitignore files keep their patterns local this way.
func (m *Matcher) AddUnder(pattern, dir string) {
	r, ok := compile(pattern, dir)
	if !ok {
		return
	}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// Load reads an ignore file and registers its patterns under dir.
func (m *Matcher) Load(path, dir string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddUnder(sc.Text(), dir)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file: %w", err)
	}
	return nil
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Ignored reports whether path matches the accumulated rules. The path
// must be slash-separated and relative to the repository root.
func (m *Matcher) Ignored(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if r.matches(path, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// compile parses one pattern line into a rule. Blank lines and comments
// yield ok=false.
func compile(pattern, scope string) (rule, bool) {
	// A trailing "\ " keeps its space through trimming.
	keepSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)

	if pattern == "" {
		return rule{}, false
	}
	if strings.HasPrefix(pattern, "#") && !strings.HasPrefix(pattern, `\#`) {
		return rule{}, false
	}

	r := rule{raw: pattern, scope: scope}

	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
		r.raw = pattern
	case strings.HasPrefix(pattern, "!"):
		r.negate = true
		pattern = pattern[1:]
	}

	if keepSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.rooted = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// A slash in the middle also anchors the pattern: "doc/frotz" means
	// /doc/frotz, not **/doc/frotz.
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "*") {
		r.rooted = true
	}

	r.re = regexp.MustCompile("^" + toRegex(pattern) + "$")
	return r, true
}

func (r rule) matches(path string, isDir bool) bool {
	if r.scope != "" {
		if path == r.scope {
			path = filepath.Base(path)
		} else if strings.HasPrefix(path, r.scope+"/") {
			path = strings.TrimPrefix(path, r.scope+"/")
		} else {
			return false
		}
	}

	parts := strings.Split(path, "/")
	name := parts[len(parts)-1]

	if r.rooted {
		if r.re.MatchString(path) {
			if r.dirOnly {
				return isDir
			}
			return true
		}
		// A dir-only rooted pattern still covers everything inside the
		// matched directory.
		if r.dirOnly {
			for i := range parts[:len(parts)-1] {
				if r.re.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		for i, part := range parts {
			if r.re.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if r.re.MatchString(name) || r.re.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if r.re.MatchString(part) {
			return true
		}
	}
	return false
}

// toRegex translates gitignore glob syntax into a regular expression.
func toRegex(pattern string) string {
	var b strings.Builder

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				b.WriteString("(?:.*/)?")
				i += 3
				continue
			}
			if strings.HasPrefix(pattern[i:], "**") && (i == 0 || pattern[i-1] == '/') {
				b.WriteString(".*")
				i += 2
				continue
			}
			b.WriteString("[^/]*")
			i++
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				b.WriteString(pattern[i : j+1])
				i = j + 1
			} else {
				b.WriteString(regexp.QuoteMeta("["))
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				b.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				b.WriteString(regexp.QuoteMeta(`\`))
				i++
			}
		case '.', '+', '^', '$', '(', ')', '{', '}', '|':
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
