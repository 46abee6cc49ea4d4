//go:build ignore

// Generates a synthetic multi-language repository for indexing benchmarks.
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numFiles  = flag.Int("files", 1000, "number of files to generate")
	outputDir = flag.String("output", "testdata/bench", "output directory")
	seed      = flag.Int64("seed", 42, "random seed")
)

const goTemplate = `package %s

import (
	"context"
	"errors"
	"sync"
)

// %[2]s coordinates %[3]s for the service.
type %[2]s struct {
	mu      sync.Mutex
	entries map[string]string
}

func New%[2]s() *%[2]s {
	return &%[2]s{entries: make(map[string]string)}
}

// %[4]s applies the operation to the given key.
func (c *%[2]s) %[4]s(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("empty key")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return ctx.Err()
}

// Lookup returns the stored value for key.
func (c *%[2]s) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}
`

const tsTemplate = `export interface %[1]sRecord {
  id: string;
  label: string;
  updatedAt: number;
}

/** In-memory registry backing the %[2]s view. */
export class %[1]sRegistry {
  private records = new Map<string, %[1]sRecord>();

  put(record: %[1]sRecord): void {
    this.records.set(record.id, record);
  }

  get(id: string): %[1]sRecord | undefined {
    return this.records.get(id);
  }

  list(): %[1]sRecord[] {
    return [...this.records.values()].sort((a, b) => b.updatedAt - a.updatedAt);
  }
}

export function make%[1]s(id: string, label: string): %[1]sRecord {
  return { id, label, updatedAt: Date.now() };
}
`

const pyTemplate = `"""%[1]s helpers for %[2]s."""
from dataclasses import dataclass, field
from typing import Dict, Optional


@dataclass
class %[1]sEntry:
    key: str
    value: str
    tags: Dict[str, str] = field(default_factory=dict)


class %[1]sTable:
    """Keyed table of %[2]s entries."""

    def __init__(self) -> None:
        self._entries: Dict[str, %[1]sEntry] = {}

    def put(self, entry: %[1]sEntry) -> None:
        self._entries[entry.key] = entry

    def get(self, key: str) -> Optional[%[1]sEntry]:
        return self._entries.get(key)

    def size(self) -> int:
        return len(self._entries)
`

const mdTemplate = `# %[1]s

%[1]s handles %[2]s for the service.

## Usage

` + "```go" + `
c := New%[1]s()
if err := c.Apply(ctx, "key", "value"); err != nil {
    return err
}
` + "```" + `

## Notes

- Entries are kept in memory and rebuilt on restart.
- Keys are case-sensitive.
`

var (
	nouns = []string{
		"Handler", "Registry", "Service", "Resolver", "Planner",
		"Catalog", "Ledger", "Router", "Scheduler", "Broker",
		"Cache", "Store", "Queue", "Pool", "Tracker",
	}
	verbs = []string{
		"Apply", "Resolve", "Commit", "Publish", "Drain",
		"Refresh", "Merge", "Evict", "Replay", "Flush",
	}
	domains = []string{
		"session routing", "quota accounting", "change tracking",
		"schema migration", "event replay", "cache eviction",
		"request batching", "result ranking", "workspace sync",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, dir := range []string{"go", "ts", "py", "docs"} {
		if err := os.MkdirAll(filepath.Join(*outputDir, dir), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
			os.Exit(1)
		}
	}

	// Roughly the language mix of a service repo: half Go, the rest split
	// between frontend, tooling and docs.
	goFiles := *numFiles * 50 / 100
	tsFiles := *numFiles * 25 / 100
	pyFiles := *numFiles * 15 / 100
	mdFiles := *numFiles - goFiles - tsFiles - pyFiles

	write := func(rel, content string) {
		path := filepath.Join(*outputDir, rel)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", rel, err)
			os.Exit(1)
		}
	}

	for i := 0; i < goFiles; i++ {
		noun := nouns[rng.Intn(len(nouns))]
		verb := verbs[rng.Intn(len(verbs))]
		domain := domains[rng.Intn(len(domains))]
		pkg := fmt.Sprintf("pkg%d", i)
		write(filepath.Join("go", fmt.Sprintf("%s_%d.go", noun, i)),
			fmt.Sprintf(goTemplate, pkg, noun, domain, verb))
	}
	for i := 0; i < tsFiles; i++ {
		noun := nouns[rng.Intn(len(nouns))]
		domain := domains[rng.Intn(len(domains))]
		write(filepath.Join("ts", fmt.Sprintf("%s_%d.ts", noun, i)),
			fmt.Sprintf(tsTemplate, noun, domain))
	}
	for i := 0; i < pyFiles; i++ {
		noun := nouns[rng.Intn(len(nouns))]
		domain := domains[rng.Intn(len(domains))]
		write(filepath.Join("py", fmt.Sprintf("%s_%d.py", noun, i)),
			fmt.Sprintf(pyTemplate, noun, domain))
	}
	for i := 0; i < mdFiles; i++ {
		noun := nouns[rng.Intn(len(nouns))]
		domain := domains[rng.Intn(len(domains))]
		write(filepath.Join("docs", fmt.Sprintf("%s_%d.md", noun, i)),
			fmt.Sprintf(mdTemplate, noun, domain))
	}

	fmt.Printf("wrote %d files to %s\n", *numFiles, *outputDir)
}
