package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/repovec/repovec/internal/chunk"
	"github.com/repovec/repovec/internal/embed"
	"github.com/repovec/repovec/internal/ledger"
	"github.com/repovec/repovec/internal/scanner"
	"github.com/repovec/repovec/internal/store"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// fakeClock is a settable time source shared by a test and its engine.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// upsertCall records one Upsert as seen by the hook store.
type upsertCall struct {
	path   string
	points int
}

// hookStore wraps the in-memory vector store with call recording and
// optional per-operation hooks for failure injection.
type hookStore struct {
	inner store.VectorStore

	mu           sync.Mutex
	upserts      []upsertCall
	deletes      []string
	countCalls   int
	onUpsert     func(points []store.Point) error
	onDelete     func(path string) error
	onPointCount func(call int) (int, error)
}

var _ store.VectorStore = (*hookStore)(nil)

func newHookStore(t *testing.T, dims int) *hookStore {
	t.Helper()
	return &hookStore{inner: store.NewMemoryStore(dims)}
}

// replaceInner swaps in a fresh empty store, simulating a remote
// service that lost its collection.
func (h *hookStore) replaceInner(t *testing.T, dims int) {
	t.Helper()
	h.mu.Lock()
	h.inner = store.NewMemoryStore(dims)
	h.mu.Unlock()
}

func (h *hookStore) store() store.VectorStore {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inner
}

func (h *hookStore) Upsert(ctx context.Context, points []store.Point) error {
	h.mu.Lock()
	hook := h.onUpsert
	h.mu.Unlock()
	if hook != nil {
		if err := hook(points); err != nil {
			return err
		}
	}
	if err := h.store().Upsert(ctx, points); err != nil {
		return err
	}
	h.mu.Lock()
	h.upserts = append(h.upserts, upsertCall{path: points[0].Payload.Path, points: len(points)})
	h.mu.Unlock()
	return nil
}

func (h *hookStore) DeleteByPath(ctx context.Context, path string) error {
	h.mu.Lock()
	hook := h.onDelete
	h.mu.Unlock()
	if hook != nil {
		if err := hook(path); err != nil {
			return err
		}
	}
	if err := h.store().DeleteByPath(ctx, path); err != nil {
		return err
	}
	h.mu.Lock()
	h.deletes = append(h.deletes, path)
	h.mu.Unlock()
	return nil
}

func (h *hookStore) PointCount(ctx context.Context) (int, error) {
	h.mu.Lock()
	h.countCalls++
	call := h.countCalls
	hook := h.onPointCount
	h.mu.Unlock()
	if hook != nil {
		return hook(call)
	}
	return h.store().PointCount(ctx)
}

func (h *hookStore) ListIndexedPaths(ctx context.Context) (map[string]struct{}, error) {
	return h.store().ListIndexedPaths(ctx)
}

func (h *hookStore) Search(ctx context.Context, vector []float32, limit int) ([]store.SearchHit, error) {
	return h.store().Search(ctx, vector, limit)
}

func (h *hookStore) Close() error {
	return h.store().Close()
}

// upsertedPaths returns the distinct paths upserted so far, in first
// upsert order.
func (h *hookStore) upsertedPaths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{}, len(h.upserts))
	var paths []string
	for _, c := range h.upserts {
		if _, ok := seen[c.path]; ok {
			continue
		}
		seen[c.path] = struct{}{}
		paths = append(paths, c.path)
	}
	return paths
}

func (h *hookStore) upsertCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.upserts)
}

func (h *hookStore) pointCountCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.countCalls
}

func (h *hookStore) resetCalls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.upserts = nil
	h.deletes = nil
}

// hookEmbedder wraps the deterministic static embedder with an optional
// post-processing hook, letting tests fail whole batches or null out
// individual vectors.
type hookEmbedder struct {
	embed.Embedder

	mu      sync.Mutex
	onBatch func(texts []string, vectors [][]float32) ([][]float32, error)
}

func newHookEmbedder() *hookEmbedder {
	return &hookEmbedder{Embedder: embed.NewStaticEmbedder()}
}

func (h *hookEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := h.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	hook := h.onBatch
	h.mu.Unlock()
	if hook != nil {
		return hook(texts, vectors)
	}
	return vectors, nil
}

// runRecorder captures completed run reports in order.
type runRecorder struct {
	mu      sync.Mutex
	reports []*RunReport
}

func (r *runRecorder) RecordRun(_ context.Context, report *RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *report
	r.reports = append(r.reports, &copied)
	return nil
}

func (r *runRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// testEngine bundles an engine with its collaborators and the temp
// directories they share, so a test can restart the engine against the
// same project and state.
type testEngine struct {
	*Engine

	root    string
	dataDir string
	clock   *fakeClock
	vectors *hookStore
	embed   *hookEmbedder
	chunker *chunk.Chunker
	keyword *store.KeywordIndex
	state   *ledger.FileStore
	runs    *runRecorder
}

type engineOption func(*Config)

func withLimit(n int) engineOption {
	return func(c *Config) { c.DailyUnitLimit = n }
}

func withEstimate(n int) engineOption {
	return func(c *Config) { c.EstimatedChunksPerFile = n }
}

func withCheckpoint(n int) engineOption {
	return func(c *Config) { c.CheckpointInterval = n }
}

// newTestEngine wires an engine over real collaborators: a real
// scanner and chunker against a temp project root, the static embedder,
// an in-memory vector store and a file-backed ledger. Pass the root
// and data dir of an earlier instance to simulate a restart, or empty
// strings for a fresh project.
func newTestEngine(t *testing.T, root, dataDir string, opts ...engineOption) *testEngine {
	t.Helper()

	if root == "" {
		root = t.TempDir()
	}
	if dataDir == "" {
		dataDir = t.TempDir()
	}

	sc, err := scanner.New()
	require.NoError(t, err)

	clock := newFakeClock()
	vectors := newHookStore(t, embed.StaticDimensions)
	embedder := newHookEmbedder()
	chunker := chunk.NewChunker()
	runs := &runRecorder{}

	keyword, err := store.NewKeywordIndex("")
	require.NoError(t, err)

	cfg := Config{
		RootDir: root,
		DataDir: dataDir,
		Scanner: sc,
		ScanOptions: &scanner.Options{
			RootDir:    root,
			Extensions: []string{".go"},
			Workers:    1,
		},
		Chunker:   chunker,
		Embedder:  embedder,
		Vectors:   vectors,
		Keyword:   keyword,
		State:     ledger.NewFileStore(dataDir),
		Telemetry: runs,
		Now:       clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	eng, err := New(cfg)
	require.NoError(t, err)

	te := &testEngine{
		Engine:  eng,
		root:    root,
		dataDir: dataDir,
		clock:   clock,
		vectors: vectors,
		embed:   embedder,
		chunker: chunker,
		keyword: keyword,
		state:   ledger.NewFileStore(dataDir),
		runs:    runs,
	}
	t.Cleanup(func() {
		_ = eng.Close()
		_ = vectors.Close()
		_ = keyword.Close()
		chunker.Close()
	})
	return te
}

// restart closes the engine and opens a new one over the same project,
// state files, vector store, keyword sidecar and clock, as a process
// restart would see them.
func (te *testEngine) restart(t *testing.T, opts ...engineOption) *testEngine {
	t.Helper()
	require.NoError(t, te.Close())

	sc, err := scanner.New()
	require.NoError(t, err)

	cfg := Config{
		RootDir: te.root,
		DataDir: te.dataDir,
		Scanner: sc,
		ScanOptions: &scanner.Options{
			RootDir:    te.root,
			Extensions: []string{".go"},
			Workers:    1,
		},
		Chunker:   te.chunker,
		Embedder:  te.embed,
		Vectors:   te.vectors,
		Keyword:   te.keyword,
		State:     ledger.NewFileStore(te.dataDir),
		Telemetry: te.runs,
		Now:       te.clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	eng, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	next := *te
	next.Engine = eng
	return &next
}

// run triggers one scan-and-index pass and requires it to succeed.
func (te *testEngine) run(t *testing.T) *RunReport {
	t.Helper()
	report, err := te.TriggerScanAndIndex(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

// persistedLedger loads the ledger back from disk.
func (te *testEngine) persistedLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	led, err := te.state.LoadLedger()
	require.NoError(t, err)
	return led
}

// goSource renders a file with n top-level functions, which the chunker
// turns into exactly n chunks. The salt varies the content so edits
// produce a different hash.
func goSource(n int, salt string) string {
	var b strings.Builder
	b.WriteString("package sample\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "\nfunc F%d() int {\n\treturn len(%q) + %d\n}\n", i, salt, i)
	}
	return b.String()
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func removeFile(t *testing.T, root, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(rel))))
}
