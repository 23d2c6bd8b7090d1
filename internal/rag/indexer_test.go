package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mwiater/coachrag/internal/storage"
)

func readTextFile(_ context.Context, path string) (Document, error) {
	doc := Document{Path: path, Name: filepath.Base(path)}
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, &ExtractionError{Path: path, Err: err}
	}
	doc.Text = string(data)
	return doc, nil
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, text := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestIndexer(t *testing.T, corpus string, embedder Embedder, extract ExtractFunc) *Indexer {
	t.Helper()
	splitter, err := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	if err != nil {
		t.Fatal(err)
	}
	ix := NewIndexer(IndexerConfig{
		CorpusPath:         corpus,
		AllowedExtensions:  []string{".txt", "md"},
		ExtractConcurrency: 2,
		EmbedConcurrency:   3,
		EmbedBatchSize:     1,
		Retries:            2,
	}, extract, splitter, embedder)
	ix.Status = func(string, ...any) {}
	ix.retryDelay = func(int) time.Duration { return 0 }
	return ix
}

func TestIndexerAvoidantScenario(t *testing.T) {
	corpus := writeCorpus(t, map[string]string{
		"a.txt": "Avoidant attachment employees need space and predictable check-ins before feedback.",
		"b.txt": "Quarterly budget planning requires spreadsheet discipline.",
	})
	ctx := context.Background()
	embedder := NewHashEmbedder(0)
	store := storage.NewDir(filepath.Join(t.TempDir(), "index"))

	idx := NewIndex(WithEmbeddingModel(embedder.Model()))
	report, err := newTestIndexer(t, corpus, embedder, readTextFile).Build(ctx, idx, store)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if report.Files != 2 || report.Documents != 2 || report.Embedded != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	loaded := NewIndex()
	if err := loaded.Load(ctx, store); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	retriever := NewRetriever(loaded, embedder, RetrieverConfig{})
	result, err := retriever.Retrieve(ctx, "How do I manage an avoidant employee?", 1)
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if len(result.Chunks) != 1 || result.Chunks[0].Entry.Doc != "a.txt" {
		t.Fatalf("expected a.txt first, got %+v", result.Chunks)
	}
	if !strings.Contains(result.Context, "[doc:a.txt#0]") {
		t.Fatalf("context missing source tag: %q", result.Context)
	}
}

func TestIndexerEmptyCorpus(t *testing.T) {
	ctx := context.Background()
	store := storage.NewDir(filepath.Join(t.TempDir(), "index"))
	idx := NewIndex()
	report, err := newTestIndexer(t, t.TempDir(), NewHashEmbedder(8), readTextFile).Build(ctx, idx, store)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if report.Files != 0 || idx.Len() != 0 {
		t.Fatalf("expected empty index, got report %+v len %d", report, idx.Len())
	}
	if _, err := idx.Search(make([]float32, 8), 1); !errors.Is(err, ErrEmptyIndex) {
		t.Fatalf("expected ErrEmptyIndex, got %v", err)
	}
	if err := NewIndex().Load(ctx, store); err != nil {
		t.Fatalf("empty index should be loadable: %v", err)
	}
}

func TestIndexerSkipsFailedAndEmptyDocuments(t *testing.T) {
	corpus := writeCorpus(t, map[string]string{
		"good.txt":    "Give feedback privately and early.",
		"broken.txt":  "unused",
		"scanned.txt": "   \n\n  ",
		"ignored.csv": "a,b,c",
	})
	extract := func(ctx context.Context, path string) (Document, error) {
		if filepath.Base(path) == "broken.txt" {
			return Document{Path: path}, &ExtractionError{Path: path, Err: errors.New("corrupt")}
		}
		return readTextFile(ctx, path)
	}
	idx := NewIndex()
	report, err := newTestIndexer(t, corpus, NewHashEmbedder(16), extract).Build(context.Background(), idx, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if report.Files != 3 {
		t.Fatalf("expected 3 discovered files, got %d", report.Files)
	}
	if len(report.Failed) != 1 || filepath.Base(report.Failed[0]) != "broken.txt" {
		t.Fatalf("expected broken.txt to fail, got %v", report.Failed)
	}
	if len(report.EmptyDocs) != 1 || filepath.Base(report.EmptyDocs[0]) != "scanned.txt" {
		t.Fatalf("expected scanned.txt to be empty, got %v", report.EmptyDocs)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", idx.Len())
	}
}

type flakyEmbedder struct {
	inner     Embedder
	failFirst int32
	retryable bool
	calls     atomic.Int32
}

func (f *flakyEmbedder) Model() string { return "flaky" }

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.calls.Add(1) <= f.failFirst {
		return nil, &ProviderError{Op: "embedding", Retryable: f.retryable, Err: errors.New("boom")}
	}
	return f.inner.Embed(ctx, texts)
}

func TestIndexerRetriesRetryableFailures(t *testing.T) {
	corpus := writeCorpus(t, map[string]string{"a.txt": "Praise effort in public."})
	embedder := &flakyEmbedder{inner: NewHashEmbedder(16), failFirst: 2, retryable: true}
	idx := NewIndex()
	report, err := newTestIndexer(t, corpus, embedder, readTextFile).Build(context.Background(), idx, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if report.Embedded != 1 || embedder.calls.Load() != 3 {
		t.Fatalf("expected success on third call, report %+v calls %d", report, embedder.calls.Load())
	}
}

func TestIndexerSkipsChunksOnFatalProviderError(t *testing.T) {
	corpus := writeCorpus(t, map[string]string{"a.txt": "One.", "b.txt": "Two."})
	embedder := &flakyEmbedder{inner: NewHashEmbedder(16), failFirst: 1, retryable: false}
	ix := newTestIndexer(t, corpus, embedder, readTextFile)
	ix.cfg.EmbedConcurrency = 1
	idx := NewIndex()
	report, err := ix.Build(context.Background(), idx, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if report.FailedChunks != 1 || report.Embedded != 1 || idx.Len() != 1 {
		t.Fatalf("expected one skipped chunk, report %+v len %d", report, idx.Len())
	}
}

type shiftingEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (s *shiftingEmbedder) Model() string { return "shifting" }

func (s *shiftingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	dim := 2 + s.calls%2
	s.mu.Unlock()
	out := make([][]float32, len(texts))
	for n := range out {
		out[n] = make([]float32, dim)
		out[n][0] = 1
	}
	return out, nil
}

func TestIndexerDimensionMismatchPersistsNothing(t *testing.T) {
	corpus := writeCorpus(t, map[string]string{"a.txt": "First.", "b.txt": "Second.", "c.txt": "Third."})
	ctx := context.Background()
	store := storage.NewDir(filepath.Join(t.TempDir(), "index"))

	idx := NewIndex()
	if err := idx.Build(sampleEntries()); err != nil {
		t.Fatal(err)
	}
	_, err := newTestIndexer(t, corpus, &shiftingEmbedder{}, readTextFile).Build(ctx, idx, store)
	var dimErr *DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
	if idx.Len() != 3 {
		t.Fatalf("previous index contents were replaced")
	}
	if _, err := store.ReadFile(ctx, ManifestFile); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected nothing persisted, got %v", err)
	}
}

func TestIndexerKeepsChunkOrder(t *testing.T) {
	var paragraphs []string
	for _, word := range []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel"} {
		paragraphs = append(paragraphs, strings.Repeat(word+" ", 12))
	}
	corpus := writeCorpus(t, map[string]string{"doc.txt": strings.Join(paragraphs, "\n\n")})
	splitter, err := NewSplitter(80, 0)
	if err != nil {
		t.Fatal(err)
	}
	ix := newTestIndexer(t, corpus, NewHashEmbedder(32), readTextFile)
	ix.splitter = splitter
	ix.cfg.EmbedConcurrency = 4

	entries, report, err := ix.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Chunks < 8 || len(entries) != report.Chunks {
		t.Fatalf("unexpected chunk counts: %+v entries=%d", report, len(entries))
	}
	want := NewHashEmbedder(32)
	for n, e := range entries {
		if n > 0 && e.Ordinal <= entries[n-1].Ordinal {
			t.Fatalf("entry %d has ordinal %d after %d", n, e.Ordinal, entries[n-1].Ordinal)
		}
		vec, _ := EmbedText(context.Background(), want, e.Text)
		for d := range vec {
			if vec[d] != e.Vector[d] {
				t.Fatalf("entry %d vector does not belong to its text", n)
			}
		}
	}
}

func TestDiscoverCorpusFiles(t *testing.T) {
	corpus := writeCorpus(t, map[string]string{
		"b.PDF":            "x",
		"a.md":             "x",
		"drafts/skip.md":   "x",
		"nested/keep.txt":  "x",
		"nested/~lock.txt": "x",
		"image.png":        "x",
	})
	files, err := discoverCorpusFiles(corpus, []string{".pdf", "md", ".TXT"}, []string{"**/drafts/**", "~*"})
	if err != nil {
		t.Fatalf("discover error: %v", err)
	}
	var names []string
	for _, f := range files {
		rel, _ := filepath.Rel(corpus, f)
		names = append(names, filepath.ToSlash(rel))
	}
	got := strings.Join(names, ",")
	if got != "a.md,b.PDF,nested/keep.txt" {
		t.Fatalf("unexpected files: %s", got)
	}
}

func TestIndexerNamesDocumentsByRelativePath(t *testing.T) {
	corpus := writeCorpus(t, map[string]string{
		"teamA/guide.txt": "Team A holds weekly one-on-ones.",
		"teamB/guide.txt": "Team B prefers written status updates.",
	})
	entries, _, err := newTestIndexer(t, corpus, NewHashEmbedder(16), readTextFile).Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Doc != "teamA/guide.txt" || entries[1].Doc != "teamB/guide.txt" {
		t.Fatalf("unexpected docs: %q %q", entries[0].Doc, entries[1].Doc)
	}
	if entries[0].ChunkID == entries[1].ChunkID {
		t.Fatalf("chunk ids collide: %q", entries[0].ChunkID)
	}
	if entries[0].ChunkID != "teamA/guide.txt:0" {
		t.Fatalf("unexpected chunk id %q", entries[0].ChunkID)
	}
}

func TestShouldExclude(t *testing.T) {
	tests := []struct {
		path    string
		rel     string
		pattern string
		want    bool
	}{
		{"corpus/mydrafts.pdf", "mydrafts.pdf", "**/drafts/**", false},
		{"corpus/drafts/x.pdf", "drafts/x.pdf", "**/drafts/**", true},
		{"corpus/team/archive/x.tmp.pdf", "team/archive/x.tmp.pdf", "**/*.tmp.pdf", true},
		{"corpus/a/b/x.tmp.pdf", "a/b/x.tmp.pdf", "corpus/**/*.tmp.pdf", true},
		{"corpus/a/b/x.pdf", "a/b/x.pdf", "corpus/**/*.tmp.pdf", false},
		{"corpus/nested/~lock.txt", "nested/~lock.txt", "~*", true},
		{"corpus/nested/keep.txt", "nested/keep.txt", "~*", false},
		{"corpus/keep.txt", "keep.txt", "  ", false},
	}
	for _, tt := range tests {
		if got := shouldExclude(tt.path, tt.rel, []string{tt.pattern}); got != tt.want {
			t.Errorf("shouldExclude(%q, %q) = %t, want %t", tt.path, tt.pattern, got, tt.want)
		}
	}
}

func TestRetryDelayCapped(t *testing.T) {
	if retryDelay(0) != 200*time.Millisecond || retryDelay(1) != 400*time.Millisecond {
		t.Fatalf("unexpected backoff start")
	}
	if retryDelay(50) != 5*time.Second {
		t.Fatalf("expected cap at 5s, got %s", retryDelay(50))
	}
}
