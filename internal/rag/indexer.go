package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mwiater/coachrag/internal/logging"
	"github.com/mwiater/coachrag/internal/storage"
)

// ExtractFunc reads one corpus file. On failure it returns a Document with
// empty Text and an error, usually an *ExtractionError.
type ExtractFunc func(ctx context.Context, path string) (Document, error)

// IndexerConfig controls corpus discovery and the embedding worker pool.
type IndexerConfig struct {
	CorpusPath        string
	AllowedExtensions []string
	ExcludeGlobs      []string

	ExtractConcurrency int
	EmbedConcurrency   int
	EmbedBatchSize     int
	// RequestsPerSecond throttles embedding calls across all workers. Zero disables throttling.
	RequestsPerSecond float64
	Retries           int
	RequestTimeout    time.Duration
}

// Indexer turns a corpus directory into index entries.
type Indexer struct {
	cfg      IndexerConfig
	extract  ExtractFunc
	splitter *Splitter
	embedder Embedder
	limiter  *rate.Limiter

	// Status receives progress lines. Defaults to logging.LogEvent.
	Status func(format string, args ...any)
	// retryDelay is replaced in tests.
	retryDelay func(attempt int) time.Duration
}

// BuildReport summarises one ingestion run.
type BuildReport struct {
	Files        int
	Documents    int
	Failed       []string
	EmptyDocs    []string
	Chunks       int
	Embedded     int
	FailedChunks int
	Duration     time.Duration
}

// NewIndexer wires an Indexer. Zero concurrency and batch settings default to 1.
func NewIndexer(cfg IndexerConfig, extract ExtractFunc, splitter *Splitter, embedder Embedder) *Indexer {
	if cfg.ExtractConcurrency <= 0 {
		cfg.ExtractConcurrency = 1
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 1
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Indexer{
		cfg:        cfg,
		extract:    extract,
		splitter:   splitter,
		embedder:   embedder,
		limiter:    rate.NewLimiter(limit, cfg.EmbedConcurrency),
		Status:     logging.LogEvent,
		retryDelay: retryDelay,
	}
}

// Build runs ingestion, replaces the contents of idx and, when store is not
// nil, persists it. An empty corpus produces a valid empty index. A dimension
// mismatch aborts the run before anything is built or saved.
func (ix *Indexer) Build(ctx context.Context, idx *Index, store storage.Store) (BuildReport, error) {
	entries, report, err := ix.Run(ctx)
	if err != nil {
		return report, err
	}
	if err := idx.Build(entries); err != nil {
		return report, fmt.Errorf("build index: %w", err)
	}
	if store != nil {
		if err := idx.Save(ctx, store); err != nil {
			return report, err
		}
		ix.status("[RAG] Saved %d entries to %s", idx.Len(), store)
	}
	return report, nil
}

// Run discovers, extracts, chunks and embeds the corpus, returning entries in
// document then chunk order.
func (ix *Indexer) Run(ctx context.Context) ([]IndexEntry, BuildReport, error) {
	start := time.Now()
	var report BuildReport
	defer func() { report.Duration = time.Since(start) }()

	ix.status("[RAG] Indexing corpus: %s", ix.cfg.CorpusPath)
	ix.status("[RAG] Embedding model: %s", ix.embedder.Model())
	ix.status("[RAG] Chunk size: %d, overlap: %d", ix.splitter.Size(), ix.splitter.Overlap())

	files, err := discoverCorpusFiles(ix.cfg.CorpusPath, ix.cfg.AllowedExtensions, ix.cfg.ExcludeGlobs)
	if err != nil {
		return nil, report, fmt.Errorf("discover corpus: %w", err)
	}
	report.Files = len(files)
	if len(files) == 0 {
		ix.status("[RAG] No corpus files found under %s; building an empty index", ix.cfg.CorpusPath)
		return []IndexEntry{}, report, nil
	}
	ix.status("[RAG] Discovered %d corpus files", len(files))

	docs, err := ix.extractAll(ctx, files)
	if err != nil {
		return nil, report, err
	}

	var chunks []Chunk
	for _, doc := range docs {
		switch {
		case doc.err != nil:
			report.Failed = append(report.Failed, doc.Path)
			ix.status("[RAG] Skipping %s: %v", doc.Path, doc.err)
			continue
		case strings.TrimSpace(doc.Text) == "":
			report.EmptyDocs = append(report.EmptyDocs, doc.Path)
			ix.status("[RAG] Warning: %s has no extractable text", doc.Path)
			continue
		}
		report.Documents++
		docChunks := ix.splitter.ChunkDocument(doc.Document)
		kept := 0
		for _, c := range docChunks {
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			chunks = append(chunks, c)
			kept++
		}
		ix.status("[RAG] Chunked %s into %d chunks", doc.Name, kept)
	}
	report.Chunks = len(chunks)

	vectors, err := ix.embedAll(ctx, chunks)
	if err != nil {
		return nil, report, err
	}

	entries := make([]IndexEntry, 0, len(chunks))
	for n, c := range chunks {
		if vectors[n] == nil {
			report.FailedChunks++
			continue
		}
		entries = append(entries, IndexEntry{
			ChunkID:    fmt.Sprintf("%s:%d", c.Doc, c.Ordinal),
			Doc:        c.Doc,
			Ordinal:    c.Ordinal,
			Offset:     c.Start,
			Overlap:    c.Overlap,
			Text:       c.Text,
			TokenCount: estimateTokens(c.Text),
			Vector:     vectors[n],
		})
	}
	report.Embedded = len(entries)
	ix.status("[RAG] Embedded %d/%d chunks in %s", report.Embedded, report.Chunks, time.Since(start).Truncate(time.Millisecond))
	return entries, report, nil
}

type extracted struct {
	Document
	err error
}

func (ix *Indexer) extractAll(ctx context.Context, files []string) ([]extracted, error) {
	docs := make([]extracted, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.ExtractConcurrency)
	for n, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := ix.extract(gctx, path)
			doc.Name = corpusRelative(ix.cfg.CorpusPath, path)
			if doc.Path == "" {
				doc.Path = path
			}
			docs[n] = extracted{Document: doc, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

type embedJob struct {
	start int
	texts []string
}

// embedAll embeds chunks in batches on a worker pool. The returned slice is
// aligned with chunks; a nil vector marks a chunk whose batch failed.
func (ix *Indexer) embedAll(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	if len(chunks) == 0 {
		return vectors, nil
	}

	jobs := make(chan embedJob)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for start := 0; start < len(chunks); start += ix.cfg.EmbedBatchSize {
			end := min(start+ix.cfg.EmbedBatchSize, len(chunks))
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			select {
			case jobs <- embedJob{start: start, texts: texts}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < ix.cfg.EmbedConcurrency; w++ {
		g.Go(func() error {
			for job := range jobs {
				batch, err := ix.embedWithRetry(gctx, job.texts)
				if err != nil {
					var dimErr *DimensionMismatchError
					if errors.As(err, &dimErr) || gctx.Err() != nil {
						return err
					}
					ix.status("[RAG] Skipping %d chunks starting at %s: %v", len(job.texts), chunks[job.start].Doc, err)
					continue
				}
				copy(vectors[job.start:], batch)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embed corpus: %w", err)
	}
	if err := checkDimensions(vectors); err != nil {
		return nil, fmt.Errorf("embed corpus: %w", err)
	}
	return vectors, nil
}

func (ix *Indexer) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= ix.cfg.Retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(ix.retryDelay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		if err := ix.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if ix.cfg.RequestTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, ix.cfg.RequestTimeout)
		}
		vectors, err := ix.embedder.Embed(callCtx, texts)
		cancel()
		if err == nil && len(vectors) != len(texts) {
			err = &ProviderError{Op: "embedding", Retryable: true, Err: fmt.Errorf("expected %d vectors, got %d", len(texts), len(vectors))}
		}
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		var dimErr *DimensionMismatchError
		if errors.As(err, &dimErr) || !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// checkDimensions verifies that every embedded vector has the same non-zero length.
func checkDimensions(vectors [][]float32) error {
	want := 0
	for n, v := range vectors {
		if v == nil {
			continue
		}
		if want == 0 {
			want = len(v)
		}
		if len(v) == 0 || len(v) != want {
			return &DimensionMismatchError{Want: want, Got: len(v), Index: n}
		}
	}
	return nil
}

// retryDelay is exponential backoff from 200ms capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 8 {
		attempt = 8
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func (ix *Indexer) status(format string, args ...any) {
	if ix.Status != nil {
		ix.Status(format, args...)
	}
}

// discoverCorpusFiles walks root and returns matching files in lexical order.
func discoverCorpusFiles(root string, allowed []string, exclude []string) ([]string, error) {
	var files []string
	allowedMap := make(map[string]struct{}, len(allowed))
	for _, ext := range allowed {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowedMap[ext] = struct{}{}
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := corpusRelative(root, path)
		if d.IsDir() {
			if path != root && shouldExclude(path, rel, exclude) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldExclude(path, rel, exclude) {
			return nil
		}
		if len(allowedMap) > 0 {
			if _, ok := allowedMap[strings.ToLower(filepath.Ext(path))]; !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// corpusRelative names a corpus file by its slash-separated path under root,
// so same-named files in different folders stay distinct.
func corpusRelative(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// shouldExclude matches doublestar patterns against the corpus-relative path
// and the full path. Patterns without a slash also match the base name.
func shouldExclude(path, rel string, patterns []string) bool {
	full := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, full); ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
		}
	}
	return false
}
