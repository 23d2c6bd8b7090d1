package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyQuery is returned when a query has no non-space characters.
var ErrEmptyQuery = errors.New("query is empty")

// RetrievalResult includes context text and telemetry.
type RetrievalResult struct {
	Query          string
	Context        string
	Chunks         []RetrievedChunk
	RetrievalMs    int
	ContextTokens  int
	SourceCoverage int
}

// Retriever embeds queries and searches an Index.
type Retriever struct {
	index             *Index
	embedder          Embedder
	topK              int
	contextTokenLimit int
	requestTimeout    time.Duration
}

// RetrieverConfig tunes a Retriever. Zero values select defaults.
type RetrieverConfig struct {
	TopK              int
	ContextTokenLimit int
	RequestTimeout    time.Duration
}

// NewRetriever returns a Retriever over index.
func NewRetriever(index *Index, embedder Embedder, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Retriever{
		index:             index,
		embedder:          embedder,
		topK:              cfg.TopK,
		contextTokenLimit: cfg.ContextTokenLimit,
		requestTimeout:    cfg.RequestTimeout,
	}
}

// Retrieve embeds the query and returns the top-k chunks with their context
// block. k <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (RetrievalResult, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return RetrievalResult{}, ErrEmptyQuery
	}
	if r.index.Len() == 0 {
		return RetrievalResult{}, ErrEmptyIndex
	}
	if k <= 0 {
		k = r.topK
	}

	embedCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.requestTimeout > 0 {
		embedCtx, cancel = context.WithTimeout(ctx, r.requestTimeout)
	}
	queryVec, err := EmbedText(embedCtx, r.embedder, query)
	cancel()
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			return RetrievalResult{}, err
		}
		return RetrievalResult{}, &ProviderError{Op: "embedding", Retryable: true, Err: err}
	}

	chunks, err := r.index.Search(queryVec, k)
	if err != nil {
		return RetrievalResult{}, err
	}
	contextText, contextTokens, sourceCoverage := FormatContext(chunks, r.contextTokenLimit)

	return RetrievalResult{
		Query:          query,
		Context:        contextText,
		Chunks:         chunks,
		RetrievalMs:    int(time.Since(start) / time.Millisecond),
		ContextTokens:  contextTokens,
		SourceCoverage: sourceCoverage,
	}, nil
}

// Index returns the index searched by r.
func (r *Retriever) Index() *Index { return r.index }

// String summarises the retriever settings for status output.
func (r *Retriever) String() string {
	return fmt.Sprintf("topK=%d contextTokenLimit=%d model=%s", r.topK, r.contextTokenLimit, r.embedder.Model())
}
