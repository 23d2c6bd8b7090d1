package rag

import (
	"fmt"
	"io"
)

// WritePreview prints a retrieval result the way `rag preview` shows it.
func WritePreview(w io.Writer, result RetrievalResult) {
	fmt.Fprintf(w, "[RAG] Preview query: %s\n", result.Query)
	fmt.Fprintf(w, "[RAG] retrieval_ms: %d\n", result.RetrievalMs)
	fmt.Fprintf(w, "[RAG] context_tokens: %d\n", result.ContextTokens)
	fmt.Fprintf(w, "[RAG] source_coverage: %d\n", result.SourceCoverage)
	fmt.Fprintf(w, "[RAG] chunks: %d\n", len(result.Chunks))

	for i, chunk := range result.Chunks {
		fmt.Fprintf(w, "[RAG] chunk %d score=%.6f doc=%s ordinal=%d offset=%d tokens=%d\n",
			i+1, chunk.Score, chunk.Entry.Doc, chunk.Entry.Ordinal, chunk.Entry.Offset, chunk.Entry.TokenCount)
		fmt.Fprintf(w, "[RAG] chunk %d text: %s\n", i+1, chunk.Entry.Text)
	}

	if result.Context != "" {
		fmt.Fprintf(w, "[RAG] context:\n%s\n", result.Context)
	}
}
