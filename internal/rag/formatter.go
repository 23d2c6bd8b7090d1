package rag

import (
	"fmt"
	"strings"
)

// FormatContext builds the CONTEXT block and returns context text, token count, and source coverage.
// A positive maxTokens caps the block; later chunks are truncated or dropped to fit.
func FormatContext(chunks []RetrievedChunk, maxTokens int) (string, int, int) {
	if len(chunks) == 0 {
		return "", 0, 0
	}
	if maxTokens < 0 {
		maxTokens = 0
	}

	var b strings.Builder
	b.WriteString("CONTEXT\n")

	contextTokens := 0
	remaining := maxTokens
	sourceSet := make(map[string]struct{})

	for _, chunk := range chunks {
		text := strings.TrimSpace(chunk.Entry.Text)
		if text == "" {
			continue
		}
		if maxTokens > 0 {
			if remaining <= 0 {
				break
			}
			if estimateTokens(text) > remaining {
				text = truncateToTokens(text, remaining)
			}
		}

		usedTokens := estimateTokens(text)
		if usedTokens == 0 {
			continue
		}

		fmt.Fprintf(&b, "[doc:%s#%d] %s\n", chunk.Entry.Doc, chunk.Entry.Ordinal, text)
		contextTokens += usedTokens
		remaining -= usedTokens
		sourceSet[chunk.Entry.Doc] = struct{}{}
	}
	if contextTokens == 0 {
		return "", 0, 0
	}

	return strings.TrimRight(b.String(), "\n"), contextTokens, len(sourceSet)
}

func truncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	parts := strings.Fields(text)
	if len(parts) <= maxTokens {
		return text
	}
	return strings.Join(parts[:maxTokens], " ")
}

// Sources converts retrieved chunks into caller-facing source records.
func Sources(chunks []RetrievedChunk) []Source {
	out := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Source{
			Doc:     c.Entry.Doc,
			ChunkID: c.Entry.ChunkID,
			Ordinal: c.Entry.Ordinal,
			Score:   c.Score,
			Text:    c.Entry.Text,
		})
	}
	return out
}
