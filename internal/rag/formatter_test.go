package rag

import (
	"strings"
	"testing"
)

func TestFormatContextRespectsTokenLimit(t *testing.T) {
	chunks := []RetrievedChunk{
		{Entry: IndexEntry{Doc: "a.md", Text: "one two three four"}},
		{Entry: IndexEntry{Doc: "b.md", Ordinal: 2, Text: "five six seven"}},
	}

	context, tokens, sources := FormatContext(chunks, 5)
	if tokens != 5 {
		t.Fatalf("expected 5 tokens, got %d", tokens)
	}
	if sources != 2 {
		t.Fatalf("expected 2 sources, got %d", sources)
	}
	if !strings.HasPrefix(context, "CONTEXT\n[doc:a.md#0] one two three four") {
		t.Fatalf("unexpected context header: %q", context)
	}
	if !strings.HasSuffix(context, "[doc:b.md#2] five") {
		t.Fatalf("expected truncated second chunk, got %q", context)
	}
}

func TestFormatContextNoLimit(t *testing.T) {
	chunks := []RetrievedChunk{
		{Entry: IndexEntry{Doc: "a.md", Text: "  keep calm  "}},
		{Entry: IndexEntry{Doc: "a.md", Ordinal: 1, Text: "   "}},
	}
	context, tokens, sources := FormatContext(chunks, 0)
	if context != "CONTEXT\n[doc:a.md#0] keep calm" || tokens != 2 || sources != 1 {
		t.Fatalf("unexpected result %q %d %d", context, tokens, sources)
	}
}

func TestFormatContextNoChunks(t *testing.T) {
	context, tokens, sources := FormatContext(nil, 10)
	if context != "" || tokens != 0 || sources != 0 {
		t.Fatalf("expected empty result when no chunks")
	}
}

func TestSources(t *testing.T) {
	got := Sources([]RetrievedChunk{{Entry: IndexEntry{ChunkID: "a:1", Doc: "a", Ordinal: 1, Text: "t"}, Score: 0.5}})
	if len(got) != 1 || got[0].ChunkID != "a:1" || got[0].Score != 0.5 || got[0].Text != "t" {
		t.Fatalf("unexpected sources: %+v", got)
	}
}
