package rag

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func reconstruct(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(string([]rune(c.Text)[c.Overlap:]))
	}
	return b.String()
}

func mustSplitter(t *testing.T, size, overlap int) *Splitter {
	t.Helper()
	s, err := NewSplitter(size, overlap)
	if err != nil {
		t.Fatalf("NewSplitter(%d, %d): %v", size, overlap, err)
	}
	return s
}

func TestNewSplitterRejectsInvalidParameters(t *testing.T) {
	cases := []struct {
		size, overlap int
	}{
		{0, 0},
		{-1, 0},
		{10, -1},
		{10, 10},
		{10, 11},
	}
	for _, tc := range cases {
		if _, err := NewSplitter(tc.size, tc.overlap); err == nil {
			t.Fatalf("expected error for size=%d overlap=%d", tc.size, tc.overlap)
		}
	}
}

func TestSplitEmptyText(t *testing.T) {
	s := mustSplitter(t, 500, 50)
	if chunks := s.Split(""); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(chunks))
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := mustSplitter(t, 500, 50)
	text := "Avoidant employees need space. Give them time to process feedback."
	chunks := s.Split(text)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Fatalf("expected chunk to equal input, got %q", chunks[0].Text)
	}
	if chunks[0].Overlap != 0 || chunks[0].Start != 0 || chunks[0].End != utf8.RuneCountInString(text) {
		t.Fatalf("unexpected bounds: %+v", chunks[0])
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s := mustSplitter(t, 40, 0)
	para1 := "First paragraph is about feedback."
	para2 := "Second paragraph covers deadlines."
	chunks := s.Split(para1 + "\n\n" + para2)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %#v", len(chunks), chunks)
	}
	if chunks[0].Text != para1+"\n\n" {
		t.Fatalf("expected first chunk to end at paragraph break, got %q", chunks[0].Text)
	}
	if chunks[1].Text != para2 {
		t.Fatalf("expected second chunk to be the second paragraph, got %q", chunks[1].Text)
	}
}

func TestSplitHardCutWithoutSeparators(t *testing.T) {
	s := mustSplitter(t, 10, 0)
	text := strings.Repeat("x", 35)
	chunks := s.Split(text)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c.Text) > 10 {
			t.Fatalf("chunk exceeds size: %q", c.Text)
		}
	}
	if got := reconstruct(chunks); got != text {
		t.Fatalf("reconstruction mismatch: %q", got)
	}
}

func TestSplitOverlapSharesTrailingWords(t *testing.T) {
	s := mustSplitter(t, 20, 8)
	text := "one two three four five six seven eight nine ten"
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	sawOverlap := false
	for i := 1; i < len(chunks); i++ {
		c := chunks[i]
		if c.Overlap > 8 {
			t.Fatalf("chunk %d overlap %d exceeds limit", i, c.Overlap)
		}
		if c.Overlap > 0 {
			sawOverlap = true
			prev := []rune(chunks[i-1].Text)
			shared := string(prev[len(prev)-c.Overlap:])
			if !strings.HasPrefix(c.Text, shared) {
				t.Fatalf("chunk %d does not start with shared context %q: %q", i, shared, c.Text)
			}
		}
	}
	if !sawOverlap {
		t.Fatalf("expected at least one chunk to carry overlap")
	}
}

func TestSplitInvariantsHold(t *testing.T) {
	texts := []string{
		"A.\n\nB.\nC. D E F. G\n\n\n\nH",
		strings.Repeat("Managers should listen. ", 80),
		strings.Repeat("para one line\nline two. more words here\n\n", 30),
		"Überraschung für Mitarbeiter. 従業員には空間が必要です。 Ещё одно предложение.\n\nНовый абзац.",
		strings.Repeat(" ", 120),
		strings.Repeat("...\n", 60),
		strings.Repeat("supercalifragilisticexpialidocious", 20),
	}
	params := [][2]int{{500, 50}, {40, 10}, {16, 15}, {7, 3}, {1, 0}}

	for _, p := range params {
		s := mustSplitter(t, p[0], p[1])
		for ti, text := range texts {
			chunks := s.Split(text)
			if len(chunks) == 0 {
				t.Fatalf("size=%d text %d: expected chunks", p[0], ti)
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c.Text); n > p[0] {
					t.Fatalf("size=%d text %d chunk %d: length %d exceeds max", p[0], ti, i, n)
				}
				if c.Overlap > p[1] {
					t.Fatalf("size=%d text %d chunk %d: overlap %d exceeds %d", p[0], ti, i, c.Overlap, p[1])
				}
				if c.Ordinal != i {
					t.Fatalf("expected ordinal %d, got %d", i, c.Ordinal)
				}
			}
			if got := reconstruct(chunks); got != text {
				t.Fatalf("size=%d overlap=%d text %d: reconstruction mismatch\nwant %q\ngot  %q", p[0], p[1], ti, text, got)
			}
		}
	}
}

func TestChunkDocumentTagsDocName(t *testing.T) {
	s := mustSplitter(t, 500, 50)
	chunks := s.ChunkDocument(Document{Name: "a.pdf", Text: "hello world"})
	if len(chunks) != 1 || chunks[0].Doc != "a.pdf" {
		t.Fatalf("expected a single chunk tagged a.pdf, got %#v", chunks)
	}
}

func TestWithSeparatorsOverridesPriority(t *testing.T) {
	s, err := NewSplitter(12, 0, WithSeparators(";", ""))
	if err != nil {
		t.Fatal(err)
	}
	text := "alpha;beta;gamma;delta"
	chunks := s.Split(text)
	if got := reconstruct(chunks); got != text {
		t.Fatalf("reconstruction mismatch: %q", got)
	}
	if !strings.HasSuffix(chunks[0].Text, ";") {
		t.Fatalf("expected split at custom separator, got %q", chunks[0].Text)
	}
}
