package rag

import (
	"fmt"
	"strings"
)

const (
	// DefaultChunkSize is the maximum chunk length in runes.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the maximum number of runes shared by consecutive chunks.
	DefaultChunkOverlap = 50
)

// DefaultSeparators lists split boundaries from largest to smallest:
// paragraph, line, sentence, word.
var DefaultSeparators = []string{"\n\n", "\n", ".", " "}

// Splitter cuts text into overlapping chunks of bounded length, preferring
// the largest semantic boundary available before falling back to a hard cut.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// SplitterOption configures a Splitter.
type SplitterOption func(*Splitter)

// WithSeparators replaces the separator priority list. Empty separators are ignored.
func WithSeparators(separators ...string) SplitterOption {
	return func(s *Splitter) {
		s.separators = s.separators[:0]
		for _, sep := range separators {
			if sep != "" {
				s.separators = append(s.separators, sep)
			}
		}
	}
}

// NewSplitter returns a Splitter producing chunks of at most size runes that
// share at most overlap runes with their predecessor.
func NewSplitter(size, overlap int, opts ...SplitterOption) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be greater than zero, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be zero or greater, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	s := &Splitter{
		size:       size,
		overlap:    overlap,
		separators: append([]string(nil), DefaultSeparators...),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Size returns the maximum chunk length in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the maximum overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }

// ChunkDocument splits a document and tags every chunk with the document name.
func (s *Splitter) ChunkDocument(doc Document) []Chunk {
	chunks := s.Split(doc.Text)
	for i := range chunks {
		chunks[i].Doc = doc.Name
	}
	return chunks
}

// Split cuts text into chunks. Chunks are exact substrings of text: dropping
// the first Overlap runes of every chunk and concatenating the rest yields
// text again.
func (s *Splitter) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	pieces := s.pieces(runes, 0, len(runes), s.separators)
	return s.merge(runes, pieces)
}

type span struct {
	start int
	end   int
}

func (p span) len() int { return p.end - p.start }

// pieces splits r[start:end] at the first separator present in it. Pieces
// still longer than the chunk size are split again with the remaining
// separators. Separators stay attached to the end of the preceding piece.
func (s *Splitter) pieces(r []rune, start, end int, separators []string) []span {
	for i, sep := range separators {
		sepRunes := []rune(sep)
		cuts := cutPoints(r, start, end, sepRunes)
		if len(cuts) == 0 {
			continue
		}
		rest := separators[i+1:]
		var out []span
		pos := start
		for _, cut := range cuts {
			out = s.appendPiece(out, r, pos, cut, rest)
			pos = cut
		}
		if pos < end {
			out = s.appendPiece(out, r, pos, end, rest)
		}
		return out
	}
	return s.hardCut(start, end)
}

func (s *Splitter) appendPiece(out []span, r []rune, start, end int, rest []string) []span {
	if end-start <= s.size {
		return append(out, span{start, end})
	}
	return append(out, s.pieces(r, start, end, rest)...)
}

func (s *Splitter) hardCut(start, end int) []span {
	var out []span
	for p := start; p < end; p += s.size {
		out = append(out, span{p, min(p+s.size, end)})
	}
	return out
}

// cutPoints returns the offsets just after every occurrence of sep in r[start:end].
func cutPoints(r []rune, start, end int, sep []rune) []int {
	if len(sep) == 0 {
		return nil
	}
	var cuts []int
	for j := start; j+len(sep) <= end; {
		if runesEqual(r[j:j+len(sep)], sep) {
			j += len(sep)
			cuts = append(cuts, j)
			continue
		}
		j++
	}
	return cuts
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// merge packs consecutive pieces into chunks of at most s.size runes. Each
// new chunk reuses the trailing pieces of the previous one while they fit in
// s.overlap runes.
func (s *Splitter) merge(r []rune, pieces []span) []Chunk {
	var (
		chunks  []Chunk
		window  []span
		total   int
		prevEnd int
	)
	emit := func() {
		start := window[0].start
		end := window[len(window)-1].end
		overlap := 0
		if prevEnd > start {
			overlap = prevEnd - start
		}
		chunks = append(chunks, Chunk{
			Ordinal: len(chunks),
			Text:    string(r[start:end]),
			Start:   start,
			End:     end,
			Overlap: overlap,
		})
		prevEnd = end
	}

	for _, p := range pieces {
		if len(window) > 0 && total+p.len() > s.size {
			emit()
			for len(window) > 0 && (total > s.overlap || total+p.len() > s.size) {
				total -= window[0].len()
				window = window[1:]
			}
		}
		window = append(window, p)
		total += p.len()
	}
	if len(window) > 0 {
		emit()
	}
	return chunks
}

// estimateTokens approximates the token count of text by its word count.
func estimateTokens(text string) int {
	return len(strings.Fields(text))
}
