package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Embedder maps texts to fixed-dimension vectors. Implementations return one
// vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// EmbedText embeds a single text.
func EmbedText(ctx context.Context, embedder Embedder, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	vectors, err := embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, &ProviderError{Op: "embedding", Retryable: true, Err: fmt.Errorf("expected 1 vector, got %d", len(vectors))}
	}
	return vectors[0], nil
}

// DefaultHashDimension is the vector size used by HashEmbedder when none is given.
const DefaultHashDimension = 512

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashEmbedder is an offline embedder that hashes normalised words into a
// fixed number of buckets. It needs no network access and is deterministic,
// which makes it useful for local development and tests. It captures lexical
// overlap only.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of length dim.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

// Model returns the embedder identifier stored in index manifests.
func (h *HashEmbedder) Model() string { return fmt.Sprintf("hash-%d", h.dim) }

// Dimension returns the vector length.
func (h *HashEmbedder) Dimension() int { return h.dim }

// Embed hashes every text into an L2-normalised bag-of-words vector.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, &ProviderError{Op: "embedding", Retryable: true, Err: err}
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, word := range wordRe.FindAllString(strings.ToLower(text), -1) {
		word = normaliseWord(word)
		f := fnv.New32a()
		_, _ = f.Write([]byte(word))
		vec[f.Sum32()%uint32(h.dim)]++
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// normaliseWord folds simple plurals so "employees" and "employee" share a bucket.
func normaliseWord(word string) string {
	if len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") {
		return strings.TrimSuffix(word, "s")
	}
	return word
}
