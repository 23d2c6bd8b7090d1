package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/coachrag/internal/storage"
)

// DefaultTopK is used when a search asks for k <= 0.
const DefaultTopK = 4

// Metric selects how entries are compared with a query vector.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricDot       Metric = "dot"
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric validates a metric name. Empty selects cosine.
func ParseMetric(name string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(name))) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricDot:
		return MetricDot, nil
	case MetricEuclidean, "l2":
		return MetricEuclidean, nil
	default:
		return "", fmt.Errorf("unsupported similarity metric %q", name)
	}
}

// snapshot is an immutable view of the index. Searches read it without locking.
type snapshot struct {
	entries   []IndexEntry
	norms     []float64
	dim       int
	metric    Metric
	model     string
	buildID   string
	createdAt time.Time
}

// Index is an in-memory nearest-neighbour index over chunk embeddings.
//
// Search is safe for concurrent use and never blocks. Build and Load prepare
// a new snapshot off to the side and swap it in atomically, so a search sees
// either the old or the new contents. Build, Save and Load are serialised
// with each other.
type Index struct {
	metric Metric
	model  string

	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithMetric sets the metric recorded by Build.
func WithMetric(m Metric) IndexOption {
	return func(i *Index) { i.metric = m }
}

// WithEmbeddingModel records the embedding model that produced the vectors.
func WithEmbeddingModel(model string) IndexOption {
	return func(i *Index) { i.model = model }
}

// NewIndex returns an empty index.
func NewIndex(opts ...IndexOption) *Index {
	idx := &Index{metric: MetricCosine}
	for _, opt := range opts {
		opt(idx)
	}
	idx.current.Store(&snapshot{metric: idx.metric, model: idx.model})
	return idx
}

// Build replaces the index contents with entries. Every vector must have the
// same non-zero length; otherwise Build returns a *DimensionMismatchError and
// the previous contents stay in place. An empty slice yields a valid empty index.
func (i *Index) Build(entries []IndexEntry) error {
	snap, err := newSnapshot(entries, i.metric, i.model)
	if err != nil {
		return err
	}
	snap.buildID = uuid.NewString()
	snap.createdAt = time.Now().UTC()

	i.mu.Lock()
	defer i.mu.Unlock()
	i.current.Store(snap)
	return nil
}

func newSnapshot(entries []IndexEntry, metric Metric, model string) (*snapshot, error) {
	snap := &snapshot{
		entries: make([]IndexEntry, len(entries)),
		norms:   make([]float64, len(entries)),
		metric:  metric,
		model:   model,
	}
	if len(entries) > 0 {
		snap.dim = len(entries[0].Vector)
	}
	for n, e := range entries {
		if len(e.Vector) == 0 || len(e.Vector) != snap.dim {
			return nil, &DimensionMismatchError{Want: snap.dim, Got: len(e.Vector), Index: n}
		}
		e.Vector = append([]float32(nil), e.Vector...)
		if e.ChunkID == "" {
			e.ChunkID = fmt.Sprintf("%s:%d", e.Doc, e.Ordinal)
		}
		snap.entries[n] = e
		snap.norms[n] = vectorNorm(e.Vector)
	}
	return snap, nil
}

// Len returns the number of entries.
func (i *Index) Len() int {
	return len(i.current.Load().entries)
}

// Dimension returns the vector dimension, or 0 for an empty index.
func (i *Index) Dimension() int {
	return i.current.Load().dim
}

// Search returns up to k entries closest to vector, best first. Equal scores
// keep insertion order. It fails with ErrEmptyIndex when the index is empty
// and with a *DimensionMismatchError when vector has the wrong length.
// Returned entries share vector storage with the index and must not be modified.
func (i *Index) Search(vector []float32, k int) ([]RetrievedChunk, error) {
	snap := i.current.Load()
	if len(snap.entries) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(vector) != snap.dim {
		return nil, &DimensionMismatchError{Want: snap.dim, Got: len(vector), Index: -1}
	}
	if k <= 0 {
		k = DefaultTopK
	}

	scored := snap.score(vector)
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k:k], nil
}

func (s *snapshot) score(query []float32) []RetrievedChunk {
	out := make([]RetrievedChunk, len(s.entries))
	queryNorm := vectorNorm(query)
	for n, entry := range s.entries {
		var score float64
		switch s.metric {
		case MetricDot:
			score = dot(query, entry.Vector)
		case MetricEuclidean:
			score = -euclidean(query, entry.Vector)
		default:
			score = cosineSimilarity(query, entry.Vector, queryNorm, s.norms[n])
		}
		if math.IsNaN(score) {
			score = math.Inf(-1)
		}
		out[n] = RetrievedChunk{Entry: entry, Score: score}
	}
	return out
}

// IndexStats summarises the current index contents.
type IndexStats struct {
	Count          int       `json:"count"`
	Dimension      int       `json:"dimension"`
	Documents      int       `json:"documents"`
	Metric         Metric    `json:"metric"`
	EmbeddingModel string    `json:"embedding_model"`
	BuildID        string    `json:"build_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Stats describes the current snapshot.
func (i *Index) Stats() IndexStats {
	snap := i.current.Load()
	docs := make(map[string]struct{})
	for _, e := range snap.entries {
		docs[e.Doc] = struct{}{}
	}
	return IndexStats{
		Count:          len(snap.entries),
		Dimension:      snap.dim,
		Documents:      len(docs),
		Metric:         snap.metric,
		EmbeddingModel: snap.model,
		BuildID:        snap.buildID,
		CreatedAt:      snap.createdAt,
	}
}

// Save writes the current contents to store in the restricted index format.
func (i *Index) Save(ctx context.Context, store storage.Store) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	files, err := encodeSnapshot(i.current.Load())
	if err != nil {
		return err
	}
	if err := store.WriteFiles(ctx, files); err != nil {
		return fmt.Errorf("save rag index to %s: %w", store, err)
	}
	return nil
}

// Load replaces the index contents with the index persisted in store. The
// data is validated before it is swapped in; on error the index is unchanged.
func (i *Index) Load(ctx context.Context, store storage.Store) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	snap, err := readSnapshot(ctx, store)
	if err != nil {
		return fmt.Errorf("load rag index from %s: %w", store, err)
	}
	i.current.Store(snap)
	return nil
}

func cosineSimilarity(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot(a, b) / (normA * normB)
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for n := range a {
		sum += float64(a[n]) * float64(b[n])
	}
	return sum
}

func euclidean(a, b []float32) float64 {
	sum := 0.0
	for n := range a {
		d := float64(a[n]) - float64(b[n])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func vectorNorm(v []float32) float64 {
	sum := 0.0
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}
