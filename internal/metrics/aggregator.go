// internal/metrics/aggregator.go
// Package metrics keeps running latency and context statistics per operation.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mwiater/coachrag/internal/logging"
	"github.com/mwiater/coachrag/internal/rag"
)

// Aggregator collects and manages performance metrics per operation.
type Aggregator struct {
	mutex    sync.Mutex
	metrics  map[string]*OperationMetrics
	filePath string
}

// NewAggregator returns an Aggregator. When filePath is set, previously saved
// metrics are loaded from it and Save writes back to it.
func NewAggregator(filePath string) *Aggregator {
	agg := &Aggregator{
		metrics:  make(map[string]*OperationMetrics),
		filePath: filePath,
	}
	if filePath != "" {
		if err := agg.load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.LogEvent("[METRICS] Ignoring unreadable metrics file %s: %v", filePath, err)
		}
	}
	return agg
}

// Load reads a metrics file written by Save.
func Load(filePath string) ([]OperationMetrics, error) {
	agg := &Aggregator{metrics: make(map[string]*OperationMetrics), filePath: filePath}
	if err := agg.load(); err != nil {
		return nil, err
	}
	return agg.Snapshot(), nil
}

// load reads metrics from the JSON file into memory.
func (a *Aggregator) load() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	data, err := os.ReadFile(a.filePath)
	if err != nil {
		return err
	}

	var metricsSlice []*OperationMetrics
	if err := json.Unmarshal(data, &metricsSlice); err != nil {
		return fmt.Errorf("decode %s: %w", a.filePath, err)
	}

	for _, m := range metricsSlice {
		if m == nil {
			continue
		}
		a.metrics[m.Operation] = m
	}
	return nil
}

// Save writes the current metrics to the file given to NewAggregator. It is a
// no-op without a file.
func (a *Aggregator) Save() error {
	if a.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(a.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(a.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	logging.LogDebug("[METRICS] Saving metrics to %s", a.filePath)
	return os.WriteFile(a.filePath, data, 0o644)
}

// Run saves the metrics every interval until ctx is done, then saves once more.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := a.Save(); err != nil {
				logging.LogEvent("[METRICS] Save failed: %v", err)
			}
			return
		case <-ticker.C:
			if err := a.Save(); err != nil {
				logging.LogEvent("[METRICS] Save failed: %v", err)
			}
		}
	}
}

// Record updates the metrics for op. A non-nil err counts as a failure and
// leaves the timing statistics untouched.
func (a *Aggregator) Record(op string, stats rag.AnswerStats, err error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	opMetrics, exists := a.metrics[op]
	if !exists {
		opMetrics = &OperationMetrics{Operation: op}
		a.metrics[op] = opMetrics
	}
	opMetrics.LastUpdatedUTC = time.Now().UTC()

	if err != nil {
		opMetrics.OverallStats.TotalRequests++
		opMetrics.OverallStats.Failures++
		return
	}

	updateStats(&opMetrics.OverallStats, stats)

	bucket := getBucket(stats.ContextTokens)
	for i := range opMetrics.PerformanceBuckets {
		if opMetrics.PerformanceBuckets[i].Dimension == "context_tokens" && opMetrics.PerformanceBuckets[i].Bucket == bucket {
			updateStats(&opMetrics.PerformanceBuckets[i].Stats, stats)
			return
		}
	}
	newBucket := PerformanceBucket{Dimension: "context_tokens", Bucket: bucket}
	updateStats(&newBucket.Stats, stats)
	opMetrics.PerformanceBuckets = append(opMetrics.PerformanceBuckets, newBucket)
}

// Snapshot returns a copy of the metrics sorted by operation name.
func (a *Aggregator) Snapshot() []OperationMetrics {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := make([]OperationMetrics, 0, len(a.metrics))
	for _, m := range a.metrics {
		cp := *m
		cp.PerformanceBuckets = append([]PerformanceBucket(nil), m.PerformanceBuckets...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// updateStats updates the running statistics with one successful request.
func updateStats(stats *RunningAggregatedStats, s rag.AnswerStats) {
	stats.TotalRequests++
	updateRunningStat(&stats.RetrievalMillis, float64(s.RetrievalMs))
	updateRunningStat(&stats.GenerationMillis, float64(s.GenerationMs))
	updateRunningStat(&stats.TotalDurationMillis, float64(s.TotalMs))
	updateRunningStat(&stats.ContextTokens, float64(s.ContextTokens))
	updateRunningStat(&stats.SourceCoverage, float64(s.SourceCoverage))
}

// updateRunningStat updates a single running statistic using Welford's online algorithm.
func updateRunningStat(rs *RunningStat, value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

// getBucket determines the performance bucket for a given number of context tokens.
func getBucket(contextTokens int) string {
	switch {
	case contextTokens <= 256:
		return "0-256"
	case contextTokens <= 1024:
		return "257-1024"
	case contextTokens <= 4096:
		return "1025-4096"
	case contextTokens <= 8192:
		return "4097-8192"
	default:
		return "8192+"
	}
}
