// internal/metrics/types.go
package metrics

import (
	"math"
	"time"
)

// OperationMetrics is the top-level document for a single operation's aggregated data.
type OperationMetrics struct {
	Operation          string                 `json:"operation"`
	LastUpdatedUTC     time.Time              `json:"last_updated_utc"`
	OverallStats       RunningAggregatedStats `json:"overall_stats"`
	PerformanceBuckets []PerformanceBucket    `json:"performance_buckets"`
}

// PerformanceBucket holds aggregated stats for a specific dimension, like context token count.
type PerformanceBucket struct {
	Dimension string                 `json:"dimension"`
	Bucket    string                 `json:"bucket"`
	Stats     RunningAggregatedStats `json:"stats"`
}

// RunningAggregatedStats stores the running statistical values for a set of metrics.
// It uses Welford's online algorithm for calculating mean and standard deviation.
type RunningAggregatedStats struct {
	TotalRequests int64 `json:"total_requests"`
	Failures      int64 `json:"failures"`

	RetrievalMillis     RunningStat `json:"retrieval_ms"`
	GenerationMillis    RunningStat `json:"generation_ms"`
	TotalDurationMillis RunningStat `json:"total_duration_ms"`
	ContextTokens       RunningStat `json:"context_tokens"`
	SourceCoverage      RunningStat `json:"source_coverage"`
}

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// StdDev returns the sample standard deviation, or zero with fewer than two values.
func (rs RunningStat) StdDev() float64 {
	if rs.Count < 2 {
		return 0
	}
	return math.Sqrt(rs.M2 / float64(rs.Count-1))
}
