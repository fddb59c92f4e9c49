package loadtest

import (
	"sort"
	"time"
)

// Family classifies a harness test case
type Family string

const (
	FamilyFunctional  Family = "functional"
	FamilyPerformance Family = "performance"
	FamilyScalability Family = "scalability"
	FamilyConcurrency Family = "concurrency"
	FamilyStress      Family = "stress"
	FamilyAPI         Family = "api"
	FamilyDatabase    Family = "database"
	FamilyMemory      Family = "memory"
	FamilyEndToEnd    Family = "end-to-end"
)

// Result is the immutable outcome of one executed test case
type Result struct {
	Name         string             `json:"name"`
	Family       Family             `json:"family"`
	Component    string             `json:"component"`
	Success      bool               `json:"success"`
	Duration     time.Duration      `json:"duration"`
	ResponseTime time.Duration      `json:"response_time,omitempty"`
	Error        string             `json:"error,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

// ConcurrencyResult summarizes one tested concurrency level
type ConcurrencyResult struct {
	Level           int           `json:"level"`
	TotalRequests   int           `json:"total_requests"`
	Successful      int           `json:"successful"`
	Failed          int           `json:"failed"`
	MinResponseTime time.Duration `json:"min_response_time"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	MaxResponseTime time.Duration `json:"max_response_time"`
	Throughput      float64       `json:"throughput"`
	ErrorRate       float64       `json:"error_rate"`
	SuccessRate     float64       `json:"success_rate"`
}

// Summary aggregates an entire harness run for the report builder
type Summary struct {
	Results            []Result            `json:"results"`
	ConcurrencyResults []ConcurrencyResult `json:"concurrency_results"`
	ScalabilityScore   float64             `json:"scalability_score"`
	ConcurrencyScore   float64             `json:"concurrency_score"`
	TotalTests         int                 `json:"total_tests"`
	PassedTests        int                 `json:"passed_tests"`
	SuccessRate        float64             `json:"success_rate"`
}

// callResult is one (success, latency) observation against the target
type callResult struct {
	ok      bool
	latency time.Duration
}

// latencyStats condenses a batch of call latencies
type latencyStats struct {
	min, max, avg  time.Duration
	p50, p95, p99  time.Duration
	total, success int
}

func computeLatencyStats(calls []callResult) latencyStats {
	stats := latencyStats{total: len(calls)}
	if len(calls) == 0 {
		return stats
	}

	latencies := make([]time.Duration, 0, len(calls))
	var sum time.Duration
	stats.min = calls[0].latency
	for _, c := range calls {
		if c.ok {
			stats.success++
		}
		latencies = append(latencies, c.latency)
		sum += c.latency
		if c.latency < stats.min {
			stats.min = c.latency
		}
		if c.latency > stats.max {
			stats.max = c.latency
		}
	}
	stats.avg = sum / time.Duration(len(calls))

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	stats.p50 = percentile(latencies, 0.50)
	stats.p95 = percentile(latencies, 0.95)
	stats.p99 = percentile(latencies, 0.99)
	return stats
}

// percentile expects latencies sorted ascending
func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	idx := int(p * float64(len(latencies)-1))
	return latencies[idx]
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
