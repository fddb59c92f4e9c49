// Package report aggregates a deployment run's health checks, harness
// results, alerts and metric history into a single promotion report.
// Building a report is a pure read: recomputing it from the same run
// data yields identical scores.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prodgate/prodgate/pkg/health"
	"github.com/prodgate/prodgate/pkg/loadtest"
	"github.com/prodgate/prodgate/pkg/logging"
	"github.com/prodgate/prodgate/pkg/monitoring"
)

// Promotion gate thresholds
const (
	minSuccessRate = 0.90
	minScalability = 0.70
	minConcurrency = 0.70
	minReliability = 0.80
	minPerformance = 0.70

	// performance score contribution for a failed test that still
	// responded reasonably fast
	slowPassScore   = 0.8
	slowPassLatency = 5 * time.Second
)

// RollbackOutcome mirrors one executed rollback step for the report
type RollbackOutcome struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RunInfo carries the run-level facts the builder aggregates over
type RunInfo struct {
	ID                 string
	Environment        string
	State              string
	StartedAt          time.Time
	CompletedAt        *time.Time
	StateHistory       []string
	FailedPhase        string
	FailureReason      string
	RollbackIncomplete bool
	RollbackSteps      []RollbackOutcome
	HealthChecks       []health.Result
}

// Scores are the four composite scores, each in [0,1]
type Scores struct {
	Scalability float64 `json:"scalability"`
	Concurrency float64 `json:"concurrency"`
	Reliability float64 `json:"reliability"`
	Performance float64 `json:"performance"`
}

// MetricSummary condenses one metric kind over the report window
type MetricSummary struct {
	Kind   monitoring.MetricKind `json:"kind"`
	Count  int                   `json:"count"`
	Min    float64               `json:"min"`
	Max    float64               `json:"max"`
	Avg    float64               `json:"avg"`
	Latest float64               `json:"latest"`
}

// Report is the final promotion gate verdict for one deployment run
type Report struct {
	RunID              string                       `json:"run_id"`
	Environment        string                       `json:"environment"`
	State              string                       `json:"state"`
	StartedAt          time.Time                    `json:"started_at"`
	CompletedAt        *time.Time                   `json:"completed_at,omitempty"`
	StateHistory       []string                     `json:"state_history"`
	FailedPhase        string                       `json:"failed_phase,omitempty"`
	FailureReason      string                       `json:"failure_reason,omitempty"`
	RollbackIncomplete bool                         `json:"rollback_incomplete"`
	RollbackSteps      []RollbackOutcome            `json:"rollback_steps,omitempty"`
	HealthChecks       []health.Result              `json:"health_checks"`
	TestResults        []loadtest.Result            `json:"test_results"`
	ConcurrencyResults []loadtest.ConcurrencyResult `json:"concurrency_results"`
	Alerts             []monitoring.Alert           `json:"alerts"`
	UnresolvedCritical int                          `json:"unresolved_critical"`
	MetricSummaries    []MetricSummary              `json:"metric_summaries"`
	SuccessRate        float64                      `json:"success_rate"`
	Scores             Scores                       `json:"scores"`
	OverallSuccess     bool                         `json:"overall_success"`
	Recommendations    []string                     `json:"recommendations"`
	GeneratedAt        time.Time                    `json:"generated_at"`
}

// Builder aggregates run data into reports
type Builder struct {
	window time.Duration
	logger *logging.StructuredLogger
}

// NewBuilder creates a report builder. The metric window defaults to
// one hour.
func NewBuilder(window time.Duration, logger *logging.StructuredLogger) *Builder {
	if window == 0 {
		window = time.Hour
	}
	return &Builder{
		window: window,
		logger: logger.WithComponent("report"),
	}
}

// Build produces the deployment report. summary, store and alerts may be
// nil when the run failed before the corresponding phase produced data.
func (b *Builder) Build(info RunInfo, summary *loadtest.Summary, store *monitoring.SampleStore, alerts *monitoring.AlertLog) *Report {
	r := &Report{
		RunID:              info.ID,
		Environment:        info.Environment,
		State:              info.State,
		StartedAt:          info.StartedAt,
		CompletedAt:        info.CompletedAt,
		StateHistory:       info.StateHistory,
		FailedPhase:        info.FailedPhase,
		FailureReason:      info.FailureReason,
		RollbackIncomplete: info.RollbackIncomplete,
		RollbackSteps:      info.RollbackSteps,
		HealthChecks:       info.HealthChecks,
		GeneratedAt:        time.Now(),
	}

	if summary != nil {
		r.TestResults = summary.Results
		r.ConcurrencyResults = summary.ConcurrencyResults
		r.SuccessRate = summary.SuccessRate
		r.Scores = Scores{
			Scalability: summary.ScalabilityScore,
			Concurrency: summary.ConcurrencyScore,
			Reliability: reliabilityScore(summary),
			Performance: performanceScore(summary.Results),
		}
	}

	if alerts != nil {
		r.Alerts = alerts.All()
		r.UnresolvedCritical = len(alerts.Unresolved(monitoring.SeverityCritical))
	}

	if store != nil {
		r.MetricSummaries = summarizeMetrics(store.Window(time.Now().Add(-b.window)))
	}

	r.OverallSuccess = r.SuccessRate >= minSuccessRate &&
		r.Scores.Scalability >= minScalability &&
		r.Scores.Concurrency >= minConcurrency &&
		r.Scores.Reliability >= minReliability &&
		r.Scores.Performance >= minPerformance &&
		r.UnresolvedCritical == 0

	r.Recommendations = recommendations(r)

	b.logger.InfoWithContext("Deployment report built",
		"run_id", r.RunID,
		"state", r.State,
		"overall_success", r.OverallSuccess,
		"success_rate", r.SuccessRate,
	)
	return r
}

// reliabilityScore is the overall test pass rate
func reliabilityScore(summary *loadtest.Summary) float64 {
	if summary.TotalTests == 0 {
		return 0
	}
	return float64(summary.PassedTests) / float64(summary.TotalTests)
}

// performanceScore averages the performance-family tests: a passing test
// contributes 1.0, a failing one 0.8 when it still answered within five
// seconds, otherwise 0.0
func performanceScore(results []loadtest.Result) float64 {
	total := 0
	sum := 0.0
	for _, res := range results {
		if res.Family != loadtest.FamilyPerformance {
			continue
		}
		total++
		switch {
		case res.Success:
			sum += 1.0
		case res.ResponseTime > 0 && res.ResponseTime < slowPassLatency:
			sum += slowPassScore
		}
	}
	if total == 0 {
		return 0
	}
	return sum / float64(total)
}

// summarizeMetrics folds the windowed samples into per-kind summaries,
// ordered by first appearance for deterministic output
func summarizeMetrics(samples []monitoring.MetricSample) []MetricSummary {
	order := make([]monitoring.MetricKind, 0)
	byKind := make(map[monitoring.MetricKind]*MetricSummary)

	for _, s := range samples {
		summary, ok := byKind[s.Kind]
		if !ok {
			summary = &MetricSummary{Kind: s.Kind, Min: s.Value, Max: s.Value}
			byKind[s.Kind] = summary
			order = append(order, s.Kind)
		}
		summary.Count++
		summary.Latest = s.Value
		summary.Avg += s.Value // running sum, divided below
		if s.Value < summary.Min {
			summary.Min = s.Value
		}
		if s.Value > summary.Max {
			summary.Max = s.Value
		}
	}

	out := make([]MetricSummary, 0, len(order))
	for _, kind := range order {
		summary := byKind[kind]
		summary.Avg /= float64(summary.Count)
		out = append(out, *summary)
	}
	return out
}

// recommendations derives the human-readable advice list from the failed
// gate criteria, in fixed priority order
func recommendations(r *Report) []string {
	recs := make([]string, 0, 5)

	if r.UnresolvedCritical > 0 {
		recs = append(recs, fmt.Sprintf("Resolve %d unresolved critical alert(s) before promoting to production", r.UnresolvedCritical))
	}
	if r.Scores.Reliability < minReliability {
		recs = append(recs, fmt.Sprintf("Improve test reliability: pass rate %.2f is below the %.2f requirement", r.Scores.Reliability, minReliability))
	}
	if r.Scores.Scalability < minScalability {
		recs = append(recs, fmt.Sprintf("Investigate throughput degradation under load: scalability score %.2f is below %.2f", r.Scores.Scalability, minScalability))
	}
	if r.Scores.Concurrency < minConcurrency {
		recs = append(recs, fmt.Sprintf("Address failures under concurrent sessions: concurrency score %.2f is below %.2f", r.Scores.Concurrency, minConcurrency))
	}
	if r.Scores.Performance < minPerformance {
		recs = append(recs, fmt.Sprintf("Reduce response times: performance score %.2f is below %.2f", r.Scores.Performance, minPerformance))
	}

	if len(recs) == 0 && r.OverallSuccess {
		recs = append(recs, "System meets all promotion criteria")
	}
	return recs
}

// WriteJSON serializes the report
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// SaveJSON writes the report to a file
func (r *Report) SaveJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()
	return r.WriteJSON(f)
}
