package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodgate/prodgate/pkg/loadtest"
	"github.com/prodgate/prodgate/pkg/logging"
	"github.com/prodgate/prodgate/pkg/monitoring"
)

func testLogger() *logging.StructuredLogger {
	return logging.NewStructuredLogger(logging.Config{Level: logging.LevelError, ServiceName: "prodgate-test"})
}

func passingSummary() *loadtest.Summary {
	return &loadtest.Summary{
		Results: []loadtest.Result{
			{Name: "Basic Invocation", Family: loadtest.FamilyFunctional, Success: true},
			{Name: "API Response Time", Family: loadtest.FamilyPerformance, Success: true, ResponseTime: 100 * time.Millisecond},
			{Name: "Search Latency", Family: loadtest.FamilyPerformance, Success: true, ResponseTime: 200 * time.Millisecond},
		},
		ConcurrencyResults: []loadtest.ConcurrencyResult{
			{Level: 2, SuccessRate: 1.0},
			{Level: 5, SuccessRate: 1.0},
		},
		ScalabilityScore: 0.9,
		ConcurrencyScore: 1.0,
		TotalTests:       3,
		PassedTests:      3,
		SuccessRate:      1.0,
	}
}

func healthyRun() RunInfo {
	return RunInfo{
		ID:          "run-1",
		Environment: "production",
		State:       "successful",
		StartedAt:   time.Now(),
	}
}

func TestBuildPassingReport(t *testing.T) {
	b := NewBuilder(time.Hour, testLogger())
	rep := b.Build(healthyRun(), passingSummary(), nil, monitoring.NewAlertLog())

	assert.True(t, rep.OverallSuccess)
	assert.Equal(t, 1.0, rep.Scores.Reliability)
	assert.Equal(t, 1.0, rep.Scores.Performance)
	assert.Equal(t, 0.9, rep.Scores.Scalability)
	assert.Equal(t, []string{"System meets all promotion criteria"}, rep.Recommendations)
}

func TestUnresolvedCriticalAlertBlocksPromotion(t *testing.T) {
	// Every score can be perfect: one unresolved critical alert still
	// forces a no-go.
	alerts := monitoring.NewAlertLog()
	sample := monitoring.MetricSample{Kind: monitoring.MetricResponseTime, Value: 12.0, Timestamp: time.Now()}
	alert := monitoring.Evaluate(sample, monitoring.DefaultThresholds())
	require.NotNil(t, alert)
	alerts.Append(alert)

	b := NewBuilder(time.Hour, testLogger())
	rep := b.Build(healthyRun(), passingSummary(), nil, alerts)

	assert.False(t, rep.OverallSuccess)
	assert.Equal(t, 1, rep.UnresolvedCritical)
	require.NotEmpty(t, rep.Recommendations)
	assert.Contains(t, rep.Recommendations[0], "critical alert")

	// Resolving the alert restores the go verdict.
	require.True(t, alerts.Resolve(alert.ID))
	rep = b.Build(healthyRun(), passingSummary(), nil, alerts)
	assert.True(t, rep.OverallSuccess)
	assert.Zero(t, rep.UnresolvedCritical)
}

func TestBuildIsIdempotent(t *testing.T) {
	b := NewBuilder(time.Hour, testLogger())
	store := monitoring.NewSampleStore(100)
	store.Append(monitoring.MetricSample{Kind: monitoring.MetricCPUUsage, Value: 0.4, Timestamp: time.Now()})
	alerts := monitoring.NewAlertLog()

	first := b.Build(healthyRun(), passingSummary(), store, alerts)
	second := b.Build(healthyRun(), passingSummary(), store, alerts)

	assert.Equal(t, first.Scores, second.Scores)
	assert.Equal(t, first.SuccessRate, second.SuccessRate)
	assert.Equal(t, first.OverallSuccess, second.OverallSuccess)
	assert.Equal(t, first.Recommendations, second.Recommendations)
	assert.Equal(t, first.MetricSummaries, second.MetricSummaries)
}

func TestPerformanceScoreFormula(t *testing.T) {
	results := []loadtest.Result{
		{Family: loadtest.FamilyPerformance, Success: true},                                         // 1.0
		{Family: loadtest.FamilyPerformance, Success: false, ResponseTime: 2 * time.Second},         // 0.8
		{Family: loadtest.FamilyPerformance, Success: false, ResponseTime: 8 * time.Second},         // 0.0
		{Family: loadtest.FamilyFunctional, Success: false, ResponseTime: 100 * time.Millisecond},   // ignored
	}
	assert.InDelta(t, 0.6, performanceScore(results), 1e-9)
	assert.Equal(t, 0.0, performanceScore(nil))
}

func TestRecommendationPriorityOrder(t *testing.T) {
	summary := passingSummary()
	summary.PassedTests = 1
	summary.SuccessRate = 1.0 / 3.0
	summary.ScalabilityScore = 0.2
	summary.ConcurrencyScore = 0.3
	summary.Results = []loadtest.Result{
		{Family: loadtest.FamilyPerformance, Success: false, ResponseTime: 20 * time.Second},
	}

	alerts := monitoring.NewAlertLog()
	alerts.Append(monitoring.Evaluate(
		monitoring.MetricSample{Kind: monitoring.MetricResponseTime, Value: 30.0, Timestamp: time.Now()},
		monitoring.DefaultThresholds()))

	b := NewBuilder(time.Hour, testLogger())
	rep := b.Build(healthyRun(), summary, nil, alerts)

	require.Len(t, rep.Recommendations, 5)
	assert.Contains(t, rep.Recommendations[0], "critical alert")
	assert.Contains(t, rep.Recommendations[1], "reliability")
	assert.Contains(t, rep.Recommendations[2], "scalability")
	assert.Contains(t, rep.Recommendations[3], "concurrent sessions")
	assert.Contains(t, rep.Recommendations[4], "performance score")
	assert.False(t, rep.OverallSuccess)
}

func TestFailedRunWithoutSummaryStillProducesReport(t *testing.T) {
	info := RunInfo{
		ID:            "run-2",
		Environment:   "production",
		State:         "failed",
		FailedPhase:   "pre-checks",
		FailureReason: "API Connectivity unreachable",
		StartedAt:     time.Now(),
		StateHistory:  []string{"pending", "pre-checks", "failed"},
	}
	b := NewBuilder(time.Hour, testLogger())
	rep := b.Build(info, nil, nil, nil)

	assert.False(t, rep.OverallSuccess)
	assert.Equal(t, "pre-checks", rep.FailedPhase)
	assert.Zero(t, rep.SuccessRate)
	assert.Empty(t, rep.TestResults)
}

func TestMetricSummariesUseWindow(t *testing.T) {
	store := monitoring.NewSampleStore(100)
	now := time.Now()
	store.Append(monitoring.MetricSample{Kind: monitoring.MetricCPUUsage, Value: 0.9, Timestamp: now.Add(-2 * time.Hour)})
	store.Append(monitoring.MetricSample{Kind: monitoring.MetricCPUUsage, Value: 0.2, Timestamp: now})
	store.Append(monitoring.MetricSample{Kind: monitoring.MetricCPUUsage, Value: 0.4, Timestamp: now})

	b := NewBuilder(time.Hour, testLogger())
	rep := b.Build(healthyRun(), nil, store, nil)

	require.Len(t, rep.MetricSummaries, 1)
	s := rep.MetricSummaries[0]
	assert.Equal(t, monitoring.MetricCPUUsage, s.Kind)
	assert.Equal(t, 2, s.Count, "the stale sample is outside the window")
	assert.InDelta(t, 0.3, s.Avg, 1e-9)
	assert.Equal(t, 0.4, s.Latest)
	assert.Equal(t, 0.2, s.Min)
}

func TestWriteJSONRoundTrip(t *testing.T) {
	b := NewBuilder(time.Hour, testLogger())
	rep := b.Build(healthyRun(), passingSummary(), nil, monitoring.NewAlertLog())

	var buf bytes.Buffer
	require.NoError(t, rep.WriteJSON(&buf))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, rep.RunID, decoded.RunID)
	assert.Equal(t, rep.Scores, decoded.Scores)
	assert.Equal(t, rep.OverallSuccess, decoded.OverallSuccess)
}
