package loadtest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodgate/prodgate/pkg/logging"
	"github.com/prodgate/prodgate/pkg/target"
)

// fakeTarget answers every invocation after a fixed delay, optionally
// failing specific operations
type fakeTarget struct {
	delay   time.Duration
	failOps map[string]bool
	calls   int64
}

func (f *fakeTarget) Invoke(ctx context.Context, req target.Request) (*target.Response, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.failOps[req.Operation] {
		return nil, fmt.Errorf("operation %s rejected", req.Operation)
	}
	return &target.Response{Body: "ok"}, nil
}

func testLogger() *logging.StructuredLogger {
	return logging.NewStructuredLogger(logging.Config{Level: logging.LevelError, ServiceName: "prodgate-test"})
}

func fastConfig() Config {
	return Config{
		CallTimeout:       time.Second,
		ScalabilityLevels: []int{1, 5, 10},
		ConcurrencyLevels: []int{2, 5},
		SessionCalls:      2,
		ThinkTime:         time.Millisecond,
		StressDuration:    60 * time.Millisecond,
		StressBatch:       4,
		SustainedInterval: 10 * time.Millisecond,
		SpikeBaseline:     2,
		SpikeConcurrency:  8,
	}
}

func TestRunAllAgainstHealthyTarget(t *testing.T) {
	h := NewHarness(fastConfig(), &fakeTarget{delay: time.Millisecond}, testLogger())

	summary := h.RunAll(context.Background())
	require.NotNil(t, summary)

	assert.Equal(t, len(summary.Results), summary.TotalTests)
	assert.Equal(t, summary.TotalTests, summary.PassedTests, "healthy target must pass everything")
	assert.Equal(t, 1.0, summary.SuccessRate)
	assert.Equal(t, 1.0, summary.ConcurrencyScore)
	assert.Greater(t, summary.ScalabilityScore, 0.0)
	assert.LessOrEqual(t, summary.ScalabilityScore, 1.0)
}

func TestConcurrencySuccessRateComputedPerLevel(t *testing.T) {
	// Against an always-succeeding target every tested level reports a
	// 1.0 success rate.
	h := NewHarness(fastConfig(), &fakeTarget{delay: time.Millisecond}, testLogger())
	h.runConcurrencySuite(context.Background())

	summary := h.Summary()
	require.Len(t, summary.ConcurrencyResults, 2)
	for _, cr := range summary.ConcurrencyResults {
		assert.Equal(t, 1.0, cr.SuccessRate, "level %d", cr.Level)
		assert.Equal(t, 0.0, cr.ErrorRate)
		assert.Equal(t, cr.Level*2, cr.TotalRequests)
		assert.Zero(t, cr.Failed)
	}
	assert.Equal(t, 1.0, summary.ConcurrencyScore)
}

func TestScalabilityScoreIsMeanOfNormalizedLevels(t *testing.T) {
	// Per-level throughput exactly equal to the level normalizes to 1.0
	// at every level, so the suite score is 1.0.
	h := NewHarness(fastConfig(), &fakeTarget{}, testLogger())
	h.normalized = []float64{1.0, 1.0, 1.0}

	assert.Equal(t, 1.0, h.Summary().ScalabilityScore)

	h.normalized = []float64{1.0, 0.5, 0.0}
	assert.InDelta(t, 0.5, h.Summary().ScalabilityScore, 1e-9)
}

func TestScalabilitySuiteRecordsEveryLevel(t *testing.T) {
	h := NewHarness(fastConfig(), &fakeTarget{delay: time.Millisecond}, testLogger())
	h.runScalabilitySuite(context.Background())

	summary := h.Summary()
	require.Len(t, summary.Results, 3)
	for i, level := range []float64{1, 5, 10} {
		res := summary.Results[i]
		assert.Equal(t, FamilyScalability, res.Family)
		assert.Equal(t, level, res.Metrics["level"])
		assert.True(t, res.Success)
		normalized := res.Metrics["normalized_throughput"]
		assert.GreaterOrEqual(t, normalized, 0.0)
		assert.LessOrEqual(t, normalized, 1.0)
	}
}

func TestFunctionalSuiteIsolatesFailures(t *testing.T) {
	tgt := &fakeTarget{failOps: map[string]bool{"api": true}}
	h := NewHarness(fastConfig(), tgt, testLogger())
	h.runFunctionalSuite(context.Background())

	summary := h.Summary()
	require.Len(t, summary.Results, len(DefaultScenarios()), "all scenarios must run to completion")

	var failed []string
	for _, res := range summary.Results {
		if !res.Success {
			failed = append(failed, res.Name)
			assert.NotEmpty(t, res.Error)
		}
	}
	assert.Equal(t, []string{"API Round Trip"}, failed)
}

func TestSpikeRatio(t *testing.T) {
	// Baseline 10.0 and spike 3.0 yields a 0.3 ratio, below the 0.5
	// failure line.
	ratio := spikeRatio(10.0, 3.0)
	assert.InDelta(t, 0.3, ratio, 1e-9)
	assert.Less(t, ratio, spikeFailureRatio)

	assert.Equal(t, 0.0, spikeRatio(0, 100), "zero baseline cannot produce a ratio")
	assert.GreaterOrEqual(t, spikeRatio(10, 12), spikeFailureRatio)
}

func TestSpikeLoadAgainstHealthyTarget(t *testing.T) {
	h := NewHarness(fastConfig(), &fakeTarget{delay: time.Millisecond}, testLogger())
	res := h.runSpikeLoad(context.Background())

	assert.Equal(t, FamilyStress, res.Family)
	assert.True(t, res.Success)
	assert.Greater(t, res.Metrics["baseline_throughput"], 0.0)
	assert.Greater(t, res.Metrics["spike_ratio"], 0.0)
}

func TestHighLoadHonorsSoftDeadline(t *testing.T) {
	cfg := fastConfig()
	cfg.StressDuration = 50 * time.Millisecond
	tgt := &fakeTarget{delay: 5 * time.Millisecond}
	h := NewHarness(cfg, tgt, testLogger())

	res := h.runHighLoad(context.Background())

	assert.True(t, res.Success)
	assert.GreaterOrEqual(t, res.Duration, cfg.StressDuration)
	// In-flight calls issued before the deadline are all counted.
	assert.Equal(t, float64(atomic.LoadInt64(&tgt.calls)), res.Metrics["total_calls"])
	assert.Greater(t, res.Metrics["throughput"], 0.0)
}

func TestSustainedLoadSamplesThroughput(t *testing.T) {
	cfg := fastConfig()
	cfg.StressDuration = 50 * time.Millisecond
	cfg.SustainedInterval = 10 * time.Millisecond
	h := NewHarness(cfg, &fakeTarget{delay: time.Millisecond}, testLogger())

	res := h.runSustainedLoad(context.Background())

	assert.True(t, res.Success)
	assert.GreaterOrEqual(t, res.Metrics["samples"], 1.0)
	assert.GreaterOrEqual(t, res.Metrics["max_throughput"], res.Metrics["min_throughput"])
	assert.Greater(t, res.Metrics["avg_throughput"], 0.0)
}

func TestCallCountsTimeoutAsFailure(t *testing.T) {
	cfg := fastConfig()
	cfg.CallTimeout = 10 * time.Millisecond
	h := NewHarness(cfg, &fakeTarget{delay: 200 * time.Millisecond}, testLogger())

	calls, _ := h.runBatch(context.Background(), 3)
	for _, c := range calls {
		assert.False(t, c.ok, "timed-out call must count as failed")
	}
}

func TestComputeLatencyStats(t *testing.T) {
	calls := []callResult{
		{ok: true, latency: 10 * time.Millisecond},
		{ok: true, latency: 20 * time.Millisecond},
		{ok: false, latency: 30 * time.Millisecond},
		{ok: true, latency: 40 * time.Millisecond},
	}
	stats := computeLatencyStats(calls)

	assert.Equal(t, 4, stats.total)
	assert.Equal(t, 3, stats.success)
	assert.Equal(t, 10*time.Millisecond, stats.min)
	assert.Equal(t, 40*time.Millisecond, stats.max)
	assert.Equal(t, 25*time.Millisecond, stats.avg)
	assert.Equal(t, 20*time.Millisecond, stats.p50)

	empty := computeLatencyStats(nil)
	assert.Zero(t, empty.total)
	assert.Zero(t, empty.avg)
}
