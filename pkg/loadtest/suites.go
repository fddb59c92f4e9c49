package loadtest

import (
	"context"
	"fmt"
	"time"

	"github.com/prodgate/prodgate/pkg/target"
)

// spikeFailureRatio marks a spike sub-test failed when throughput under
// spike load drops below half of the baseline
const spikeFailureRatio = 0.5

// Scenario is one named functional test case. Verify may be nil, in
// which case a non-empty response body counts as success.
type Scenario struct {
	Name    string
	Family  Family
	Request target.Request
	Verify  func(*target.Response) error
}

// DefaultScenarios returns the built-in functional scenario set
func DefaultScenarios() []Scenario {
	nonEmpty := func(resp *target.Response) error {
		if resp == nil || resp.Body == "" {
			return fmt.Errorf("empty response")
		}
		return nil
	}
	return []Scenario{
		{Name: "Basic Invocation", Family: FamilyFunctional, Request: target.Request{Operation: "invoke"}, Verify: nonEmpty},
		{Name: "API Round Trip", Family: FamilyAPI, Request: target.Request{Operation: "api"}, Verify: nonEmpty},
		{Name: "Persistence Probe", Family: FamilyDatabase, Request: target.Request{Operation: "store"}},
		{Name: "API Response Time", Family: FamilyPerformance, Request: target.Request{Operation: "probe"}},
		{Name: "Search Latency", Family: FamilyPerformance, Request: target.Request{Operation: "search"}},
		{Name: "End To End Flow", Family: FamilyEndToEnd, Request: target.Request{Operation: "workflow"}, Verify: nonEmpty},
	}
}

// runFunctionalSuite runs each scenario once. Failures are recorded but
// never abort the suite: all scenarios run to completion.
func (h *Harness) runFunctionalSuite(ctx context.Context) {
	for _, scenario := range h.scenarios {
		h.record(h.runScenario(ctx, scenario))
	}
}

func (h *Harness) runScenario(ctx context.Context, scenario Scenario) Result {
	family := scenario.Family
	if family == "" {
		family = FamilyFunctional
	}

	callCtx, cancel := context.WithTimeout(ctx, h.config.CallTimeout)
	defer cancel()

	start := time.Now()
	resp, err := h.target.Invoke(callCtx, scenario.Request)
	elapsed := time.Since(start)

	if err == nil && scenario.Verify != nil {
		err = scenario.Verify(resp)
	}

	return Result{
		Name:         scenario.Name,
		Family:       family,
		Component:    h.config.Component,
		Success:      err == nil,
		Duration:     elapsed,
		ResponseTime: elapsed,
		Error:        errorText(err),
		Timestamp:    start,
	}
}

// runScalabilitySuite measures throughput at increasing concurrency
// levels. Each level's throughput is normalized by the level and clamped
// to [0,1]; the suite's scalability score is the mean across levels.
func (h *Harness) runScalabilitySuite(ctx context.Context) {
	for _, level := range h.config.ScalabilityLevels {
		start := time.Now()
		calls, wall := h.runBatch(ctx, level)
		stats := computeLatencyStats(calls)

		tput := throughput(stats.success, wall)
		normalized := clamp01(tput / float64(level))

		h.mu.Lock()
		h.normalized = append(h.normalized, normalized)
		h.mu.Unlock()

		metrics := statsMetrics(stats)
		metrics["level"] = float64(level)
		metrics["throughput"] = tput
		metrics["normalized_throughput"] = normalized

		h.record(Result{
			Name:      fmt.Sprintf("Scalability Level %d", level),
			Family:    FamilyScalability,
			Component: h.config.Component,
			Success:   stats.success == stats.total,
			Duration:  wall,
			Metrics:   metrics,
			Timestamp: start,
		})
	}
}

// runConcurrencySuite simulates N independent user sessions per level.
// Calls within one session are sequential with a think-time delay;
// sessions interleave freely.
func (h *Harness) runConcurrencySuite(ctx context.Context) {
	for _, level := range h.config.ConcurrencyLevels {
		start := time.Now()
		calls := h.runSessions(ctx, level)
		wall := time.Since(start)

		stats := computeLatencyStats(calls)
		cr := ConcurrencyResult{
			Level:           level,
			TotalRequests:   stats.total,
			Successful:      stats.success,
			Failed:          stats.total - stats.success,
			MinResponseTime: stats.min,
			AvgResponseTime: stats.avg,
			MaxResponseTime: stats.max,
			Throughput:      throughput(stats.success, wall),
		}
		if cr.TotalRequests > 0 {
			cr.SuccessRate = float64(cr.Successful) / float64(cr.TotalRequests)
			cr.ErrorRate = float64(cr.Failed) / float64(cr.TotalRequests)
		}

		h.mu.Lock()
		h.concurrency = append(h.concurrency, cr)
		h.mu.Unlock()

		metrics := statsMetrics(stats)
		metrics["level"] = float64(level)
		metrics["success_rate"] = cr.SuccessRate
		metrics["throughput"] = cr.Throughput

		h.record(Result{
			Name:      fmt.Sprintf("Concurrency Level %d", level),
			Family:    FamilyConcurrency,
			Component: h.config.Component,
			Success:   cr.Failed == 0,
			Duration:  wall,
			Metrics:   metrics,
			Timestamp: start,
		})
	}
}

// runSessions drives n concurrent sessions, each issuing a short fixed
// call sequence with think-time between calls
func (h *Harness) runSessions(ctx context.Context, n int) []callResult {
	calls := make([]callResult, n*h.config.SessionCalls)

	done := make(chan struct{})
	for s := 0; s < n; s++ {
		go func(session int) {
			defer func() { done <- struct{}{} }()
			for c := 0; c < h.config.SessionCalls; c++ {
				calls[session*h.config.SessionCalls+c] = h.call(ctx)
				if c < h.config.SessionCalls-1 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(h.config.ThinkTime):
					}
				}
			}
		}(s)
	}
	for s := 0; s < n; s++ {
		<-done
	}
	return calls
}

// runStressSuite executes the three stress variants
func (h *Harness) runStressSuite(ctx context.Context) {
	h.record(h.runHighLoad(ctx))
	h.record(h.runSustainedLoad(ctx))
	h.record(h.runSpikeLoad(ctx))
}

// runHighLoad launches fixed-size batches continuously for the stress
// duration. The deadline is soft: no new batch starts after it passes,
// but in-flight calls complete and are counted.
func (h *Harness) runHighLoad(ctx context.Context) Result {
	start := time.Now()
	deadline := start.Add(h.config.StressDuration)

	var all []callResult
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		batch, _ := h.runBatch(ctx, h.config.StressBatch)
		all = append(all, batch...)
	}
	wall := time.Since(start)

	stats := computeLatencyStats(all)
	tput := throughput(stats.success, wall)
	errorRate := 0.0
	if stats.total > 0 {
		errorRate = float64(stats.total-stats.success) / float64(stats.total)
	}

	metrics := statsMetrics(stats)
	metrics["throughput"] = tput
	metrics["error_rate"] = errorRate

	return Result{
		Name:      "Stress High Load",
		Family:    FamilyStress,
		Component: h.config.Component,
		Success:   stats.total > 0 && errorRate < 0.5,
		Duration:  wall,
		Metrics:   metrics,
		Timestamp: start,
	}
}

// runSustainedLoad executes a fixed batch at a fixed interval for the
// stress duration, sampling throughput at each iteration
func (h *Harness) runSustainedLoad(ctx context.Context) Result {
	start := time.Now()
	deadline := start.Add(h.config.StressDuration)

	var all []callResult
	var samples []float64
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		iterStart := time.Now()
		batch, batchWall := h.runBatch(ctx, h.config.StressBatch)
		all = append(all, batch...)

		successes := 0
		for _, c := range batch {
			if c.ok {
				successes++
			}
		}
		samples = append(samples, throughput(successes, batchWall))

		// Hold the fixed cadence; a batch slower than the interval
		// starts the next iteration immediately.
		if wait := h.config.SustainedInterval - time.Since(iterStart); wait > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
		}
	}
	wall := time.Since(start)

	stats := computeLatencyStats(all)
	errorRate := 0.0
	if stats.total > 0 {
		errorRate = float64(stats.total-stats.success) / float64(stats.total)
	}

	minT, maxT := minMax(samples)
	metrics := statsMetrics(stats)
	metrics["samples"] = float64(len(samples))
	metrics["avg_throughput"] = mean(samples)
	metrics["min_throughput"] = minT
	metrics["max_throughput"] = maxT
	metrics["error_rate"] = errorRate

	return Result{
		Name:      "Stress Sustained Load",
		Family:    FamilyStress,
		Component: h.config.Component,
		Success:   len(samples) > 0 && errorRate < 0.5,
		Duration:  wall,
		Metrics:   metrics,
		Timestamp: start,
	}
}

// runSpikeLoad compares throughput under a load spike against a low
// baseline concurrency
func (h *Harness) runSpikeLoad(ctx context.Context) Result {
	start := time.Now()

	baseCalls, baseWall := h.runBatch(ctx, h.config.SpikeBaseline)
	baseStats := computeLatencyStats(baseCalls)
	baseline := throughput(baseStats.success, baseWall)

	spikeCalls, spikeWall := h.runBatch(ctx, h.config.SpikeConcurrency)
	spikeStats := computeLatencyStats(spikeCalls)
	spike := throughput(spikeStats.success, spikeWall)

	ratio := spikeRatio(baseline, spike)

	return Result{
		Name:      "Stress Spike Load",
		Family:    FamilyStress,
		Component: h.config.Component,
		Success:   ratio >= spikeFailureRatio,
		Duration:  time.Since(start),
		Metrics: map[string]float64{
			"baseline_throughput": baseline,
			"spike_throughput":    spike,
			"spike_ratio":         ratio,
		},
		Timestamp: start,
	}
}

// spikeRatio is spike throughput over baseline throughput
func spikeRatio(baseline, spike float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return spike / baseline
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
