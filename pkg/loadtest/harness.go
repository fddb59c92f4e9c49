// Package loadtest drives concurrent load against the target system and
// aggregates throughput, latency and success metrics across four suite
// families: functional, scalability, concurrency and stress.
package loadtest

import (
	"context"
	"sync"
	"time"

	"github.com/prodgate/prodgate/pkg/logging"
	"github.com/prodgate/prodgate/pkg/target"
)

// Config holds configuration for the load test harness
type Config struct {
	Component         string        `json:"component"`
	CallTimeout       time.Duration `json:"call_timeout"`
	ScalabilityLevels []int         `json:"scalability_levels"`
	ConcurrencyLevels []int         `json:"concurrency_levels"`
	SessionCalls      int           `json:"session_calls"`
	ThinkTime         time.Duration `json:"think_time"`
	StressDuration    time.Duration `json:"stress_duration"`
	StressBatch       int           `json:"stress_batch"`
	SustainedInterval time.Duration `json:"sustained_interval"`
	SpikeBaseline     int           `json:"spike_baseline"`
	SpikeConcurrency  int           `json:"spike_concurrency"`
}

func (c *Config) applyDefaults() {
	if c.Component == "" {
		c.Component = "target-system"
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 10 * time.Second
	}
	if len(c.ScalabilityLevels) == 0 {
		c.ScalabilityLevels = []int{1, 5, 10, 25, 50}
	}
	if len(c.ConcurrencyLevels) == 0 {
		c.ConcurrencyLevels = []int{2, 5, 10, 20}
	}
	if c.SessionCalls == 0 {
		c.SessionCalls = 3
	}
	if c.ThinkTime == 0 {
		c.ThinkTime = 100 * time.Millisecond
	}
	if c.StressDuration == 0 {
		c.StressDuration = 10 * time.Second
	}
	if c.StressBatch == 0 {
		c.StressBatch = 10
	}
	if c.SustainedInterval == 0 {
		c.SustainedInterval = time.Second
	}
	if c.SpikeBaseline == 0 {
		c.SpikeBaseline = 5
	}
	if c.SpikeConcurrency == 0 {
		c.SpikeConcurrency = 50
	}
}

// Harness runs the four test suites against one target system. Suite
// failures are isolated per test case and recorded; they never abort
// another suite.
type Harness struct {
	mu          sync.Mutex
	config      Config
	target      target.Target
	scenarios   []Scenario
	logger      *logging.StructuredLogger
	results     []Result
	concurrency []ConcurrencyResult
	normalized  []float64 // per-level normalized scalability throughput
}

// NewHarness creates a load test harness. When scenarios is empty the
// default functional scenario set is used.
func NewHarness(config Config, tgt target.Target, logger *logging.StructuredLogger, scenarios ...Scenario) *Harness {
	config.applyDefaults()
	if len(scenarios) == 0 {
		scenarios = DefaultScenarios()
	}
	return &Harness{
		config:    config,
		target:    tgt,
		scenarios: scenarios,
		logger:    logger.WithComponent("loadtest"),
	}
}

// RunAll executes every suite and returns the aggregated summary. It
// never returns an error: individual failures are recorded as results.
func (h *Harness) RunAll(ctx context.Context) *Summary {
	h.logger.InfoWithContext("Load test harness starting",
		"scenarios", len(h.scenarios),
		"scalability_levels", len(h.config.ScalabilityLevels),
		"concurrency_levels", len(h.config.ConcurrencyLevels),
	)

	h.runFunctionalSuite(ctx)
	h.runScalabilitySuite(ctx)
	h.runConcurrencySuite(ctx)
	h.runStressSuite(ctx)

	return h.Summary()
}

// Summary builds the aggregate over everything recorded so far
func (h *Harness) Summary() *Summary {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := &Summary{
		Results:            append([]Result(nil), h.results...),
		ConcurrencyResults: append([]ConcurrencyResult(nil), h.concurrency...),
		ScalabilityScore:   mean(h.normalized),
		TotalTests:         len(h.results),
	}

	for _, res := range h.results {
		if res.Success {
			s.PassedTests++
		}
	}
	if s.TotalTests > 0 {
		s.SuccessRate = float64(s.PassedTests) / float64(s.TotalTests)
	}

	rates := make([]float64, 0, len(h.concurrency))
	for _, cr := range h.concurrency {
		rates = append(rates, cr.SuccessRate)
	}
	s.ConcurrencyScore = mean(rates)

	return s
}

// record appends a test result and logs its outcome
func (h *Harness) record(res Result) {
	h.mu.Lock()
	h.results = append(h.results, res)
	h.mu.Unlock()

	h.logger.LogTestResult(res.Name, string(res.Family), res.Success, res.Duration)
}

// runBatch issues k concurrent calls and collects per-call results. It
// is the single primitive all suites are built on.
func (h *Harness) runBatch(ctx context.Context, k int) ([]callResult, time.Duration) {
	calls := make([]callResult, k)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			calls[i] = h.call(ctx)
		}(i)
	}
	wg.Wait()

	return calls, time.Since(start)
}

// call issues one request with the per-call timeout
func (h *Harness) call(ctx context.Context) callResult {
	callCtx, cancel := context.WithTimeout(ctx, h.config.CallTimeout)
	defer cancel()

	start := time.Now()
	resp, err := h.target.Invoke(callCtx, target.Request{Operation: "load"})
	latency := time.Since(start)

	ok := err == nil && resp != nil
	return callResult{ok: ok, latency: latency}
}

// throughput is successes per wall-clock second
func throughput(successes int, wall time.Duration) float64 {
	seconds := wall.Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(successes) / seconds
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// statsMetrics flattens latency stats into a result metric map
func statsMetrics(stats latencyStats) map[string]float64 {
	return map[string]float64{
		"total_calls":    float64(stats.total),
		"successful":     float64(stats.success),
		"avg_latency_ms": float64(stats.avg.Milliseconds()),
		"p50_latency_ms": float64(stats.p50.Milliseconds()),
		"p95_latency_ms": float64(stats.p95.Milliseconds()),
		"p99_latency_ms": float64(stats.p99.Milliseconds()),
	}
}
