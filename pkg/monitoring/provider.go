package monitoring

import (
	"context"
	"time"

	"github.com/prodgate/prodgate/pkg/target"
)

// ProbeProvider derives application metrics by issuing a short burst of
// probe calls against the target system each monitoring iteration
type ProbeProvider struct {
	target  target.Target
	probes  int
	timeout time.Duration
}

// NewProbeProvider creates a probe-based application metrics provider
func NewProbeProvider(tgt target.Target, probes int, timeout time.Duration) *ProbeProvider {
	if probes <= 0 {
		probes = 5
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ProbeProvider{target: tgt, probes: probes, timeout: timeout}
}

// Collect issues the probe burst and aggregates it into AppMetrics
func (p *ProbeProvider) Collect(ctx context.Context) (AppMetrics, error) {
	start := time.Now()
	var totalLatency time.Duration
	failures := 0

	for i := 0; i < p.probes; i++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		callStart := time.Now()
		_, err := p.target.Invoke(callCtx, target.Request{Operation: "monitor-probe"})
		cancel()

		totalLatency += time.Since(callStart)
		if err != nil {
			failures++
		}
		if ctx.Err() != nil {
			break
		}
	}

	wall := time.Since(start).Seconds()
	metrics := AppMetrics{
		ResponseTime: (totalLatency / time.Duration(p.probes)).Seconds(),
		ErrorRate:    float64(failures) / float64(p.probes),
	}
	if wall > 0 {
		metrics.Throughput = float64(p.probes-failures) / wall
	}
	return metrics, nil
}
