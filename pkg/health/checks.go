package health

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/prodgate/prodgate/pkg/target"
)

// APIConnectivityCheck verifies the target system answers at all
type APIConnectivityCheck struct{}

func (c *APIConnectivityCheck) Name() string { return "API Connectivity" }

func (c *APIConnectivityCheck) Run(ctx context.Context, tgt target.Target) (map[string]interface{}, error) {
	resp, err := tgt.Invoke(ctx, target.Request{Operation: "ping"})
	if err != nil {
		return nil, fmt.Errorf("target unreachable: %w", err)
	}
	if resp == nil || resp.Body == "" {
		return nil, fmt.Errorf("target returned an empty response")
	}
	return map[string]interface{}{"response_bytes": len(resp.Body)}, nil
}

// ResponseTimeCheck verifies a single probe completes within a limit
type ResponseTimeCheck struct {
	Limit time.Duration
}

func (c *ResponseTimeCheck) Name() string { return "Response Time" }

func (c *ResponseTimeCheck) Run(ctx context.Context, tgt target.Target) (map[string]interface{}, error) {
	limit := c.Limit
	if limit == 0 {
		limit = 5 * time.Second
	}

	start := time.Now()
	_, err := tgt.Invoke(ctx, target.Request{Operation: "probe"})
	elapsed := time.Since(start)

	detail := map[string]interface{}{
		"elapsed_ms": elapsed.Milliseconds(),
		"limit_ms":   limit.Milliseconds(),
	}
	if err != nil {
		return detail, fmt.Errorf("probe failed: %w", err)
	}
	if elapsed > limit {
		return detail, fmt.Errorf("probe took %v, limit is %v", elapsed, limit)
	}
	return detail, nil
}

// DependencyCheck asks the target for its dependency status
type DependencyCheck struct{}

func (c *DependencyCheck) Name() string { return "Dependency Status" }

func (c *DependencyCheck) Run(ctx context.Context, tgt target.Target) (map[string]interface{}, error) {
	resp, err := tgt.Invoke(ctx, target.Request{Operation: "status"})
	if err != nil {
		return nil, fmt.Errorf("status probe failed: %w", err)
	}
	detail := map[string]interface{}{"response_bytes": len(resp.Body)}
	for k, v := range resp.Metadata {
		detail[k] = v
	}
	return detail, nil
}

// ResourceHeadroomCheck verifies the host running the deployment has CPU
// and memory headroom left before any environment mutation begins
type ResourceHeadroomCheck struct {
	MaxCPU    float64 // fraction, default 0.90
	MaxMemory float64 // fraction, default 0.90
}

func (c *ResourceHeadroomCheck) Name() string { return "Resource Headroom" }

func (c *ResourceHeadroomCheck) Run(ctx context.Context, _ target.Target) (map[string]interface{}, error) {
	maxCPU := c.MaxCPU
	if maxCPU == 0 {
		maxCPU = 0.90
	}
	maxMem := c.MaxMemory
	if maxMem == 0 {
		maxMem = 0.90
	}

	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("reading cpu usage: %w", err)
	}
	cpuUsage := 0.0
	if len(percentages) > 0 {
		cpuUsage = percentages[0] / 100.0
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading memory usage: %w", err)
	}
	memUsage := vm.UsedPercent / 100.0

	detail := map[string]interface{}{
		"cpu_usage":    cpuUsage,
		"memory_usage": memUsage,
	}
	if cpuUsage > maxCPU {
		return detail, fmt.Errorf("cpu usage %.2f exceeds limit %.2f", cpuUsage, maxCPU)
	}
	if memUsage > maxMem {
		return detail, fmt.Errorf("memory usage %.2f exceeds limit %.2f", memUsage, maxMem)
	}
	return detail, nil
}

// DefaultChecks returns the ordered pre-deployment check set
func DefaultChecks() []Check {
	return []Check{
		&APIConnectivityCheck{},
		&ResponseTimeCheck{},
		&DependencyCheck{},
		&ResourceHeadroomCheck{},
	}
}
