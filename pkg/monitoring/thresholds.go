package monitoring

import (
	"fmt"
)

// Threshold holds the warning and critical bounds for one metric kind
type Threshold struct {
	Warning  float64 `json:"warning" yaml:"warning"`
	Critical float64 `json:"critical" yaml:"critical"`
}

// ThresholdTable maps metric kinds to their alert bounds. The table is
// immutable after construction and safe for concurrent readers.
type ThresholdTable struct {
	thresholds map[MetricKind]Threshold
}

// lowerIsWorse reports whether a drop in the metric value is the bad
// direction. For availability and throughput the critical bound sits
// below the warning bound; for everything else it sits above.
func lowerIsWorse(kind MetricKind) bool {
	switch kind {
	case MetricAvailability, MetricThroughput:
		return true
	default:
		return false
	}
}

// NewThresholdTable validates and builds a threshold table. For each
// metric the critical bound must be at least as extreme as the warning
// bound in the metric's bad direction.
func NewThresholdTable(thresholds map[MetricKind]Threshold) (*ThresholdTable, error) {
	for kind, t := range thresholds {
		if lowerIsWorse(kind) {
			if t.Critical > t.Warning {
				return nil, fmt.Errorf("invalid thresholds for %s: critical %.3f must not exceed warning %.3f", kind, t.Critical, t.Warning)
			}
		} else if t.Critical < t.Warning {
			return nil, fmt.Errorf("invalid thresholds for %s: critical %.3f must not be below warning %.3f", kind, t.Critical, t.Warning)
		}
	}

	table := make(map[MetricKind]Threshold, len(thresholds))
	for kind, t := range thresholds {
		table[kind] = t
	}
	return &ThresholdTable{thresholds: table}, nil
}

// DefaultThresholds returns the built-in threshold table used when no
// external configuration is supplied. Time-valued bounds are seconds,
// usage bounds are fractions of capacity.
func DefaultThresholds() *ThresholdTable {
	table, err := NewThresholdTable(map[MetricKind]Threshold{
		MetricResponseTime: {Warning: 5.0, Critical: 10.0},
		MetricErrorRate:    {Warning: 0.05, Critical: 0.10},
		MetricCPUUsage:     {Warning: 0.70, Critical: 0.90},
		MetricMemoryUsage:  {Warning: 0.75, Critical: 0.90},
		MetricAvailability: {Warning: 0.95, Critical: 0.90},
		MetricThroughput:   {Warning: 10.0, Critical: 5.0},
		MetricAPILatency:   {Warning: 2.0, Critical: 5.0},
	})
	if err != nil {
		// The built-in table is statically correct.
		panic(fmt.Sprintf("default threshold table invalid: %v", err))
	}
	return table
}

// Get returns the threshold for a metric kind
func (t *ThresholdTable) Get(kind MetricKind) (Threshold, bool) {
	threshold, ok := t.thresholds[kind]
	return threshold, ok
}

// Kinds returns the metric kinds covered by the table
func (t *ThresholdTable) Kinds() []MetricKind {
	kinds := make([]MetricKind, 0, len(t.thresholds))
	for kind := range t.thresholds {
		kinds = append(kinds, kind)
	}
	return kinds
}
