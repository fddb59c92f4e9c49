package monitoring

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity represents the severity of an alert
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Alert records a single threshold crossing. Alerts are kept for audit
// and are never deleted; the only permitted mutation is resolution.
type Alert struct {
	ID         string     `json:"id"`
	Severity   Severity   `json:"severity"`
	Kind       MetricKind `json:"kind"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Evaluate checks one sample against the threshold table and returns at
// most one alert. The critical bound is checked first; the warning bound
// only when critical did not fire. Returns nil when the sample is inside
// bounds or the table has no entry for its kind.
func Evaluate(sample MetricSample, table *ThresholdTable) *Alert {
	threshold, ok := table.Get(sample.Kind)
	if !ok {
		return nil
	}

	crossed := func(bound float64) bool {
		if lowerIsWorse(sample.Kind) {
			return sample.Value < bound
		}
		return sample.Value > bound
	}

	switch {
	case crossed(threshold.Critical):
		return newAlert(sample, SeverityCritical, threshold.Critical)
	case crossed(threshold.Warning):
		return newAlert(sample, SeverityWarning, threshold.Warning)
	default:
		return nil
	}
}

func newAlert(sample MetricSample, severity Severity, threshold float64) *Alert {
	return &Alert{
		ID:        uuid.NewString(),
		Severity:  severity,
		Kind:      sample.Kind,
		Value:     sample.Value,
		Threshold: threshold,
		Timestamp: sample.Timestamp,
	}
}

// AlertLog is a thread-safe, append-only alert store shared between the
// monitoring loop and the report builder
type AlertLog struct {
	mu     sync.RWMutex
	alerts []*Alert
}

// NewAlertLog creates an empty alert log
func NewAlertLog() *AlertLog {
	return &AlertLog{}
}

// Append records a fired alert
func (l *AlertLog) Append(alert *Alert) {
	if alert == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, alert)
}

// Resolve marks the alert with the given id resolved. Returns false if
// no such alert exists or it was already resolved.
func (l *AlertLog) Resolve(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, alert := range l.alerts {
		if alert.ID == id && !alert.Resolved {
			now := time.Now()
			alert.Resolved = true
			alert.ResolvedAt = &now
			return true
		}
	}
	return false
}

// All returns a snapshot copy of every recorded alert in firing order
func (l *AlertLog) All() []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Alert, 0, len(l.alerts))
	for _, alert := range l.alerts {
		out = append(out, *alert)
	}
	return out
}

// Unresolved returns a snapshot of unresolved alerts with the given
// severity
func (l *AlertLog) Unresolved(severity Severity) []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Alert, 0)
	for _, alert := range l.alerts {
		if !alert.Resolved && alert.Severity == severity {
			out = append(out, *alert)
		}
	}
	return out
}

// Len returns the number of recorded alerts
func (l *AlertLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.alerts)
}
