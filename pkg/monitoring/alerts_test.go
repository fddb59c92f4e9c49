package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firedAlert(severity Severity) *Alert {
	return newAlert(MetricSample{Kind: MetricErrorRate, Value: 0.2, Timestamp: time.Now()}, severity, 0.1)
}

func TestAlertLogAppendAndAll(t *testing.T) {
	log := NewAlertLog()
	log.Append(firedAlert(SeverityWarning))
	log.Append(firedAlert(SeverityCritical))
	log.Append(nil) // ignored

	require.Equal(t, 2, log.Len())

	all := log.All()
	require.Len(t, all, 2)
	assert.Equal(t, SeverityWarning, all[0].Severity)
	assert.Equal(t, SeverityCritical, all[1].Severity)
}

func TestAlertLogResolve(t *testing.T) {
	log := NewAlertLog()
	alert := firedAlert(SeverityCritical)
	log.Append(alert)

	require.Len(t, log.Unresolved(SeverityCritical), 1)

	assert.True(t, log.Resolve(alert.ID))
	assert.Empty(t, log.Unresolved(SeverityCritical))

	// Resolving twice or resolving an unknown id is a no-op.
	assert.False(t, log.Resolve(alert.ID))
	assert.False(t, log.Resolve("no-such-alert"))

	all := log.All()
	require.Len(t, all, 1)
	assert.True(t, all[0].Resolved)
	require.NotNil(t, all[0].ResolvedAt)
}

func TestAlertLogSnapshotsAreCopies(t *testing.T) {
	log := NewAlertLog()
	log.Append(firedAlert(SeverityWarning))

	all := log.All()
	all[0].Resolved = true

	assert.Len(t, log.Unresolved(SeverityWarning), 1, "mutating a snapshot must not affect the log")
}
