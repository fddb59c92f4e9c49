package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/prodgate/prodgate/pkg/logging"
)

var (
	monitoringIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prodgate_monitoring_iterations_total",
		Help: "Total number of monitoring loop iterations",
	}, []string{"status"})

	alertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prodgate_alerts_fired_total",
		Help: "Total number of alerts fired by the monitoring loop",
	}, []string{"severity", "metric"})

	latestMetricValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "prodgate_metric_latest_value",
		Help: "Latest observed value per metric kind",
	}, []string{"metric"})
)

// AppMetrics is one observation of the target system's application-level
// behavior
type AppMetrics struct {
	ResponseTime float64 `json:"response_time"` // seconds
	Throughput   float64 `json:"throughput"`    // requests per second
	ErrorRate    float64 `json:"error_rate"`    // fraction in [0,1]
}

// AppMetricsProvider supplies application metrics for each monitoring
// iteration
type AppMetricsProvider interface {
	Collect(ctx context.Context) (AppMetrics, error)
}

// SystemCollector gathers host-level metrics as fractions of capacity
type SystemCollector interface {
	Collect(ctx context.Context) (cpuUsage, memUsage, diskUsage float64, err error)
}

// HostCollector implements SystemCollector via gopsutil
type HostCollector struct {
	diskPath string
}

// NewHostCollector creates a host metrics collector. diskPath defaults
// to the root filesystem.
func NewHostCollector(diskPath string) *HostCollector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostCollector{diskPath: diskPath}
}

// Collect reads CPU, memory and disk utilization
func (h *HostCollector) Collect(ctx context.Context) (float64, float64, float64, error) {
	percentages, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("collecting cpu usage: %w", err)
	}
	cpuUsage := 0.0
	if len(percentages) > 0 {
		cpuUsage = percentages[0] / 100.0
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("collecting memory usage: %w", err)
	}

	usage, err := disk.UsageWithContext(ctx, h.diskPath)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("collecting disk usage: %w", err)
	}

	return cpuUsage, vm.UsedPercent / 100.0, usage.UsedPercent / 100.0, nil
}

// MonitorConfig holds configuration for the monitoring loop
type MonitorConfig struct {
	Interval       time.Duration `json:"interval"`
	FailureBackoff time.Duration `json:"failure_backoff"`
	Component      string        `json:"component"`
	Environment    string        `json:"environment"`
}

// Monitor is the long-lived background task that samples system and
// application metrics, feeds the sample store and evaluates thresholds.
// It is started only after deployment validation succeeds and runs until
// explicitly cancelled.
type Monitor struct {
	mu       sync.Mutex
	config   MonitorConfig
	store    *SampleStore
	alerts   *AlertLog
	table    *ThresholdTable
	system   SystemCollector
	provider AppMetricsProvider
	logger   *logging.StructuredLogger
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewMonitor creates a monitoring loop. Zero-valued config fields get
// defaults (30s interval, 5s failure backoff).
func NewMonitor(config MonitorConfig, store *SampleStore, alerts *AlertLog, table *ThresholdTable, system SystemCollector, provider AppMetricsProvider, logger *logging.StructuredLogger) *Monitor {
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 5 * time.Second
	}
	if system == nil {
		system = NewHostCollector("")
	}
	return &Monitor{
		config:   config,
		store:    store,
		alerts:   alerts,
		table:    table,
		system:   system,
		provider: provider,
		logger:   logger.WithComponent("monitoring"),
	}
}

// Start launches the monitoring loop in the background
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.run(ctx)

	m.logger.InfoWithContext("Monitoring loop started",
		"interval", m.config.Interval.String(),
	)
	return nil
}

// Stop requests cooperative cancellation and waits for the loop to exit
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	<-done
	m.logger.InfoWithContext("Monitoring loop stopped")
}

// Running reports whether the loop is active
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// run executes monitoring iterations until cancelled. A failed iteration
// is logged and retried after a short backoff; the loop never terminates
// on its own.
func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.iterate(ctx); err != nil {
				monitoringIterations.WithLabelValues("error").Inc()
				m.logger.ErrorWithContext("Monitoring iteration failed", err)

				select {
				case <-ctx.Done():
					return
				case <-m.stopCh:
					return
				case <-time.After(m.config.FailureBackoff):
				}
				continue
			}
			monitoringIterations.WithLabelValues("ok").Inc()
		}
	}
}

// iterate performs a single sample-and-evaluate pass
func (m *Monitor) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitoring iteration panicked: %v", r)
		}
	}()

	now := time.Now()
	samples := make([]MetricSample, 0, 8)

	cpuUsage, memUsage, diskUsage, sysErr := m.system.Collect(ctx)
	if sysErr != nil {
		return fmt.Errorf("system metrics collection failed: %w", sysErr)
	}
	samples = append(samples,
		m.sample(MetricCPUUsage, cpuUsage, now),
		m.sample(MetricMemoryUsage, memUsage, now),
		m.sample(MetricDiskUsage, diskUsage, now),
	)

	if m.provider != nil {
		app, appErr := m.provider.Collect(ctx)
		if appErr != nil {
			return fmt.Errorf("application metrics collection failed: %w", appErr)
		}
		samples = append(samples,
			m.sample(MetricResponseTime, app.ResponseTime, now),
			m.sample(MetricThroughput, app.Throughput, now),
			m.sample(MetricErrorRate, app.ErrorRate, now),
			m.sample(MetricAvailability, 1.0-app.ErrorRate, now),
		)
	}

	for _, s := range samples {
		m.store.Append(s)
		latestMetricValue.WithLabelValues(string(s.Kind)).Set(s.Value)
	}

	// Evaluate only the latest sample of each kind collected this pass.
	for _, s := range samples {
		if alert := Evaluate(s, m.table); alert != nil {
			m.alerts.Append(alert)
			alertsFired.WithLabelValues(string(alert.Severity), string(alert.Kind)).Inc()
			m.logger.LogAlert(alert.ID, string(alert.Severity), string(alert.Kind), alert.Value, alert.Threshold)
		}
	}

	return nil
}

func (m *Monitor) sample(kind MetricKind, value float64, ts time.Time) MetricSample {
	return MetricSample{
		Kind:        kind,
		Value:       value,
		Timestamp:   ts,
		Component:   m.config.Component,
		Environment: m.config.Environment,
	}
}
