// Package deploy sequences a deployment run through pre-checks,
// preparation, deployment, validation and monitoring activation, and
// drives rollback when a phase past pre-checks fails.
package deploy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/prodgate/prodgate/pkg/health"
	"github.com/prodgate/prodgate/pkg/loadtest"
	"github.com/prodgate/prodgate/pkg/logging"
	"github.com/prodgate/prodgate/pkg/monitoring"
	"github.com/prodgate/prodgate/pkg/report"
	"github.com/prodgate/prodgate/pkg/target"
)

var (
	deploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prodgate_deployments_total",
		Help: "Total number of deployment runs by outcome",
	}, []string{"outcome"})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prodgate_phase_duration_seconds",
		Help:    "Duration of deployment phases",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"phase"})

	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prodgate_rollbacks_total",
		Help: "Total number of rollback sequences by outcome",
	}, []string{"outcome"})
)

// Config holds configuration for the deployment orchestrator
type Config struct {
	Environment       string             `json:"environment"`
	MinValidationRate float64            `json:"min_validation_rate"`
	ReportWindow      time.Duration      `json:"report_window"`
	MonitorInterval   time.Duration      `json:"monitor_interval"`
	MonitorProbes     int                `json:"monitor_probes"`
	SampleCapacity    int                `json:"sample_capacity"`
	Harness           loadtest.Config    `json:"harness"`
	Health            health.RunnerConfig `json:"health"`
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.MinValidationRate == 0 {
		c.MinValidationRate = 0.90
	}
	if c.ReportWindow == 0 {
		c.ReportWindow = time.Hour
	}
	if c.MonitorInterval == 0 {
		c.MonitorInterval = 30 * time.Second
	}
}

// Orchestrator is the top-level deployment state machine. It owns the
// metric sample store and alert log shared with the monitoring loop.
type Orchestrator struct {
	config   Config
	logger   *logging.StructuredLogger
	deployer Deployer
	checks   *health.Runner
	store    *monitoring.SampleStore
	alerts   *monitoring.AlertLog
	table    *monitoring.ThresholdTable
	builder  *report.Builder
	monitor  *monitoring.Monitor

	mu          sync.Mutex
	lastRun     *Run
	lastSummary *loadtest.Summary
}

// NewOrchestrator assembles a deployment orchestrator. A nil thresholds
// table falls back to the defaults, an empty check list to the built-in
// pre-deployment checks.
func NewOrchestrator(config Config, deployer Deployer, table *monitoring.ThresholdTable, logger *logging.StructuredLogger, checks ...health.Check) *Orchestrator {
	config.applyDefaults()
	if table == nil {
		table = monitoring.DefaultThresholds()
	}
	if len(checks) == 0 {
		checks = health.DefaultChecks()
	}
	config.Harness.Component = firstNonEmpty(config.Harness.Component, config.Environment)

	return &Orchestrator{
		config:   config,
		logger:   logger.WithComponent("orchestrator"),
		deployer: deployer,
		checks:   health.NewRunner(config.Health, logger, checks...),
		store:    monitoring.NewSampleStore(config.SampleCapacity),
		alerts:   monitoring.NewAlertLog(),
		table:    table,
		builder:  report.NewBuilder(config.ReportWindow, logger),
	}
}

// SampleStore exposes the shared metric store (read-only use expected)
func (o *Orchestrator) SampleStore() *monitoring.SampleStore { return o.store }

// Alerts exposes the shared alert log
func (o *Orchestrator) Alerts() *monitoring.AlertLog { return o.alerts }

// RunDeployment executes the full promotion sequence against the target
// and always returns a report: internal failures are captured into the
// state machine, never raised.
func (o *Orchestrator) RunDeployment(ctx context.Context, tgt target.Target) *report.Report {
	run := NewRun(o.config.Environment)
	o.logger.InfoWithContext("Deployment run started",
		"run_id", run.ID,
		"environment", run.Environment,
	)

	// Pre-checks. A failure here is terminal without rollback: nothing
	// has mutated the environment yet.
	o.advance(run, StatePreChecks)
	preStart := time.Now()
	results, err := o.checks.RunAll(ctx, tgt)
	phaseDuration.WithLabelValues("pre-checks").Observe(time.Since(preStart).Seconds())
	run.HealthChecks = results
	if err != nil {
		o.failWithoutRollback(run, "pre-checks", err)
		return o.buildReport(run, nil)
	}

	if err := o.runPhase(ctx, run, StatePreparing, "preparing", o.deployer.Prepare); err != nil {
		o.rollback(ctx, run, "preparing", err)
		return o.buildReport(run, nil)
	}

	if err := o.runPhase(ctx, run, StateDeploying, "deploying", o.deployer.Deploy); err != nil {
		o.rollback(ctx, run, "deploying", err)
		return o.buildReport(run, nil)
	}

	// Validation: the full load test harness against the new version.
	o.advance(run, StateValidating)
	valStart := time.Now()
	harness := loadtest.NewHarness(o.config.Harness, tgt, o.logger)
	summary := harness.RunAll(ctx)
	phaseDuration.WithLabelValues("validating").Observe(time.Since(valStart).Seconds())
	run.SuccessRate = summary.SuccessRate

	if summary.SuccessRate < o.config.MinValidationRate {
		o.rollback(ctx, run, "validating",
			fmt.Errorf("validation success rate %.2f below required %.2f", summary.SuccessRate, o.config.MinValidationRate))
		return o.buildReport(run, summary)
	}

	// Monitoring activation. The loop runs until Shutdown is called;
	// the run is successful once activation returns cleanly.
	o.advance(run, StateMonitoringActive)
	o.monitor = monitoring.NewMonitor(monitoring.MonitorConfig{
		Interval:    o.config.MonitorInterval,
		Component:   o.config.Harness.Component,
		Environment: o.config.Environment,
	}, o.store, o.alerts, o.table, nil,
		monitoring.NewProbeProvider(tgt, o.config.MonitorProbes, o.config.Harness.CallTimeout),
		o.logger)

	if err := o.monitor.Start(ctx); err != nil {
		o.rollback(ctx, run, "monitoring-activation", err)
		return o.buildReport(run, summary)
	}

	o.advance(run, StateSuccessful)
	deploymentsTotal.WithLabelValues("success").Inc()
	o.logger.InfoWithContext("Deployment run successful",
		"run_id", run.ID,
		"success_rate", run.SuccessRate,
	)
	return o.buildReport(run, summary)
}

// Shutdown stops the monitoring loop if one is active
func (o *Orchestrator) Shutdown() {
	if o.monitor != nil {
		o.monitor.Stop()
	}
}

// MonitoringActive reports whether the monitoring loop is running
func (o *Orchestrator) MonitoringActive() bool {
	return o.monitor != nil && o.monitor.Running()
}

// advance transitions the run and logs the change
func (o *Orchestrator) advance(run *Run, to State) {
	from := run.State
	run.transition(to)
	o.logger.LogStateTransition(run.ID, string(from), string(to))
}

// runPhase executes one environment-mutating step under its state
func (o *Orchestrator) runPhase(ctx context.Context, run *Run, state State, phase string, fn func(context.Context) error) error {
	o.advance(run, state)
	start := time.Now()
	err := protect(phase, fn)(ctx)
	phaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	return err
}

// failWithoutRollback marks a run failed before any environment
// mutation happened
func (o *Orchestrator) failWithoutRollback(run *Run, phase string, err error) {
	run.FailedPhase = phase
	run.FailureReason = err.Error()
	o.advance(run, StateFailed)
	deploymentsTotal.WithLabelValues("failed").Inc()
	o.logger.ErrorWithContext("Deployment failed before environment mutation", err,
		"run_id", run.ID,
		"phase", phase,
	)
}

// rollback runs the ordered undo sequence. A failing undo step ends the
// run in Failed with the rollback flagged incomplete; a clean sequence
// ends in RolledBack.
func (o *Orchestrator) rollback(ctx context.Context, run *Run, phase string, cause error) {
	run.FailedPhase = phase
	run.FailureReason = cause.Error()
	o.advance(run, StateRollingBack)
	o.logger.WarnWithContext("Rolling back deployment",
		"run_id", run.ID,
		"phase", phase,
		"cause", cause.Error(),
	)

	for _, step := range o.deployer.RollbackSteps() {
		start := time.Now()
		err := protect(step.Name, step.Run)(ctx)
		outcome := RollbackStepResult{
			Name:     step.Name,
			Success:  err == nil,
			Duration: time.Since(start),
			Error:    errText(err),
		}
		run.RollbackSteps = append(run.RollbackSteps, outcome)

		if err != nil {
			run.RollbackIncomplete = true
			o.advance(run, StateFailed)
			rollbacksTotal.WithLabelValues("incomplete").Inc()
			deploymentsTotal.WithLabelValues("failed").Inc()
			o.logger.ErrorWithContext("Rollback step failed, rollback incomplete", err,
				"run_id", run.ID,
				"step", step.Name,
			)
			return
		}
	}

	o.advance(run, StateRolledBack)
	rollbacksTotal.WithLabelValues("complete").Inc()
	deploymentsTotal.WithLabelValues("rolled-back").Inc()
}

// Report rebuilds the report for the most recent run, folding in any
// metric samples and alerts collected since RunDeployment returned.
// It returns nil before the first run.
func (o *Orchestrator) Report() *report.Report {
	o.mu.Lock()
	run, summary := o.lastRun, o.lastSummary
	o.mu.Unlock()
	if run == nil {
		return nil
	}
	return o.buildReport(run, summary)
}

// buildReport maps the run into the report builder's input
func (o *Orchestrator) buildReport(run *Run, summary *loadtest.Summary) *report.Report {
	o.mu.Lock()
	o.lastRun, o.lastSummary = run, summary
	o.mu.Unlock()

	history := make([]string, 0, len(run.StateHistory)+1)
	for _, s := range run.States() {
		history = append(history, string(s))
	}

	steps := make([]report.RollbackOutcome, 0, len(run.RollbackSteps))
	for _, s := range run.RollbackSteps {
		steps = append(steps, report.RollbackOutcome{Name: s.Name, Success: s.Success, Error: s.Error})
	}

	return o.builder.Build(report.RunInfo{
		ID:                 run.ID,
		Environment:        run.Environment,
		State:              string(run.State),
		StartedAt:          run.StartedAt,
		CompletedAt:        run.CompletedAt,
		StateHistory:       history,
		FailedPhase:        run.FailedPhase,
		FailureReason:      run.FailureReason,
		RollbackIncomplete: run.RollbackIncomplete,
		RollbackSteps:      steps,
		HealthChecks:       run.HealthChecks,
	}, summary, o.store, o.alerts)
}

// protect converts a panicking phase or rollback step into an error
func protect(name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("%s panicked: %v", name, rec)
			}
		}()
		return fn(ctx)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
