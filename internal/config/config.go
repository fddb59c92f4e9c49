// Package config loads the promotion gate configuration from YAML and
// resolves it into component configs with sane defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/prodgate/prodgate/pkg/deploy"
	"github.com/prodgate/prodgate/pkg/health"
	"github.com/prodgate/prodgate/pkg/loadtest"
	"github.com/prodgate/prodgate/pkg/logging"
	"github.com/prodgate/prodgate/pkg/monitoring"
)

// ThresholdOverride mirrors one threshold entry in the YAML file
type ThresholdOverride struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// Config is the full gate configuration. All durations are expressed in
// seconds in the YAML file.
type Config struct {
	Environment string `yaml:"environment"`

	Logging logging.Config `yaml:"logging"`

	Monitoring struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		SampleCapacity  int `yaml:"sample_capacity"`
		Probes          int `yaml:"probes"`
	} `yaml:"monitoring"`

	Health struct {
		CheckTimeoutSeconds int `yaml:"check_timeout_seconds"`
	} `yaml:"health"`

	LoadTest struct {
		CallTimeoutSeconds       int   `yaml:"call_timeout_seconds"`
		ScalabilityLevels        []int `yaml:"scalability_levels"`
		ConcurrencyLevels        []int `yaml:"concurrency_levels"`
		SessionCalls             int   `yaml:"session_calls"`
		ThinkTimeMillis          int   `yaml:"think_time_millis"`
		StressDurationSeconds    int   `yaml:"stress_duration_seconds"`
		StressBatch              int   `yaml:"stress_batch"`
		SustainedIntervalSeconds int   `yaml:"sustained_interval_seconds"`
		SpikeBaseline            int   `yaml:"spike_baseline"`
		SpikeConcurrency         int   `yaml:"spike_concurrency"`
	} `yaml:"load_test"`

	Validation struct {
		MinSuccessRate float64 `yaml:"min_success_rate"`
	} `yaml:"validation"`

	Report struct {
		WindowMinutes int `yaml:"window_minutes"`
	} `yaml:"report"`

	Thresholds map[string]ThresholdOverride `yaml:"thresholds"`
}

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{Environment: "production"}
	cfg.Logging = logging.Config{
		Level:       logging.LevelInfo,
		Format:      "json",
		ServiceName: "prodgate",
	}
	return cfg
}

// Load reads a YAML configuration file. A missing path yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}
	cfg.Logging.Environment = cfg.Environment
	return cfg, nil
}

// ThresholdTable resolves the defaults merged with any overrides
func (c *Config) ThresholdTable() (*monitoring.ThresholdTable, error) {
	if len(c.Thresholds) == 0 {
		return monitoring.DefaultThresholds(), nil
	}

	merged := make(map[monitoring.MetricKind]monitoring.Threshold)
	defaults := monitoring.DefaultThresholds()
	for _, kind := range defaults.Kinds() {
		t, _ := defaults.Get(kind)
		merged[kind] = t
	}
	for name, override := range c.Thresholds {
		merged[monitoring.MetricKind(name)] = monitoring.Threshold{
			Warning:  override.Warning,
			Critical: override.Critical,
		}
	}
	return monitoring.NewThresholdTable(merged)
}

// OrchestratorConfig resolves the deploy-level configuration
func (c *Config) OrchestratorConfig() deploy.Config {
	return deploy.Config{
		Environment:       c.Environment,
		MinValidationRate: c.Validation.MinSuccessRate,
		ReportWindow:      time.Duration(c.Report.WindowMinutes) * time.Minute,
		MonitorInterval:   seconds(c.Monitoring.IntervalSeconds),
		MonitorProbes:     c.Monitoring.Probes,
		SampleCapacity:    c.Monitoring.SampleCapacity,
		Harness:           c.HarnessConfig(),
		Health:            health.RunnerConfig{CheckTimeout: seconds(c.Health.CheckTimeoutSeconds)},
	}
}

// HarnessConfig resolves the load test harness configuration
func (c *Config) HarnessConfig() loadtest.Config {
	lt := c.LoadTest
	return loadtest.Config{
		CallTimeout:       seconds(lt.CallTimeoutSeconds),
		ScalabilityLevels: lt.ScalabilityLevels,
		ConcurrencyLevels: lt.ConcurrencyLevels,
		SessionCalls:      lt.SessionCalls,
		ThinkTime:         time.Duration(lt.ThinkTimeMillis) * time.Millisecond,
		StressDuration:    seconds(lt.StressDurationSeconds),
		StressBatch:       lt.StressBatch,
		SustainedInterval: seconds(lt.SustainedIntervalSeconds),
		SpikeBaseline:     lt.SpikeBaseline,
		SpikeConcurrency:  lt.SpikeConcurrency,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
