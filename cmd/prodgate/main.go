// prodgate runs the production promotion gate against a target system:
// pre-flight health checks, a simulated deployment, load-test
// validation and threshold-monitored activation, ending in a JSON
// deployment report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prodgate/prodgate/internal/config"
	"github.com/prodgate/prodgate/pkg/deploy"
	"github.com/prodgate/prodgate/pkg/logging"
	"github.com/prodgate/prodgate/pkg/target"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the gate YAML configuration")
		targetURL  = flag.String("target", "http://localhost:8080/healthz", "base URL of the target system")
		reportPath = flag.String("report", "deployment-report.json", "path for the JSON deployment report")
		observe    = flag.Duration("observe", 0, "how long to keep the monitoring loop running after a successful deployment")
	)
	flag.Parse()

	if err := run(*configPath, *targetURL, *reportPath, *observe); err != nil {
		fmt.Fprintf(os.Stderr, "prodgate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, targetURL, reportPath string, observe time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewStructuredLogger(cfg.Logging)

	table, err := cfg.ThresholdTable()
	if err != nil {
		return fmt.Errorf("resolving thresholds: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tgt := target.NewHTTPTarget(targetURL, cfg.HarnessConfig().CallTimeout)
	orch := deploy.NewOrchestrator(cfg.OrchestratorConfig(), &deploy.SimulatedDeployer{}, table, logger)

	rep := orch.RunDeployment(ctx, tgt)

	if observe > 0 && orch.MonitoringActive() {
		logger.InfoWithContext("Observing deployed system", "duration", observe.String())
		select {
		case <-ctx.Done():
		case <-time.After(observe):
		}
		// Rebuild with the alerts and samples collected while observing.
		rep = orch.Report()
	}
	orch.Shutdown()

	if err := rep.SaveJSON(reportPath); err != nil {
		return err
	}
	logger.InfoWithContext("Deployment report written",
		"path", reportPath,
		"state", rep.State,
		"overall_success", rep.OverallSuccess,
	)

	if !rep.OverallSuccess {
		return fmt.Errorf("promotion gate rejected deployment (state %s)", rep.State)
	}
	return nil
}
