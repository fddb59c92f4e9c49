// Package health runs fast, independent pass/fail probes against the
// target system before the environment is mutated.
package health

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prodgate/prodgate/pkg/logging"
	"github.com/prodgate/prodgate/pkg/target"
)

// Check is a named, independent probe. Implementations return free-form
// detail for the report; a non-nil error marks the check failed.
type Check interface {
	Name() string
	Run(ctx context.Context, tgt target.Target) (map[string]interface{}, error)
}

// Result is the immutable outcome of one check invocation
type Result struct {
	Name      string                 `json:"name"`
	Passed    bool                   `json:"passed"`
	Duration  time.Duration          `json:"duration"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// RunnerConfig holds configuration for the health check runner
type RunnerConfig struct {
	CheckTimeout time.Duration `json:"check_timeout"`
}

// Runner executes an ordered set of checks. Checks are independent, so
// they run concurrently; results keep registration order.
type Runner struct {
	config RunnerConfig
	checks []Check
	logger *logging.StructuredLogger
}

// NewRunner creates a health check runner over the given ordered checks
func NewRunner(config RunnerConfig, logger *logging.StructuredLogger, checks ...Check) *Runner {
	if config.CheckTimeout == 0 {
		config.CheckTimeout = 10 * time.Second
	}
	return &Runner{
		config: config,
		checks: checks,
		logger: logger.WithComponent("health"),
	}
}

// RunAll executes every check and returns the full result list in
// registration order. A check that errors or times out is recorded as
// failed with the error text in its detail; it never crashes the runner.
// The returned error is non-nil when at least one check failed, so the
// caller can treat the phase as fatal.
func (r *Runner) RunAll(ctx context.Context, tgt target.Target) ([]Result, error) {
	results := make([]Result, len(r.checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range r.checks {
		i, check := i, check
		g.Go(func() error {
			results[i] = r.runOne(gctx, check, tgt)
			return nil
		})
	}
	// Worker closures never return errors; failures live in the results.
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if !res.Passed {
			failed++
			r.logger.WarnWithContext("Health check failed",
				"check", res.Name,
				"duration_ms", res.Duration.Milliseconds(),
			)
		} else {
			r.logger.DebugWithContext("Health check passed",
				"check", res.Name,
				"duration_ms", res.Duration.Milliseconds(),
			)
		}
	}

	if failed > 0 {
		return results, fmt.Errorf("%d of %d health checks failed", failed, len(r.checks))
	}
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, check Check, tgt target.Target) Result {
	checkCtx, cancel := context.WithTimeout(ctx, r.config.CheckTimeout)
	defer cancel()

	start := time.Now()
	detail, err := runProtected(checkCtx, check, tgt)
	duration := time.Since(start)

	if detail == nil {
		detail = make(map[string]interface{})
	}
	if err != nil {
		detail["error"] = err.Error()
	}

	return Result{
		Name:      check.Name(),
		Passed:    err == nil,
		Duration:  duration,
		Detail:    detail,
		Timestamp: start,
	}
}

// runProtected isolates a panicking check into an ordinary failure
func runProtected(ctx context.Context, check Check, tgt target.Target) (detail map[string]interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("check %q panicked: %v", check.Name(), rec)
		}
	}()
	return check.Run(ctx, tgt)
}
