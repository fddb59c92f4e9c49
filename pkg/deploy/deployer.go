package deploy

import (
	"context"
	"time"
)

// RollbackStep is one named undo action in the rollback sequence
type RollbackStep struct {
	Name string
	Run  func(ctx context.Context) error
}

// Deployer performs the environment-mutating steps of a deployment and
// supplies the ordered undo sequence for rollback
type Deployer interface {
	// Prepare stages the new version without switching traffic to it
	Prepare(ctx context.Context) error
	// Deploy switches the environment over to the new version
	Deploy(ctx context.Context) error
	// RollbackSteps returns the ordered best-effort undo sequence
	RollbackSteps() []RollbackStep
}

// SimulatedDeployer is a deployer whose steps succeed after a fixed
// delay. It backs the entrypoint binary when no real deployment driver
// is wired in, and gives tests a controllable stand-in.
type SimulatedDeployer struct {
	StepDelay time.Duration
}

func (d *SimulatedDeployer) step(ctx context.Context) error {
	if d.StepDelay == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.StepDelay):
		return nil
	}
}

// Prepare stages the release
func (d *SimulatedDeployer) Prepare(ctx context.Context) error { return d.step(ctx) }

// Deploy activates the release
func (d *SimulatedDeployer) Deploy(ctx context.Context) error { return d.step(ctx) }

// RollbackSteps returns the standard undo sequence
func (d *SimulatedDeployer) RollbackSteps() []RollbackStep {
	return []RollbackStep{
		{Name: "stop new traffic", Run: d.step},
		{Name: "restore previous version", Run: d.step},
		{Name: "verify restoration", Run: d.step},
		{Name: "update routing", Run: d.step},
		{Name: "resume monitoring of previous version", Run: d.step},
	}
}
