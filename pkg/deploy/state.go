package deploy

import (
	"time"

	"github.com/google/uuid"

	"github.com/prodgate/prodgate/pkg/health"
)

// State is a deployment run's position in the promotion state machine
type State string

const (
	StatePending          State = "pending"
	StatePreChecks        State = "pre-checks"
	StatePreparing        State = "preparing"
	StateDeploying        State = "deploying"
	StateValidating       State = "validating"
	StateMonitoringActive State = "monitoring-active"
	StateSuccessful       State = "successful"
	StateRollingBack      State = "rolling-back"
	StateRolledBack       State = "rolled-back"
	StateFailed           State = "failed"
)

// Terminal reports whether a state admits no further transitions
func (s State) Terminal() bool {
	switch s {
	case StateSuccessful, StateRolledBack, StateFailed:
		return true
	default:
		return false
	}
}

// StateChange is one audit entry in a run's transition history
type StateChange struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// RollbackStepResult records one executed undo step
type RollbackStepResult struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Run is a single deployment attempt. Only the orchestrator mutates a
// run; once the state is terminal the run is immutable.
type Run struct {
	ID                 string               `json:"id"`
	Environment        string               `json:"environment"`
	State              State                `json:"state"`
	StartedAt          time.Time            `json:"started_at"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
	StateHistory       []StateChange        `json:"state_history"`
	HealthChecks       []health.Result      `json:"health_checks"`
	SuccessRate        float64              `json:"success_rate"`
	FailedPhase        string               `json:"failed_phase,omitempty"`
	FailureReason      string               `json:"failure_reason,omitempty"`
	RollbackSteps      []RollbackStepResult `json:"rollback_steps,omitempty"`
	RollbackIncomplete bool                 `json:"rollback_incomplete"`
}

// NewRun creates a pending deployment run for an environment
func NewRun(environment string) *Run {
	return &Run{
		ID:          uuid.NewString(),
		Environment: environment,
		State:       StatePending,
		StartedAt:   time.Now(),
	}
}

// transition moves the run to the next state, recording the change in
// the audit history. Transitions out of a terminal state are ignored.
func (r *Run) transition(to State) {
	if r.State.Terminal() {
		return
	}
	r.StateHistory = append(r.StateHistory, StateChange{From: r.State, To: to, At: time.Now()})
	r.State = to
	if to.Terminal() {
		now := time.Now()
		r.CompletedAt = &now
	}
}

// States returns the ordered sequence of states the run passed through,
// starting with the initial pending state
func (r *Run) States() []State {
	states := []State{StatePending}
	for _, change := range r.StateHistory {
		states = append(states, change.To)
	}
	return states
}
