package saga

import (
	"fmt"
	"time"

	"github.com/orderflow/saga-system/shared/models"
)

// Phase is the closed set of saga transaction phases.
type Phase string

const (
	PhaseStarted       Phase = "started"
	PhaseStepRunning   Phase = "step_running"
	PhaseStepSucceeded Phase = "step_succeeded"
	PhaseCompensating  Phase = "compensating"
	PhaseCompleted     Phase = "completed"
	PhaseCompensated   Phase = "compensated"

	// PhaseFailed is a transient label: the instant a forward action fails
	// the error is recorded and the transaction moves straight into
	// compensation. It never rests in this phase; the externally observable
	// terminal state of a failed transaction is always PhaseCompensated.
	PhaseFailed Phase = "failed"
)

// State is a tagged variant: the phase plus, for the step-scoped phases,
// the 0-based index of the step it refers to.
type State struct {
	Phase Phase `json:"phase"`
	Step  int   `json:"step"`
}

// Terminal reports whether the state never changes again.
func (s State) Terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseCompensated
}

func (s State) String() string {
	switch s.Phase {
	case PhaseStepRunning, PhaseStepSucceeded:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Step)
	default:
		return string(s.Phase)
	}
}

// transition events
const (
	evRunStep     = "run_step"
	evStepOK      = "step_succeeded"
	evStepFailed  = "step_failed"
	evComplete    = "complete"
	evCompensated = "compensated"
)

// nextState is the transition table:
//
//	started                --run_step(0)-->   step_running(0)
//	started                --complete-->      completed          (zero steps)
//	started                --step_failed-->   compensating       (nothing executed)
//	step_running(i)        --step_succeeded-> step_succeeded(i)
//	step_succeeded(i)      --run_step(i+1)--> step_running(i+1)
//	step_succeeded(last)   --complete-->      completed
//	step_running(i)        --step_failed-->   compensating
//	compensating           --compensated-->   compensated
//
// Every other (state, event) pair is invalid.
func nextState(s State, event string, step int) (State, error) {
	switch s.Phase {
	case PhaseStarted:
		switch event {
		case evRunStep:
			if step == 0 {
				return State{Phase: PhaseStepRunning, Step: 0}, nil
			}
		case evComplete:
			return State{Phase: PhaseCompleted}, nil
		case evStepFailed:
			return State{Phase: PhaseCompensating}, nil
		}
	case PhaseStepRunning:
		switch event {
		case evStepOK:
			return State{Phase: PhaseStepSucceeded, Step: s.Step}, nil
		case evStepFailed:
			return State{Phase: PhaseCompensating}, nil
		}
	case PhaseStepSucceeded:
		switch event {
		case evRunStep:
			if step == s.Step+1 {
				return State{Phase: PhaseStepRunning, Step: step}, nil
			}
		case evComplete:
			return State{Phase: PhaseCompleted}, nil
		}
	case PhaseCompensating:
		if event == evCompensated {
			return State{Phase: PhaseCompensated}, nil
		}
	}
	return s, &TransitionError{From: s, Event: event}
}

// Transaction is the aggregate the engine owns: one run of a definition.
// It is mutated only by the single engine invocation driving it; external
// readers get copies through the TransactionStore.
type Transaction struct {
	ID           models.ID `json:"id"`
	DefinitionID string    `json:"definition_id"`
	State        State     `json:"state"`

	// ExecutedSteps lists, in execution order, the steps whose forward
	// action completed successfully. A failing step is never recorded here.
	ExecutedSteps []string `json:"executed_steps"`

	// CompensatedSteps lists, in compensation order (reverse of execution
	// order), the compensation names of steps whose compensation was
	// attempted, whether it succeeded or not.
	CompensatedSteps []string `json:"compensated_steps"`

	// CompensationErrors records failed compensations. They never overwrite
	// ErrorMessage, which always reflects the original triggering failure.
	CompensationErrors []string `json:"compensation_errors,omitempty"`

	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewTransaction creates a transaction record in the started phase.
func NewTransaction(id models.ID, definitionID string, now time.Time) *Transaction {
	return &Transaction{
		ID:               id,
		DefinitionID:     definitionID,
		State:            State{Phase: PhaseStarted},
		ExecutedSteps:    []string{},
		CompensatedSteps: []string{},
		StartedAt:        now,
	}
}

func (t *Transaction) runStep(i int) error {
	next, err := nextState(t.State, evRunStep, i)
	if err != nil {
		return err
	}
	t.State = next
	return nil
}

func (t *Transaction) stepSucceeded(name string) error {
	next, err := nextState(t.State, evStepOK, 0)
	if err != nil {
		return err
	}
	t.State = next
	t.ExecutedSteps = append(t.ExecutedSteps, name)
	return nil
}

func (t *Transaction) stepFailed(message string) error {
	next, err := nextState(t.State, evStepFailed, 0)
	if err != nil {
		return err
	}
	t.State = next
	if t.ErrorMessage == "" {
		t.ErrorMessage = message
	}
	return nil
}

func (t *Transaction) stepCompensated(name string, compErr error) error {
	if t.State.Phase != PhaseCompensating {
		return &TransitionError{From: t.State, Event: "step_compensated"}
	}
	t.CompensatedSteps = append(t.CompensatedSteps, name)
	if compErr != nil {
		t.CompensationErrors = append(t.CompensationErrors,
			fmt.Sprintf("%s: %v", name, compErr))
	}
	return nil
}

func (t *Transaction) complete(now time.Time) error {
	next, err := nextState(t.State, evComplete, 0)
	if err != nil {
		return err
	}
	t.State = next
	t.CompletedAt = &now
	return nil
}

func (t *Transaction) compensated(now time.Time) error {
	next, err := nextState(t.State, evCompensated, 0)
	if err != nil {
		return err
	}
	t.State = next
	t.CompletedAt = &now
	return nil
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	clone := *t
	clone.ExecutedSteps = append([]string(nil), t.ExecutedSteps...)
	clone.CompensatedSteps = append([]string(nil), t.CompensatedSteps...)
	clone.CompensationErrors = append([]string(nil), t.CompensationErrors...)
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		clone.CompletedAt = &at
	}
	return &clone
}
