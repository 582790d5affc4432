package stepflow

import (
	"errors"
	"fmt"
)

var (
	ErrDependencyUnmet   = errors.New("dependency unmet")
	ErrStepFailed        = errors.New("step failed")
	ErrTimeoutExceeded   = errors.New("step timeout exceeded")
	ErrWorkflowExhausted = errors.New("workflow retries exhausted")
	ErrFalseResult       = errors.New("step returned false")
	ErrGuardFailed       = errors.New("guard evaluation failed")
	ErrNoWork            = errors.New("step has no work function")
	ErrInvalidDefinition = errors.New("invalid workflow definition")
)

// StepError is returned when a step ends in the failed state.
type StepError struct {
	StepID   string
	StepName string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed after %d attempt(s): %v", e.StepName, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{ErrStepFailed, e.Err}
}

// GroupError is returned when at least one member of a parallel group failed
// and the workflow does not continue on error.
type GroupError struct {
	GroupName string
	Failed    int
	First     error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("parallel group %q: %d step(s) failed, first: %v", e.GroupName, e.Failed, e.First)
}

func (e *GroupError) Unwrap() error {
	return e.First
}

func dependencyError(step *Step, depID string, reason string) error {
	return fmt.Errorf("step %q: %w: %s %s", step.Name, ErrDependencyUnmet, depID, reason)
}
