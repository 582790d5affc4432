package stepflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WorkFunc is the unit of work run by a step. Returning an error, panicking,
// or returning a false bool result all count as a failed attempt.
type WorkFunc func(ctx context.Context, data *SharedContext) (any, error)

// GuardFunc decides whether a conditional step runs. Errors and panics are
// treated as false.
type GuardFunc func(data *SharedContext) (bool, error)

type Step struct {
	ID        string
	Name      string
	Work      WorkFunc
	Guard     GuardFunc
	DependsOn []string
	Metadata  map[string]any

	Retries       int
	RetryDelay    time.Duration
	RetryStrategy RetryStrategy
	Timeout       time.Duration

	Status       StepStatus
	Result       any
	Err          error
	ErrorMessage string
	SkipReason   string
	Attempts     int
	StartedAt    time.Time
	CompletedAt  time.Time

	group *ParallelGroup
}

func NewStep(name string, work WorkFunc, opts ...StepOption) *Step {
	step := &Step{
		ID:         uuid.NewString(),
		Name:       name,
		Work:       work,
		Metadata:   make(map[string]any),
		Retries:    DefaultStepRetries,
		RetryDelay: DefaultStepRetryDelay,
		Status:     StepStatusPending,
	}

	for _, opt := range opts {
		opt(step)
	}

	return step
}

func NewConditionalStep(name string, guard GuardFunc, work WorkFunc, opts ...StepOption) *Step {
	step := NewStep(name, work, opts...)
	step.Guard = guard

	return step
}

func (step *Step) IsConditional() bool {
	return step.Guard != nil
}

func (step *Step) IsParallel() bool {
	return step.group != nil
}

// Group returns the parallel group the step belongs to, if any.
func (step *Step) Group() *ParallelGroup {
	return step.group
}

// Kind reports the display kind. A guarded step is conditional even when it
// runs inside a parallel group.
func (step *Step) Kind() StepKind {
	switch {
	case step.IsConditional():
		return StepKindConditional
	case step.IsParallel():
		return StepKindParallel
	default:
		return StepKindSequential
	}
}

// Duration is the wall time between start and completion, zero while the
// step has not finished.
func (step *Step) Duration() time.Duration {
	if step.StartedAt.IsZero() || step.CompletedAt.IsZero() {
		return 0
	}

	return step.CompletedAt.Sub(step.StartedAt)
}

func (step *Step) attempts() int {
	if step.Retries < 1 {
		return 1
	}

	return step.Retries
}

func (step *Step) reset() {
	step.Status = StepStatusPending
	step.Result = nil
	step.Err = nil
	step.ErrorMessage = ""
	step.SkipReason = ""
	step.Attempts = 0
	step.StartedAt = time.Time{}
	step.CompletedAt = time.Time{}
}

func (step *Step) markRunning(now time.Time) {
	step.Status = StepStatusRunning
	step.StartedAt = now
	step.CompletedAt = time.Time{}
	step.Err = nil
	step.ErrorMessage = ""
	step.SkipReason = ""
	step.Attempts = 0
}

func (step *Step) markCompleted(now time.Time, result any) {
	step.Status = StepStatusCompleted
	step.CompletedAt = now
	step.Result = result
	step.Err = nil
	step.ErrorMessage = ""
}

func (step *Step) markFailed(now time.Time, err error) {
	step.Status = StepStatusFailed
	step.CompletedAt = now
	step.recordError(err)
}

func (step *Step) markSkipped(reason string) {
	step.Status = StepStatusSkipped
	step.SkipReason = reason
}

func (step *Step) recordError(err error) {
	step.Err = err
	if err != nil {
		step.ErrorMessage = err.Error()
	}
}
