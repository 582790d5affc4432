package stepflow

import (
	"time"
)

type WorkflowStatus string

const (
	StatusPending   WorkflowStatus = "pending"
	StatusRunning   WorkflowStatus = "running"
	StatusCompleted WorkflowStatus = "completed"
	StatusFailed    WorkflowStatus = "failed"
)

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Done reports whether a dependent step may rely on a step in this status.
func (s StepStatus) Done() bool {
	return s == StepStatusCompleted || s == StepStatusSkipped
}

type StepKind string

const (
	StepKindSequential  StepKind = "sequential"
	StepKindParallel    StepKind = "parallel"
	StepKindConditional StepKind = "conditional"
)

type RetryStrategy uint8

const (
	RetryStrategyFixed       RetryStrategy = iota // Fixed delay between retries
	RetryStrategyExponential                      // Exponential backoff: delay = base * 2^attempt
	RetryStrategyLinear                           // Linear backoff: delay = base * attempt
)

func (s RetryStrategy) String() string {
	switch s {
	case RetryStrategyExponential:
		return "exponential"
	case RetryStrategyLinear:
		return "linear"
	default:
		return "fixed"
	}
}

const (
	DefaultStepRetries        = 3
	DefaultStepRetryDelay     = 30 * time.Second
	DefaultMaxConcurrency     = 5
	DefaultWorkflowRetries    = 1
	DefaultWorkflowRetryDelay = 60 * time.Second
)

// FlatStep is one entry of the numbered, declaration-order step list used for
// interactive selection. Group is nil for standalone steps.
type FlatStep struct {
	Index    int
	Step     *Step
	Group    *ParallelGroup
	Parallel bool
}

type SelectionAction uint8

const (
	SelectionExecute SelectionAction = iota
	SelectionExit
)

// Selection is the parsed form of a user selection expression. Indices are
// 1-based, unique and sorted ascending.
type Selection struct {
	Action  SelectionAction
	Indices []int
}

func (s Selection) Exit() bool {
	return s.Action == SelectionExit
}
