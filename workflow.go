package stepflow

import (
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/rom8726/stepflow/log"
)

// item is one entry of the top-level sequence: a standalone step or a
// parallel group.
type item struct {
	step  *Step
	group *ParallelGroup
}

// Workflow is an ordered sequence of steps and parallel groups sharing one
// SharedContext. Build it with the Add* methods, then run it with Execute,
// Run, ExecuteSelectedSteps or ExecuteInteractive. A workflow is driven by a
// single goroutine at a time.
type Workflow struct {
	ID              string
	Name            string
	Retries         int
	RetryDelay      time.Duration
	ContinueOnError bool

	Status      WorkflowStatus
	Attempts    int
	LastError   error
	StartedAt   time.Time
	CompletedAt time.Time

	items            []item
	data             *SharedContext
	initial          map[string]any
	stepDefaults     []StepOption
	groupConcurrency int

	logger   *slog.Logger
	plugins  *PluginManager
	out      io.Writer
	reporter *Reporter
	clock    func() time.Time
}

func NewWorkflow(name string, opts ...WorkflowOption) *Workflow {
	wf := &Workflow{
		ID:               uuid.NewString(),
		Name:             name,
		Retries:          DefaultWorkflowRetries,
		RetryDelay:       DefaultWorkflowRetryDelay,
		Status:           StatusPending,
		data:             NewSharedContext(),
		groupConcurrency: DefaultMaxConcurrency,
		logger:           slog.Default(),
		plugins:          NewPluginManager(),
		out:              os.Stdout,
		clock:            time.Now,
	}

	for _, opt := range opts {
		opt(wf)
	}

	wf.logger = wf.logger.With(log.Workflow(wf.Name), log.WorkflowID(wf.ID))
	wf.plugins.setLogger(wf.logger)
	wf.reporter = NewReporter(wf.out)

	return wf
}

// NewStep creates a step carrying the workflow's step defaults without adding
// it to the sequence. Use it for parallel group members.
func (wf *Workflow) NewStep(name string, work WorkFunc, opts ...StepOption) *Step {
	return NewStep(name, work, append(slices.Clone(wf.stepDefaults), opts...)...)
}

func (wf *Workflow) NewConditionalStep(name string, guard GuardFunc, work WorkFunc, opts ...StepOption) *Step {
	step := wf.NewStep(name, work, opts...)
	step.Guard = guard

	return step
}

func (wf *Workflow) AddStep(name string, work WorkFunc, opts ...StepOption) *Step {
	return wf.Add(wf.NewStep(name, work, opts...))
}

func (wf *Workflow) AddConditionalStep(name string, guard GuardFunc, work WorkFunc, opts ...StepOption) *Step {
	return wf.Add(wf.NewConditionalStep(name, guard, work, opts...))
}

// AddDependentStep adds a step that only runs once every step in dependsOn
// has completed or been skipped.
func (wf *Workflow) AddDependentStep(name string, work WorkFunc, dependsOn []string, opts ...StepOption) *Step {
	step := wf.NewStep(name, work, opts...)
	step.DependsOn = append(step.DependsOn, dependsOn...)

	return wf.Add(step)
}

// Add appends an already built standalone step.
func (wf *Workflow) Add(step *Step) *Step {
	wf.items = append(wf.items, item{step: step})

	return step
}

func (wf *Workflow) AddParallelGroup(name string) *ParallelGroup {
	group := NewParallelGroup(name)
	group.MaxConcurrency = wf.groupConcurrency

	return wf.AddGroup(group)
}

func (wf *Workflow) AddGroup(group *ParallelGroup) *ParallelGroup {
	wf.items = append(wf.items, item{group: group})

	return group
}

// Context returns the live shared context.
func (wf *Workflow) Context() *SharedContext {
	return wf.data
}

func (wf *Workflow) Logger() *slog.Logger {
	return wf.logger
}

func (wf *Workflow) Reporter() *Reporter {
	return wf.reporter
}

// Steps returns every step in declaration order, group members expanded.
func (wf *Workflow) Steps() []*Step {
	var steps []*Step
	for _, it := range wf.items {
		if it.group != nil {
			steps = append(steps, it.group.steps...)

			continue
		}
		steps = append(steps, it.step)
	}

	return steps
}

func (wf *Workflow) Groups() []*ParallelGroup {
	var groups []*ParallelGroup
	for _, it := range wf.items {
		if it.group != nil {
			groups = append(groups, it.group)
		}
	}

	return groups
}

func (wf *Workflow) StepByID(id string) (*Step, bool) {
	for _, step := range wf.Steps() {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

func (wf *Workflow) StepByName(name string) (*Step, bool) {
	for _, step := range wf.Steps() {
		if step.Name == name {
			return step, true
		}
	}

	return nil, false
}

// HasFailures reports whether any step ended failed in the last run.
func (wf *Workflow) HasFailures() bool {
	for _, step := range wf.Steps() {
		if step.Status == StepStatusFailed {
			return true
		}
	}

	return false
}

// Duration of the last run, zero while running or before the first run.
func (wf *Workflow) Duration() time.Duration {
	if wf.StartedAt.IsZero() || wf.CompletedAt.IsZero() {
		return 0
	}

	return wf.CompletedAt.Sub(wf.StartedAt)
}

func (wf *Workflow) resetSteps() {
	for _, step := range wf.Steps() {
		step.reset()
	}
}

func (wf *Workflow) freshContext() *SharedContext {
	return NewSharedContextFrom(maps.Clone(wf.initial))
}

func (wf *Workflow) now() time.Time {
	if wf.clock == nil {
		return time.Now()
	}

	return wf.clock()
}
