package stepflow

import (
	"github.com/google/uuid"
)

// ParallelGroup is a synchronization barrier: its members run concurrently
// and the workflow only moves on once every member has finished.
type ParallelGroup struct {
	ID             string
	Name           string
	MaxConcurrency int

	steps []*Step
}

func NewParallelGroup(name string) *ParallelGroup {
	return &ParallelGroup{
		ID:             uuid.NewString(),
		Name:           name,
		MaxConcurrency: DefaultMaxConcurrency,
	}
}

// AddStep places step in the group. A guard on the step is kept as is.
func (group *ParallelGroup) AddStep(step *Step) *ParallelGroup {
	step.group = group
	group.steps = append(group.steps, step)

	return group
}

// Steps returns the members in declaration order.
func (group *ParallelGroup) Steps() []*Step {
	out := make([]*Step, len(group.steps))
	copy(out, group.steps)

	return out
}

func (group *ParallelGroup) Len() int {
	return len(group.steps)
}

func (group *ParallelGroup) poolSize(submitted int) int {
	return max(group.MaxConcurrency, submitted, 1)
}
