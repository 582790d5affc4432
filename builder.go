package stepflow

import (
	"errors"
	"fmt"
	"slices"
)

// Builder assembles a Workflow fluently, referring to dependencies by step
// name. Build validates the whole definition before creating anything.
type Builder struct {
	name         string
	workflowOpts []WorkflowOption
	stepDefaults []StepOption

	entries []builderEntry
	steps   map[string]*stepSpec
	errs    []error
}

type stepSpec struct {
	name      string
	work      WorkFunc
	guard     GuardFunc
	dependsOn []string
	opts      []StepOption

	// position of the top-level item the step belongs to
	item int
}

type groupSpec struct {
	name           string
	maxConcurrency int
	steps          []*stepSpec
}

type builderEntry struct {
	step  *stepSpec
	group *groupSpec
}

// GroupBuilder adds members to a parallel group declared with
// Builder.Parallel.
type GroupBuilder struct {
	parent *Builder
	group  *groupSpec
	item   int
}

func NewBuilder(name string, opts ...BuilderOption) *Builder {
	builder := &Builder{
		name:  name,
		steps: make(map[string]*stepSpec),
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder
}

func (builder *Builder) Step(name string, work WorkFunc, opts ...StepOption) *Builder {
	builder.addEntry(&stepSpec{name: name, work: work, opts: opts})

	return builder
}

// When adds a conditional step that runs only if guard returns true.
func (builder *Builder) When(name string, guard GuardFunc, work WorkFunc, opts ...StepOption) *Builder {
	builder.addEntry(&stepSpec{name: name, work: work, guard: guard, opts: opts})

	return builder
}

func (builder *Builder) DependentStep(name string, work WorkFunc, dependsOn []string, opts ...StepOption) *Builder {
	builder.addEntry(&stepSpec{name: name, work: work, dependsOn: dependsOn, opts: opts})

	return builder
}

// Parallel declares a group. A maxConcurrency of zero keeps the workflow
// default.
func (builder *Builder) Parallel(name string, maxConcurrency int, fn func(group *GroupBuilder)) *Builder {
	group := &groupSpec{name: name, maxConcurrency: maxConcurrency}
	builder.entries = append(builder.entries, builderEntry{group: group})

	if fn != nil {
		fn(&GroupBuilder{parent: builder, group: group, item: len(builder.entries) - 1})
	}

	if len(group.steps) == 0 {
		builder.errs = append(builder.errs, fmt.Errorf("parallel group %q has no steps", name))
	}

	return builder
}

func (gb *GroupBuilder) Step(name string, work WorkFunc, opts ...StepOption) *GroupBuilder {
	gb.add(&stepSpec{name: name, work: work, opts: opts})

	return gb
}

func (gb *GroupBuilder) When(name string, guard GuardFunc, work WorkFunc, opts ...StepOption) *GroupBuilder {
	gb.add(&stepSpec{name: name, work: work, guard: guard, opts: opts})

	return gb
}

func (gb *GroupBuilder) DependentStep(name string, work WorkFunc, dependsOn []string, opts ...StepOption) *GroupBuilder {
	gb.add(&stepSpec{name: name, work: work, dependsOn: dependsOn, opts: opts})

	return gb
}

func (gb *GroupBuilder) add(spec *stepSpec) {
	spec.item = gb.item
	if gb.parent.register(spec) {
		gb.group.steps = append(gb.group.steps, spec)
	}
}

func (builder *Builder) addEntry(spec *stepSpec) {
	spec.item = len(builder.entries)
	if builder.register(spec) {
		builder.entries = append(builder.entries, builderEntry{step: spec})
	}
}

func (builder *Builder) register(spec *stepSpec) bool {
	if spec.name == "" {
		builder.errs = append(builder.errs, errors.New("step name is required"))

		return false
	}
	if _, exists := builder.steps[spec.name]; exists {
		builder.errs = append(builder.errs, fmt.Errorf("duplicate step name %q", spec.name))

		return false
	}

	builder.steps[spec.name] = spec

	return true
}

func (builder *Builder) Build() (*Workflow, error) {
	if builder.name == "" {
		return nil, fmt.Errorf("%w: workflow name is required", ErrInvalidDefinition)
	}

	if len(builder.steps) == 0 {
		return nil, fmt.Errorf("%w: builder %q: at least one step is required", ErrInvalidDefinition, builder.name)
	}

	if err := builder.validate(); err != nil {
		return nil, fmt.Errorf("%w: builder %q: %w", ErrInvalidDefinition, builder.name, err)
	}

	wf := NewWorkflow(builder.name, builder.workflowOpts...)
	created := make(map[string]*Step, len(builder.steps))

	newStep := func(spec *stepSpec) *Step {
		opts := append(slices.Clone(builder.stepDefaults), spec.opts...)
		step := wf.NewConditionalStep(spec.name, spec.guard, spec.work, opts...)
		for _, dep := range spec.dependsOn {
			step.DependsOn = append(step.DependsOn, created[dep].ID)
		}
		created[spec.name] = step

		return step
	}

	for _, entry := range builder.entries {
		if entry.group == nil {
			wf.Add(newStep(entry.step))

			continue
		}

		group := wf.AddParallelGroup(entry.group.name)
		if entry.group.maxConcurrency > 0 {
			group.MaxConcurrency = entry.group.maxConcurrency
		}
		for _, spec := range entry.group.steps {
			group.AddStep(newStep(spec))
		}
	}

	return wf, nil
}

func (builder *Builder) validate() error {
	if len(builder.errs) > 0 {
		return errors.Join(builder.errs...)
	}

	for _, spec := range builder.steps {
		for _, dep := range spec.dependsOn {
			if _, ok := builder.steps[dep]; !ok {
				return fmt.Errorf("step %q depends on unknown step %q", spec.name, dep)
			}
		}
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	for _, name := range builder.stepNames() {
		if visited[name] {
			continue
		}
		if err := builder.detectCycles(name, visited, recStack); err != nil {
			return err
		}
	}

	for _, spec := range builder.steps {
		for _, dep := range spec.dependsOn {
			if builder.steps[dep].item >= spec.item {
				return fmt.Errorf("step %q depends on %q, which does not run before it", spec.name, dep)
			}
		}
	}

	return nil
}

// stepNames returns names in declaration order, for stable error messages.
func (builder *Builder) stepNames() []string {
	var names []string
	for _, entry := range builder.entries {
		if entry.group == nil {
			names = append(names, entry.step.name)

			continue
		}
		for _, spec := range entry.group.steps {
			names = append(names, spec.name)
		}
	}

	return names
}

func (builder *Builder) detectCycles(current string, visited, recStack map[string]bool) error {
	visited[current] = true
	recStack[current] = true

	for _, next := range builder.steps[current].dependsOn {
		if !visited[next] {
			if err := builder.detectCycles(next, visited, recStack); err != nil {
				return err
			}
		} else if recStack[next] {
			return fmt.Errorf("cycle detected: %s -> %s", current, next)
		}
	}

	recStack[current] = false

	return nil
}
