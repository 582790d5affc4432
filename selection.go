package stepflow

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rom8726/stepflow/log"
)

// BuildStepList flattens the workflow into its 1-based, declaration-order
// step list. Each group member gets its own entry.
func (wf *Workflow) BuildStepList() []FlatStep {
	var steps []FlatStep
	for _, it := range wf.items {
		if it.group != nil {
			for _, step := range it.group.steps {
				steps = append(steps, FlatStep{
					Index:    len(steps) + 1,
					Step:     step,
					Group:    it.group,
					Parallel: true,
				})
			}

			continue
		}

		steps = append(steps, FlatStep{Index: len(steps) + 1, Step: it.step})
	}

	return steps
}

// ParseStepSelection turns user input into a selection over steps. It is
// case-insensitive and permissive: unparsable or out-of-range tokens are
// dropped, never reported.
//
//	exit | quit | q   leave the interactive loop
//	all               every step
//	from N            steps N..last
//	to N              steps 1..N
//	1,3-5,9           single indices and inclusive ranges
func ParseStepSelection(input string, steps []FlatStep) Selection {
	text := strings.ToLower(strings.TrimSpace(input))
	total := len(steps)

	switch text {
	case "exit", "quit", "q":
		return Selection{Action: SelectionExit}
	case "all":
		return selectIndices(indexRange(1, total, total), total)
	}

	if rest, ok := strings.CutPrefix(text, "from "); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return selectIndices(nil, total)
		}

		return selectIndices(indexRange(n, total, total), total)
	}

	if rest, ok := strings.CutPrefix(text, "to "); ok {
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			return selectIndices(nil, total)
		}

		return selectIndices(indexRange(1, n, total), total)
	}

	var picked []int
	for token := range strings.SplitSeq(text, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if lo, hi, ok := parseRange(token); ok {
			picked = append(picked, indexRange(min(lo, hi), max(lo, hi), total)...)

			continue
		}

		if n, err := strconv.Atoi(token); err == nil {
			picked = append(picked, n)
		}
	}

	return selectIndices(picked, total)
}

// parseRange accepts "a-b" with both bounds present. A leading minus is a
// negative number, not a range.
func parseRange(token string) (lo, hi int, ok bool) {
	before, after, found := strings.Cut(token, "-")
	if !found || strings.TrimSpace(before) == "" {
		return 0, 0, false
	}

	lo, err := strconv.Atoi(strings.TrimSpace(before))
	if err != nil {
		return 0, 0, false
	}

	hi, err = strconv.Atoi(strings.TrimSpace(after))
	if err != nil {
		return 0, 0, false
	}

	return lo, hi, true
}

// indexRange returns from..to clamped to [1, total].
func indexRange(from, to, total int) []int {
	from = max(from, 1)
	to = min(to, total)
	if from > to {
		return nil
	}

	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}

	return out
}

func selectIndices(picked []int, total int) Selection {
	indices := make([]int, 0, len(picked))
	for _, n := range picked {
		if n >= 1 && n <= total {
			indices = append(indices, n)
		}
	}

	slices.Sort(indices)

	return Selection{Action: SelectionExecute, Indices: slices.Compact(indices)}
}

// ExecuteSelectedSteps runs only the steps at the given 1-based indices,
// walking the workflow in declaration order. Selected group members run
// together as a reduced group; unselected items are not visited at all.
//
// A dependency outside the selection is met only if it already completed or
// was skipped in an earlier run.
func (wf *Workflow) ExecuteSelectedSteps(ctx context.Context, indices []int, steps []FlatStep) error {
	var (
		grouped    = make(map[*ParallelGroup][]*Step)
		sequential = make(map[*Step]int)
		selected   = make(map[*Step]struct{})
	)

	for _, idx := range indices {
		if idx < 1 || idx > len(steps) {
			continue
		}

		entry := steps[idx-1]
		if _, dup := selected[entry.Step]; dup {
			continue
		}
		selected[entry.Step] = struct{}{}

		if entry.Group != nil {
			grouped[entry.Group] = append(grouped[entry.Group], entry.Step)
		} else {
			sequential[entry.Step] = entry.Index
		}
	}

	if len(selected) == 0 {
		wf.reporter.NoStepsSelected()
		wf.logger.Info("[stepflow] no steps selected")

		return nil
	}

	index := make(dependencyIndex)
	for _, step := range wf.Steps() {
		if _, ok := selected[step]; ok {
			step.reset()

			continue
		}
		if step.Status.Done() {
			index.register(step)
		}
	}

	wf.begin()
	wf.Attempts = 1
	wf.reporter.SelectionStarted(len(selected), len(steps))
	wf.logger.Info("[stepflow] running selection", "selected", len(selected), "total", len(steps))

	if err := wf.plugins.ExecuteWorkflowStart(ctx, wf); err != nil {
		return wf.fail(ctx, fmt.Errorf("workflow start: %w", err))
	}

	if err := wf.executeSelection(ctx, grouped, sequential, index); err != nil {
		return wf.fail(ctx, err)
	}

	wf.complete(ctx)

	return nil
}

func (wf *Workflow) executeSelection(
	ctx context.Context,
	grouped map[*ParallelGroup][]*Step,
	sequential map[*Step]int,
	index dependencyIndex,
) error {
	for _, it := range wf.items {
		if err := ctx.Err(); err != nil {
			return err
		}

		if it.group != nil {
			members, ok := grouped[it.group]
			if !ok {
				continue
			}

			// keep declaration order within the group
			slices.SortFunc(members, func(a, b *Step) int {
				return slices.Index(it.group.steps, a) - slices.Index(it.group.steps, b)
			})

			wf.logger.Debug("[stepflow] running group subset",
				log.GroupName(it.group.Name), "selected", len(members), "total", it.group.Len())

			if err := wf.executeGroup(ctx, it.group, members, index); err != nil {
				return err
			}

			continue
		}

		position, ok := sequential[it.step]
		if !ok {
			continue
		}

		if err := wf.executeSequential(ctx, it.step, index, position); err != nil {
			return err
		}
	}

	return nil
}
