package stepflow

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rom8726/stepflow/log"
)

// memberOutcome is what a pool worker hands back to the coordinator. Workers
// never touch the step or the live context; the coordinator applies the
// outcome after receiving it.
type memberOutcome struct {
	step       *Step
	result     any
	err        error
	attempts   int
	finishedAt time.Time
	data       *SharedContext
}

// workerPool is a bounded pool that lives for a single group execution.
// Results are buffered so workers never block on a slow coordinator.
type workerPool struct {
	group   errgroup.Group
	results chan memberOutcome
}

func newWorkerPool(size, submitted int) *workerPool {
	pool := &workerPool{
		results: make(chan memberOutcome, submitted),
	}
	pool.group.SetLimit(size)

	return pool
}

func (p *workerPool) Go(task func() memberOutcome) {
	p.group.Go(func() error {
		p.results <- task()

		return nil
	})
}

func (p *workerPool) Results() <-chan memberOutcome {
	return p.results
}

func (p *workerPool) Wait() {
	_ = p.group.Wait()
	close(p.results)
}

// executeGroup runs members of group concurrently and joins them all before
// returning. members may be a subset of the group when running a selection.
func (wf *Workflow) executeGroup(ctx context.Context, group *ParallelGroup, members []*Step, index dependencyIndex) error {
	runnable := make([]*Step, 0, len(members))
	for _, step := range members {
		if err := index.check(step); err != nil {
			wf.skipStep(ctx, step, err.Error(), index)

			continue
		}
		if !wf.guardAllows(step, wf.data) {
			wf.skipStep(ctx, step, skipReasonCondition, index)

			continue
		}
		runnable = append(runnable, step)
	}

	if len(runnable) == 0 {
		wf.logger.Debug("[stepflow] parallel group has nothing to run", log.GroupName(group.Name))

		return nil
	}

	wf.reporter.GroupStarted(group, len(members), group.Len())
	wf.logger.Info("[stepflow] parallel group started",
		log.GroupName(group.Name),
		"runnable", len(runnable),
		"max_concurrency", group.MaxConcurrency)

	var (
		failed   int
		firstErr error
	)

	dispatch := make([]*Step, 0, len(runnable))
	for _, step := range runnable {
		step.markRunning(wf.now())
		wf.reporter.StepStarted(step, 0)

		if err := wf.plugins.ExecuteStepStart(ctx, wf, step); err != nil {
			stepErr := wf.recordFailure(ctx, step, wf.now(), err)
			failed++
			if firstErr == nil {
				firstErr = stepErr
			}

			continue
		}
		dispatch = append(dispatch, step)
	}

	if len(dispatch) > 0 {
		pool := newWorkerPool(group.poolSize(len(dispatch)), len(dispatch))
		for _, step := range dispatch {
			snapshot := wf.data.Snapshot()
			pool.Go(func() memberOutcome {
				return wf.runMember(ctx, step, snapshot)
			})
		}

		go pool.Wait()

		for out := range pool.Results() {
			out.step.Attempts = out.attempts

			if out.err != nil {
				stepErr := wf.recordFailure(ctx, out.step, out.finishedAt, out.err)
				failed++
				if firstErr == nil {
					firstErr = stepErr
				}

				continue
			}

			wf.data.MergeUpdates(out.data)
			wf.completeStep(ctx, out.step, out.finishedAt, out.result, index)
		}
	}

	wf.reporter.GroupFinished(group, len(runnable)-failed, failed)
	wf.logger.Info("[stepflow] parallel group joined",
		log.GroupName(group.Name), "completed", len(runnable)-failed, "failed", failed)

	if failed > 0 && (!wf.ContinueOnError || ctx.Err() != nil) {
		return &GroupError{GroupName: group.Name, Failed: failed, First: firstErr}
	}

	return nil
}

// runMember executes one group member on a pool worker against its own
// snapshot. Members have no per-attempt deadline.
func (wf *Workflow) runMember(ctx context.Context, step *Step, data *SharedContext) memberOutcome {
	result, attempts, err := wf.retryLoop(ctx, step, func(attemptCtx context.Context) (any, error) {
		return invokeWork(attemptCtx, step, data)
	})

	return memberOutcome{
		step:       step,
		result:     result,
		err:        err,
		attempts:   attempts,
		finishedAt: wf.now(),
		data:       data,
	}
}
