package stepflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rom8726/stepflow/log"
)

const (
	skipReasonCondition = "condition not met"
)

// dependencyIndex holds the steps that finished Completed or Skipped during
// the current pass, keyed by step id.
type dependencyIndex map[string]*Step

func (idx dependencyIndex) register(step *Step) {
	idx[step.ID] = step
}

func (idx dependencyIndex) check(step *Step) error {
	for _, depID := range step.DependsOn {
		dep, ok := idx[depID]
		if !ok {
			return dependencyError(step, depID, "has not run")
		}
		if !dep.Status.Done() {
			return dependencyError(step, depID, "is "+string(dep.Status))
		}
	}

	return nil
}

// Execute runs the workflow and reports whether it ultimately succeeded.
// It never panics outward; inspect step state or call PrintSummary for
// details.
func (wf *Workflow) Execute(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			wf.logger.Error("[stepflow] workflow panicked", "panic", r)
			wf.Status = StatusFailed
			wf.LastError = fmt.Errorf("workflow panicked: %v", r)
			ok = false
		}
	}()

	return wf.Run(ctx) == nil
}

// Run executes every item in declaration order, retrying the whole pass up
// to Retries times. Between attempts all steps go back to pending and the
// shared context is replaced with a fresh one holding only the initial data.
func (wf *Workflow) Run(ctx context.Context) error {
	wf.resetSteps()
	wf.begin()

	if err := wf.plugins.ExecuteWorkflowStart(ctx, wf); err != nil {
		return wf.fail(ctx, fmt.Errorf("workflow start: %w", err))
	}

	attempts := max(wf.Retries, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		wf.Attempts = attempt

		if attempt > 1 {
			wf.reporter.WorkflowRetrying(wf, attempt, attempts, wf.RetryDelay)
			wf.logger.Info("[stepflow] retrying workflow",
				log.Attempt(attempt, attempts), log.Delay(wf.RetryDelay))

			if err := sleep(ctx, wf.RetryDelay); err != nil {
				lastErr = fmt.Errorf("%w (retry interrupted: %w)", lastErr, err)

				break
			}

			wf.resetSteps()
			wf.data = wf.freshContext()
		}

		lastErr = wf.executeItems(ctx, make(dependencyIndex))
		if lastErr == nil {
			wf.complete(ctx)

			return nil
		}

		wf.logger.Warn("[stepflow] workflow attempt failed",
			log.Attempt(attempt, attempts), log.Error(lastErr))

		if ctx.Err() != nil {
			break
		}
	}

	return wf.fail(ctx, fmt.Errorf("%w after %d attempt(s): %w", ErrWorkflowExhausted, wf.Attempts, lastErr))
}

func (wf *Workflow) begin() {
	wf.Status = StatusRunning
	wf.StartedAt = wf.now()
	wf.CompletedAt = time.Time{}
	wf.LastError = nil
	wf.Attempts = 0
	wf.reporter.WorkflowStarted(wf)
	wf.logger.Info("[stepflow] workflow started", log.Status(wf.Status))
}

func (wf *Workflow) complete(ctx context.Context) {
	wf.Status = StatusCompleted
	wf.CompletedAt = wf.now()
	wf.reporter.WorkflowCompleted(wf)
	wf.logger.Info("[stepflow] workflow completed",
		log.Status(wf.Status), log.Elapsed(wf.Duration()))
	wf.plugins.ExecuteWorkflowComplete(ctx, wf)
}

func (wf *Workflow) fail(ctx context.Context, err error) error {
	wf.Status = StatusFailed
	wf.CompletedAt = wf.now()
	wf.LastError = err
	wf.reporter.WorkflowFailed(wf, err)
	wf.logger.Error("[stepflow] workflow failed",
		log.Status(wf.Status), log.Elapsed(wf.Duration()), log.Error(err))
	wf.plugins.ExecuteWorkflowFailed(ctx, wf, err)

	return err
}

func (wf *Workflow) executeItems(ctx context.Context, index dependencyIndex) error {
	position := 0
	for _, it := range wf.items {
		if err := ctx.Err(); err != nil {
			return err
		}

		if it.group != nil {
			if err := wf.executeGroup(ctx, it.group, it.group.steps, index); err != nil {
				return err
			}
			position += it.group.Len()

			continue
		}

		position++
		if err := wf.executeSequential(ctx, it.step, index, position); err != nil {
			return err
		}
	}

	return nil
}

// executeSequential runs a standalone step on the coordinating goroutine.
// The returned error aborts the current pass.
func (wf *Workflow) executeSequential(ctx context.Context, step *Step, index dependencyIndex, position int) error {
	if err := index.check(step); err != nil {
		step.markFailed(wf.now(), err)
		wf.reporter.StepFailed(step, err)
		wf.logger.Error("[stepflow] dependency unmet",
			log.StepName(step.Name), log.StepID(step.ID), log.Error(err))
		wf.plugins.ExecuteStepFailed(ctx, wf, step, err)

		return err
	}

	if !wf.guardAllows(step, wf.data) {
		wf.skipStep(ctx, step, skipReasonCondition, index)

		return nil
	}

	step.markRunning(wf.now())
	wf.reporter.StepStarted(step, position)
	wf.logger.Debug("[stepflow] step started",
		log.StepName(step.Name), log.StepID(step.ID), log.Status(step.Status))

	if err := wf.plugins.ExecuteStepStart(ctx, wf, step); err != nil {
		return wf.failStep(ctx, step, err)
	}

	result, attempts, err := wf.retryLoop(ctx, step, func(attemptCtx context.Context) (any, error) {
		if step.Timeout > 0 {
			return wf.runWithTimeout(attemptCtx, step)
		}

		return invokeWork(attemptCtx, step, wf.data)
	})
	step.Attempts = attempts
	if err != nil {
		return wf.failStep(ctx, step, err)
	}

	wf.completeStep(ctx, step, wf.now(), result, index)

	return nil
}

// retryLoop calls attempt up to step.attempts() times, sleeping between
// failures according to the step's retry strategy. It only reads the step,
// so it is safe to call from pool workers.
func (wf *Workflow) retryLoop(
	ctx context.Context,
	step *Step,
	attempt func(ctx context.Context) (any, error),
) (result any, attempts int, err error) {
	limit := step.attempts()

	for n := 1; n <= limit; n++ {
		attempts = n

		result, err = attempt(ctx)
		if err == nil {
			return result, attempts, nil
		}

		if n == limit || ctx.Err() != nil {
			break
		}

		delay := CalculateRetryDelay(step.RetryStrategy, step.RetryDelay, n)
		wf.reporter.StepRetrying(step, n, limit, delay, err)
		wf.logger.Warn("[stepflow] step attempt failed, retrying",
			log.StepName(step.Name), log.StepID(step.ID),
			log.Attempt(n, limit), log.Delay(delay), log.Error(err))

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return nil, attempts, fmt.Errorf("%w (retry interrupted: %w)", err, sleepErr)
		}
	}

	return nil, attempts, err
}

// runWithTimeout runs one attempt against a snapshot of the shared context
// and merges the snapshot back only if the attempt finished in time. An
// abandoned attempt keeps running on its own snapshot, which is dropped.
func (wf *Workflow) runWithTimeout(ctx context.Context, step *Step) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	type attemptResult struct {
		result any
		err    error
	}

	snapshot := wf.data.Snapshot()
	done := make(chan attemptResult, 1)

	go func() {
		result, err := invokeWork(attemptCtx, step, snapshot)
		done <- attemptResult{result: result, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s: %w", ErrTimeoutExceeded, step.Timeout, res.err)
			}

			return nil, res.err
		}

		wf.data.MergeUpdates(snapshot)

		return res.result, nil

	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("%w after %s", ErrTimeoutExceeded, step.Timeout)
	}
}

// guardAllows evaluates a step's guard. Guard errors and panics count as
// false.
func (wf *Workflow) guardAllows(step *Step, data *SharedContext) bool {
	ok, err := evaluateGuard(step, data)
	if err != nil {
		wf.logger.Warn("[stepflow] guard failed, skipping step",
			log.StepName(step.Name), log.StepID(step.ID), log.Error(err))
	}

	return ok
}

func (wf *Workflow) completeStep(ctx context.Context, step *Step, finishedAt time.Time, result any, index dependencyIndex) {
	step.markCompleted(finishedAt, result)
	index.register(step)

	wf.reporter.StepCompleted(step)
	wf.logger.Info("[stepflow] step completed",
		log.StepName(step.Name), log.StepID(step.ID),
		log.Attempt(step.Attempts, step.attempts()), log.Elapsed(step.Duration()))
	wf.plugins.ExecuteStepComplete(ctx, wf, step)
}

func (wf *Workflow) skipStep(ctx context.Context, step *Step, reason string, index dependencyIndex) {
	step.markSkipped(reason)
	index.register(step)

	wf.reporter.StepSkipped(step)
	wf.logger.Info("[stepflow] step skipped",
		log.StepName(step.Name), log.StepID(step.ID), log.Reason(reason))
	wf.plugins.ExecuteStepSkipped(ctx, wf, step)
}

// recordFailure marks the step failed and notifies observers. It returns the
// StepError describing the failure.
func (wf *Workflow) recordFailure(ctx context.Context, step *Step, finishedAt time.Time, cause error) *StepError {
	step.markFailed(finishedAt, cause)

	stepErr := &StepError{
		StepID:   step.ID,
		StepName: step.Name,
		Attempts: step.Attempts,
		Err:      cause,
	}

	wf.reporter.StepFailed(step, cause)
	wf.logger.Error("[stepflow] step failed",
		log.StepName(step.Name), log.StepID(step.ID),
		log.Attempt(step.Attempts, step.attempts()), log.Error(cause))
	wf.plugins.ExecuteStepFailed(ctx, wf, step, stepErr)

	return stepErr
}

// failStep records a sequential step failure. With ContinueOnError the pass
// goes on unless ctx itself was cancelled.
func (wf *Workflow) failStep(ctx context.Context, step *Step, cause error) error {
	stepErr := wf.recordFailure(ctx, step, wf.now(), cause)
	if wf.ContinueOnError && ctx.Err() == nil {
		return nil
	}

	return stepErr
}
