package stepflow

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rom8726/stepflow/log"
)

func newTestWorkflow(opts ...WorkflowOption) (*Workflow, *bytes.Buffer) {
	out := &bytes.Buffer{}
	base := []WorkflowOption{
		WithOutput(out),
		WithLogger(log.Discard()),
		WithRetryDelay(time.Millisecond),
		WithStepDefaults(WithStepRetryDelay(time.Millisecond)),
	}

	return NewWorkflow("test", append(base, opts...)...), out
}

func noopWork(context.Context, *SharedContext) (any, error) { return nil, nil }

func setWork(key string, value any) WorkFunc {
	return func(_ context.Context, data *SharedContext) (any, error) {
		data.Set(key, value)
		return value, nil
	}
}

func failWork(msg string) WorkFunc {
	return func(context.Context, *SharedContext) (any, error) {
		return nil, errors.New(msg)
	}
}

func TestExecute_EmptyWorkflow(t *testing.T) {
	wf, _ := newTestWorkflow()

	assert.True(t, wf.Execute(context.Background()))
	assert.Equal(t, StatusCompleted, wf.Status)
	assert.False(t, wf.HasFailures())
}

func TestExecute_SequentialReadAfterWrite(t *testing.T) {
	wf, _ := newTestWorkflow()

	var seen []any
	wf.AddStep("first", setWork("value", 1))
	wf.AddStep("second", func(_ context.Context, data *SharedContext) (any, error) {
		seen = append(seen, data.Get("value"))
		data.Set("value", 2)
		return nil, nil
	})
	wf.AddStep("third", func(_ context.Context, data *SharedContext) (any, error) {
		seen = append(seen, data.Get("value"))
		return nil, nil
	})

	require.True(t, wf.Execute(context.Background()))
	assert.Equal(t, []any{1, 2}, seen)
	assert.Equal(t, 2, wf.Context().Get("value"))

	for _, step := range wf.Steps() {
		assert.Equal(t, StepStatusCompleted, step.Status, step.Name)
		assert.False(t, step.StartedAt.IsZero())
		assert.False(t, step.CompletedAt.IsZero())
	}
}

func TestExecute_StepResultRecorded(t *testing.T) {
	wf, _ := newTestWorkflow()
	step := wf.AddStep("answer", func(context.Context, *SharedContext) (any, error) { return 42, nil })

	require.True(t, wf.Execute(context.Background()))
	assert.Equal(t, 42, step.Result)
	assert.Equal(t, 1, step.Attempts)
}

func TestExecute_RetryThenSucceed(t *testing.T) {
	for _, retries := range []int{1, 2, 4} {
		wf, _ := newTestWorkflow()

		var calls int
		step := wf.AddStep("flaky", func(context.Context, *SharedContext) (any, error) {
			calls++
			if calls < retries {
				return nil, errors.New("not yet")
			}
			return "ok", nil
		}, WithStepRetries(retries))

		require.True(t, wf.Execute(context.Background()), "retries=%d", retries)
		assert.Equal(t, retries, calls)
		assert.Equal(t, retries, step.Attempts)
		assert.Equal(t, StepStatusCompleted, step.Status)
		assert.Empty(t, step.ErrorMessage)
	}
}

func TestExecute_RetriesExhausted(t *testing.T) {
	wf, out := newTestWorkflow()

	var calls int
	step := wf.AddStep("broken", func(context.Context, *SharedContext) (any, error) {
		calls++
		return nil, errors.New("always")
	}, WithStepRetries(3))

	err := wf.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowExhausted)
	assert.ErrorIs(t, err, ErrStepFailed)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "broken", stepErr.StepName)
	assert.Equal(t, 3, stepErr.Attempts)

	assert.Equal(t, 3, calls)
	assert.Equal(t, StepStatusFailed, step.Status)
	assert.Equal(t, "always", step.ErrorMessage)
	assert.Equal(t, StatusFailed, wf.Status)
	assert.Contains(t, out.String(), "attempt 1/3 failed")
	assert.Contains(t, out.String(), "attempt 2/3 failed")
}

func TestExecute_FalseResultIsFailure(t *testing.T) {
	wf, _ := newTestWorkflow()

	var calls int
	step := wf.AddStep("check", func(context.Context, *SharedContext) (any, error) {
		calls++
		return false, nil
	}, WithStepRetries(2))

	assert.False(t, wf.Execute(context.Background()))
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, step.Err, ErrFalseResult)
}

func TestExecute_PanicIsRecovered(t *testing.T) {
	wf, _ := newTestWorkflow()

	step := wf.AddStep("explode", func(context.Context, *SharedContext) (any, error) {
		panic("kaboom")
	}, WithStepRetries(1))

	assert.False(t, wf.Execute(context.Background()))
	assert.Equal(t, StepStatusFailed, step.Status)
	assert.Contains(t, step.ErrorMessage, "kaboom")
}

func TestExecute_NilWorkFails(t *testing.T) {
	wf, _ := newTestWorkflow()
	step := wf.AddStep("empty", nil, WithStepRetries(1))

	assert.False(t, wf.Execute(context.Background()))
	assert.ErrorIs(t, step.Err, ErrNoWork)
}

func TestExecute_StopOnError(t *testing.T) {
	wf, _ := newTestWorkflow()

	var ranLater bool
	wf.AddStep("fail", failWork("stop"), WithStepRetries(1))
	later := wf.AddStep("later", func(context.Context, *SharedContext) (any, error) {
		ranLater = true
		return nil, nil
	})

	assert.False(t, wf.Execute(context.Background()))
	assert.False(t, ranLater)
	assert.Equal(t, StepStatusPending, later.Status)
}

func TestExecute_ContinueOnError(t *testing.T) {
	wf, _ := newTestWorkflow(WithContinueOnError(true))

	var ranLater bool
	failed := wf.AddStep("fail", failWork("keep going"), WithStepRetries(1))
	wf.AddStep("later", func(context.Context, *SharedContext) (any, error) {
		ranLater = true
		return nil, nil
	})

	assert.True(t, wf.Execute(context.Background()))
	assert.True(t, ranLater)
	assert.True(t, wf.HasFailures())
	assert.Equal(t, StepStatusFailed, failed.Status)
	assert.Equal(t, "keep going", failed.ErrorMessage)
}

func TestExecute_ConditionalSkip(t *testing.T) {
	wf, _ := newTestWorkflow()

	var invoked bool
	guarded := wf.AddConditionalStep("guarded",
		func(*SharedContext) (bool, error) { return false, nil },
		func(context.Context, *SharedContext) (any, error) {
			invoked = true
			return nil, nil
		})
	dependent := wf.AddDependentStep("dependent", setWork("ran", true), []string{guarded.ID})

	require.True(t, wf.Execute(context.Background()))
	assert.False(t, invoked)
	assert.Equal(t, StepStatusSkipped, guarded.Status)
	assert.Equal(t, skipReasonCondition, guarded.SkipReason)
	assert.Equal(t, StepStatusCompleted, dependent.Status)
	assert.Equal(t, true, wf.Context().Get("ran"))
}

func TestExecute_ConditionalSeesLiveContext(t *testing.T) {
	wf, _ := newTestWorkflow()

	wf.AddStep("count", setWork("count", 5))
	step := wf.AddConditionalStep("big", ExprGuard("{{ gt .count 3 }}"), setWork("big", true))

	require.True(t, wf.Execute(context.Background()))
	assert.Equal(t, StepStatusCompleted, step.Status)
}

func TestExecute_GuardErrorsFailClosed(t *testing.T) {
	tests := []struct {
		name  string
		guard GuardFunc
	}{
		{name: "error", guard: func(*SharedContext) (bool, error) { return true, errors.New("bad guard") }},
		{name: "panic", guard: func(*SharedContext) (bool, error) { panic("guard panic") }},
		{name: "bad expression", guard: ExprGuard("{{ unknown .x }}")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, _ := newTestWorkflow()

			var invoked bool
			step := wf.AddConditionalStep("guarded", tt.guard, func(context.Context, *SharedContext) (any, error) {
				invoked = true
				return nil, nil
			})

			require.True(t, wf.Execute(context.Background()))
			assert.False(t, invoked)
			assert.Equal(t, StepStatusSkipped, step.Status)
		})
	}
}

func TestExecute_DependencyOnFailedStep(t *testing.T) {
	wf, _ := newTestWorkflow(WithContinueOnError(true))

	failed := wf.AddStep("fail", failWork("x"), WithStepRetries(1))

	var invoked bool
	dependent := wf.AddDependentStep("dependent", func(context.Context, *SharedContext) (any, error) {
		invoked = true
		return nil, nil
	}, []string{failed.ID})

	err := wf.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyUnmet)
	assert.False(t, invoked)
	assert.Equal(t, StepStatusFailed, dependent.Status)
}

func TestExecute_DependencyOnUnknownStep(t *testing.T) {
	wf, _ := newTestWorkflow()
	wf.AddDependentStep("orphan", noopWork, []string{"no-such-id"})

	err := wf.Run(context.Background())
	assert.ErrorIs(t, err, ErrDependencyUnmet)
}

func TestExecute_Timeout(t *testing.T) {
	t.Run("exceeded attempts fail and never merge", func(t *testing.T) {
		wf, _ := newTestWorkflow()

		var calls atomic.Int32
		step := wf.AddStep("slow", func(ctx context.Context, data *SharedContext) (any, error) {
			calls.Add(1)
			data.Set("leak", true)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
				return nil, nil
			}
		}, WithStepTimeout(30*time.Millisecond), WithStepRetries(2))

		start := time.Now()
		err := wf.Run(context.Background())

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeoutExceeded)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, 2, step.Attempts)
		assert.False(t, wf.Context().Has("leak"))
	})

	t.Run("work ignoring cancellation is abandoned", func(t *testing.T) {
		wf, _ := newTestWorkflow()

		wf.AddStep("stubborn", func(context.Context, *SharedContext) (any, error) {
			time.Sleep(300 * time.Millisecond)
			return nil, nil
		}, WithStepTimeout(20*time.Millisecond), WithStepRetries(1))

		start := time.Now()
		assert.False(t, wf.Execute(context.Background()))
		assert.Less(t, time.Since(start), 250*time.Millisecond)
	})

	t.Run("finished in time merges writes", func(t *testing.T) {
		wf, _ := newTestWorkflow()
		wf.Context().Set("input", "a")

		wf.AddStep("quick", func(_ context.Context, data *SharedContext) (any, error) {
			data.Set("output", data.Get("input").(string)+"b")
			return nil, nil
		}, WithStepTimeout(time.Second))

		require.True(t, wf.Execute(context.Background()))
		assert.Equal(t, "ab", wf.Context().Get("output"))
	})
}

func TestExecute_WorkflowRetryResetsContext(t *testing.T) {
	wf, _ := newTestWorkflow(
		WithRetries(2),
		WithInitialData(map[string]any{"seed": "kept"}),
	)

	var markerAtStart, seedAtStart []bool
	wf.AddStep("observe", func(_ context.Context, data *SharedContext) (any, error) {
		markerAtStart = append(markerAtStart, data.Has("marker"))
		seedAtStart = append(seedAtStart, data.Has("seed"))
		return nil, nil
	})

	var attempt int
	flaky := wf.AddStep("mark-then-fail", func(_ context.Context, data *SharedContext) (any, error) {
		attempt++
		data.Set("marker", attempt)
		if attempt == 1 {
			return nil, errors.New("first attempt fails")
		}
		return nil, nil
	}, WithStepRetries(1))

	require.True(t, wf.Execute(context.Background()))
	assert.Equal(t, []bool{false, false}, markerAtStart)
	assert.Equal(t, []bool{true, true}, seedAtStart)
	assert.Equal(t, 2, wf.Attempts)
	assert.Equal(t, 2, wf.Context().Get("marker"))
	assert.Equal(t, StepStatusCompleted, flaky.Status)
	assert.Empty(t, flaky.ErrorMessage)
}

func TestExecute_WorkflowRetryExhausted(t *testing.T) {
	wf, _ := newTestWorkflow(WithRetries(3))

	var calls int
	wf.AddStep("never", func(context.Context, *SharedContext) (any, error) {
		calls++
		return nil, errors.New("nope")
	}, WithStepRetries(2))

	err := wf.Run(context.Background())

	assert.ErrorIs(t, err, ErrWorkflowExhausted)
	assert.Equal(t, 6, calls)
	assert.Equal(t, 3, wf.Attempts)
	assert.Equal(t, err, wf.LastError)
}

func TestExecute_ContextCancelled(t *testing.T) {
	wf, _ := newTestWorkflow(WithRetries(5), WithRetryDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())

	wf.AddStep("cancel", func(context.Context, *SharedContext) (any, error) {
		cancel()
		return nil, errors.New("fail after cancel")
	}, WithStepRetries(3), WithStepRetryDelay(time.Hour))

	start := time.Now()
	err := wf.Run(ctx)

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, wf.Attempts)
}

func TestExecute_RunResetsPreviousState(t *testing.T) {
	wf, _ := newTestWorkflow(WithContinueOnError(true))

	var fail atomic.Bool
	fail.Store(true)
	step := wf.AddStep("toggle", func(context.Context, *SharedContext) (any, error) {
		if fail.Load() {
			return nil, errors.New("first run")
		}
		return nil, nil
	}, WithStepRetries(1))

	require.True(t, wf.Execute(context.Background()))
	require.Equal(t, StepStatusFailed, step.Status)

	fail.Store(false)
	require.True(t, wf.Execute(context.Background()))
	assert.Equal(t, StepStatusCompleted, step.Status)
	assert.Empty(t, step.ErrorMessage)
	assert.False(t, wf.HasFailures())
}

func TestExecute_Output(t *testing.T) {
	wf, out := newTestWorkflow()

	wf.AddStep("hello", noopWork)
	wf.AddConditionalStep("skipme", KeyGuard("absent"), noopWork)

	require.True(t, wf.Execute(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Workflow: test")
	assert.Contains(t, text, "[1] ⚙ hello")
	assert.Contains(t, text, "✓ hello")
	assert.Contains(t, text, "↷ skipme skipped: condition not met")
	assert.Contains(t, text, "✓ Workflow test completed")
}
