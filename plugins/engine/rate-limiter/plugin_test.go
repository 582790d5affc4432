package rate_limiter

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/rom8726/stepflow"
	"github.com/rom8726/stepflow/log"
)

func newWorkflow(plugin stepflow.Plugin, opts ...stepflow.WorkflowOption) *stepflow.Workflow {
	opts = append([]stepflow.WorkflowOption{
		stepflow.WithOutput(io.Discard),
		stepflow.WithLogger(log.Discard()),
		stepflow.WithPlugin(plugin),
	}, opts...)

	return stepflow.NewWorkflow("ratelimit-test", opts...)
}

func noop(context.Context, *stepflow.SharedContext) (any, error) { return nil, nil }

func TestRateLimiterPlugin_RejectsWhenExhausted(t *testing.T) {
	plugin := New(rate.Every(time.Hour), 1, WithReject())
	wf := newWorkflow(plugin)
	wf.AddStep("deploy", noop)

	require.True(t, wf.Execute(context.Background()))
	require.False(t, wf.Execute(context.Background()))

	step, ok := wf.StepByName("deploy")
	require.True(t, ok)
	assert.Equal(t, stepflow.StepStatusFailed, step.Status)
	assert.Contains(t, step.ErrorMessage, "rate limit exceeded for ratelimit-test:deploy")
}

func TestRateLimiterPlugin_KeysAreIndependent(t *testing.T) {
	plugin := New(rate.Every(time.Hour), 1, WithReject())
	wf := newWorkflow(plugin)
	wf.AddStep("a", noop)
	wf.AddStep("b", noop)

	assert.True(t, wf.Execute(context.Background()))
}

func TestRateLimiterPlugin_WaitsForToken(t *testing.T) {
	plugin := New(rate.Every(50*time.Millisecond), 1)
	wf := newWorkflow(plugin)
	wf.AddStep("tick", noop)

	start := time.Now()
	require.True(t, wf.Execute(context.Background()))
	require.True(t, wf.Execute(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRateLimiterPlugin_WaitHonorsContext(t *testing.T) {
	plugin := New(rate.Every(time.Hour), 1)
	wf := newWorkflow(plugin)
	wf.AddStep("tick", noop)

	require.True(t, wf.Execute(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.False(t, wf.Execute(ctx))
}
