package metrics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rom8726/stepflow"
	"github.com/rom8726/stepflow/log"
)

type fakeCollector struct {
	workflowStarted   int
	workflowCompleted int
	workflowFailed    int

	stepStarted   []string
	stepCompleted []string
	stepFailed    []string
	stepSkipped   []string

	lastAttempts int
}

func (f *fakeCollector) RecordWorkflowStarted(string) { f.workflowStarted++ }

func (f *fakeCollector) RecordWorkflowCompleted(_ string, _ time.Duration, attempts int) {
	f.workflowCompleted++
	f.lastAttempts = attempts
}

func (f *fakeCollector) RecordWorkflowFailed(_ string, _ time.Duration, attempts int) {
	f.workflowFailed++
	f.lastAttempts = attempts
}

func (f *fakeCollector) RecordStepStarted(_, step string, _ stepflow.StepKind) {
	f.stepStarted = append(f.stepStarted, step)
}

func (f *fakeCollector) RecordStepCompleted(_, step string, _ stepflow.StepKind, _ time.Duration, _ int) {
	f.stepCompleted = append(f.stepCompleted, step)
}

func (f *fakeCollector) RecordStepFailed(_, step string, _ stepflow.StepKind, _ time.Duration, _ int) {
	f.stepFailed = append(f.stepFailed, step)
}

func (f *fakeCollector) RecordStepSkipped(_, step string, _ stepflow.StepKind) {
	f.stepSkipped = append(f.stepSkipped, step)
}

func newWorkflow(collector MetricsCollector, opts ...stepflow.WorkflowOption) *stepflow.Workflow {
	opts = append([]stepflow.WorkflowOption{
		stepflow.WithOutput(io.Discard),
		stepflow.WithLogger(log.Discard()),
		stepflow.WithPlugin(New(collector)),
	}, opts...)

	return stepflow.NewWorkflow("metrics-test", opts...)
}

func noop(context.Context, *stepflow.SharedContext) (any, error) { return nil, nil }

func TestMetricsPlugin_SuccessfulRun(t *testing.T) {
	collector := &fakeCollector{}
	wf := newWorkflow(collector)

	wf.AddStep("build", noop)
	wf.AddConditionalStep("deploy", func(*stepflow.SharedContext) (bool, error) { return false, nil }, noop)
	group := wf.AddParallelGroup("checks")
	group.AddStep(wf.NewStep("lint", noop))
	group.AddStep(wf.NewStep("test", noop))

	require.True(t, wf.Execute(context.Background()))

	assert.Equal(t, 1, collector.workflowStarted)
	assert.Equal(t, 1, collector.workflowCompleted)
	assert.Equal(t, 0, collector.workflowFailed)
	assert.Equal(t, 1, collector.lastAttempts)
	assert.ElementsMatch(t, []string{"build", "lint", "test"}, collector.stepStarted)
	assert.ElementsMatch(t, []string{"build", "lint", "test"}, collector.stepCompleted)
	assert.Equal(t, []string{"deploy"}, collector.stepSkipped)
	assert.Empty(t, collector.stepFailed)
}

func TestMetricsPlugin_FailedRun(t *testing.T) {
	collector := &fakeCollector{}
	wf := newWorkflow(collector, stepflow.WithRetries(2), stepflow.WithRetryDelay(time.Millisecond))

	wf.AddStep("flaky", func(context.Context, *stepflow.SharedContext) (any, error) {
		return nil, errors.New("boom")
	}, stepflow.WithStepRetries(1))

	require.False(t, wf.Execute(context.Background()))

	assert.Equal(t, 1, collector.workflowStarted)
	assert.Equal(t, 1, collector.workflowFailed)
	assert.Equal(t, 2, collector.lastAttempts)
	assert.Equal(t, []string{"flaky", "flaky"}, collector.stepFailed)
}

func TestMetricsPlugin_NilCollector(t *testing.T) {
	wf := stepflow.NewWorkflow("nil-collector",
		stepflow.WithOutput(io.Discard),
		stepflow.WithLogger(log.Discard()),
		stepflow.WithPlugin(New(nil)),
	)
	wf.AddStep("only", noop)

	assert.True(t, wf.Execute(context.Background()))
}
