package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rom8726/stepflow"
	"github.com/rom8726/stepflow/log"
)

type failingWriter struct{}

func (failingWriter) Write(_ context.Context, entry *AuditLogEntry) error {
	if entry.EventType == "step_start" {
		return errors.New("audit sink down")
	}

	return nil
}

func newWorkflow(plugin stepflow.Plugin) *stepflow.Workflow {
	return stepflow.NewWorkflow("audit-test",
		stepflow.WithOutput(io.Discard),
		stepflow.WithLogger(log.Discard()),
		stepflow.WithPlugin(plugin),
	)
}

func eventTypes(entries []AuditLogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.EventType)
	}

	return out
}

func TestAuditPlugin_RecordsLifecycle(t *testing.T) {
	writer := NewMemoryWriter()
	wf := newWorkflow(New(writer))

	wf.AddStep("fetch", func(_ context.Context, data *stepflow.SharedContext) (any, error) {
		data.Set("fetched", true)
		return nil, nil
	}, stepflow.WithStepMetadata(map[string]any{"owner": "ops"}))
	wf.AddConditionalStep("notify", stepflow.KeyGuard("missing"),
		func(context.Context, *stepflow.SharedContext) (any, error) { return nil, nil })
	wf.AddStep("fail", func(context.Context, *stepflow.SharedContext) (any, error) {
		return nil, errors.New("nope")
	}, stepflow.WithStepRetries(1))

	require.False(t, wf.Execute(context.Background()))

	entries := writer.Entries()
	assert.Equal(t, []string{
		"workflow_start",
		"step_start", "step_complete",
		"step_skipped",
		"step_start", "step_failed",
		"workflow_failed",
	}, eventTypes(entries))

	assert.Equal(t, "ops", entries[1].Metadata["owner"])
	assert.Equal(t, "condition not met", entries[3].Reason)
	assert.Equal(t, "nope", entries[5].Error)
	assert.Equal(t, 1, entries[5].Attempts)
	assert.Contains(t, entries[6].Error, "nope")
	assert.Equal(t, wf.ID, entries[6].WorkflowID)
}

func TestAuditPlugin_GroupMembersCarryGroupName(t *testing.T) {
	writer := NewMemoryWriter()
	wf := newWorkflow(New(writer))

	group := wf.AddParallelGroup("checks")
	group.AddStep(wf.NewStep("lint", func(context.Context, *stepflow.SharedContext) (any, error) { return nil, nil }))

	require.True(t, wf.Execute(context.Background()))

	for _, entry := range writer.Entries() {
		if entry.StepName == "lint" {
			assert.Equal(t, "checks", entry.Group)
		}
	}
}

func TestAuditPlugin_WriterErrorFailsStepStart(t *testing.T) {
	wf := newWorkflow(New(failingWriter{}))

	called := false
	wf.AddStep("guarded", func(context.Context, *stepflow.SharedContext) (any, error) {
		called = true
		return nil, nil
	})

	assert.False(t, wf.Execute(context.Background()))
	assert.False(t, called)

	step, ok := wf.StepByName("guarded")
	require.True(t, ok)
	assert.Equal(t, stepflow.StepStatusFailed, step.Status)
	assert.Contains(t, step.ErrorMessage, "audit sink down")
}

func TestJSONWriter_WritesLines(t *testing.T) {
	var buf bytes.Buffer
	wf := newWorkflow(New(NewJSONWriter(&buf)))
	wf.AddStep("only", func(context.Context, *stepflow.SharedContext) (any, error) { return nil, nil })

	require.True(t, wf.Execute(context.Background()))

	var events []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var entry AuditLogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		events = append(events, entry.EventType)
	}

	assert.Equal(t, []string{"workflow_start", "step_start", "step_complete", "workflow_complete"}, events)
}
