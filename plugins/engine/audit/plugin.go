package audit

import (
	"context"
	"time"

	"github.com/rom8726/stepflow"
)

var _ stepflow.Plugin = (*AuditPlugin)(nil)

type AuditLogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  string         `json:"event_type"`
	WorkflowID string         `json:"workflow_id"`
	Workflow   string         `json:"workflow"`
	StepID     string         `json:"step_id,omitempty"`
	StepName   string         `json:"step_name,omitempty"`
	Group      string         `json:"group,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts,omitempty"`
	Error      string         `json:"error,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Duration   *time.Duration `json:"duration,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type Writer interface {
	Write(ctx context.Context, entry *AuditLogEntry) error
}

// AuditPlugin records every lifecycle event to a Writer. A writer error on
// step start fails that step.
type AuditPlugin struct {
	stepflow.BasePlugin

	writer Writer
	now    func() time.Time
}

func New(writer Writer) *AuditPlugin {
	return &AuditPlugin{
		BasePlugin: stepflow.NewBasePlugin("audit", stepflow.PriorityNormal),
		writer:     writer,
		now:        time.Now,
	}
}

func (p *AuditPlugin) OnWorkflowStart(ctx context.Context, wf *stepflow.Workflow) error {
	entry := p.workflowEntry("workflow_start", wf)
	entry.Metadata = map[string]any{"context_keys": wf.Context().Keys()}

	return p.logEvent(ctx, entry)
}

func (p *AuditPlugin) OnWorkflowComplete(ctx context.Context, wf *stepflow.Workflow) error {
	entry := p.workflowEntry("workflow_complete", wf)
	entry.Duration = durationPtr(wf.Duration())

	return p.logEvent(ctx, entry)
}

func (p *AuditPlugin) OnWorkflowFailed(ctx context.Context, wf *stepflow.Workflow, err error) error {
	entry := p.workflowEntry("workflow_failed", wf)
	entry.Duration = durationPtr(wf.Duration())
	if err != nil {
		entry.Error = err.Error()
	}

	return p.logEvent(ctx, entry)
}

func (p *AuditPlugin) OnStepStart(ctx context.Context, wf *stepflow.Workflow, step *stepflow.Step) error {
	entry := p.stepEntry("step_start", wf, step)
	if len(step.Metadata) > 0 {
		entry.Metadata = step.Metadata
	}

	return p.logEvent(ctx, entry)
}

func (p *AuditPlugin) OnStepComplete(ctx context.Context, wf *stepflow.Workflow, step *stepflow.Step) error {
	entry := p.stepEntry("step_complete", wf, step)
	entry.Duration = durationPtr(step.Duration())

	return p.logEvent(ctx, entry)
}

func (p *AuditPlugin) OnStepFailed(ctx context.Context, wf *stepflow.Workflow, step *stepflow.Step, err error) error {
	entry := p.stepEntry("step_failed", wf, step)
	entry.Duration = durationPtr(step.Duration())

	if step.ErrorMessage != "" {
		entry.Error = step.ErrorMessage
	} else if err != nil {
		entry.Error = err.Error()
	}

	return p.logEvent(ctx, entry)
}

func (p *AuditPlugin) OnStepSkipped(ctx context.Context, wf *stepflow.Workflow, step *stepflow.Step) error {
	entry := p.stepEntry("step_skipped", wf, step)
	entry.Reason = step.SkipReason

	return p.logEvent(ctx, entry)
}

func (p *AuditPlugin) workflowEntry(event string, wf *stepflow.Workflow) *AuditLogEntry {
	return &AuditLogEntry{
		Timestamp:  p.now(),
		EventType:  event,
		WorkflowID: wf.ID,
		Workflow:   wf.Name,
		Status:     string(wf.Status),
		Attempts:   wf.Attempts,
	}
}

func (p *AuditPlugin) stepEntry(event string, wf *stepflow.Workflow, step *stepflow.Step) *AuditLogEntry {
	entry := &AuditLogEntry{
		Timestamp:  p.now(),
		EventType:  event,
		WorkflowID: wf.ID,
		Workflow:   wf.Name,
		StepID:     step.ID,
		StepName:   step.Name,
		Status:     string(step.Status),
		Attempts:   step.Attempts,
	}
	if group := step.Group(); group != nil {
		entry.Group = group.Name
	}

	return entry
}

func (p *AuditPlugin) logEvent(ctx context.Context, entry *AuditLogEntry) error {
	if p.writer == nil {
		return nil
	}

	return p.writer.Write(ctx, entry)
}

func durationPtr(d time.Duration) *time.Duration {
	if d <= 0 {
		return nil
	}

	return &d
}
