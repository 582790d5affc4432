package metrics

import (
	"context"

	"github.com/rom8726/stepflow"
)

var _ stepflow.Plugin = (*MetricsPlugin)(nil)

// MetricsPlugin forwards workflow and step lifecycle events to a collector.
// Durations are taken from the timestamps the engine stamps on the workflow
// and its steps.
type MetricsPlugin struct {
	stepflow.BasePlugin

	collector MetricsCollector
}

func New(collector MetricsCollector) *MetricsPlugin {
	return &MetricsPlugin{
		BasePlugin: stepflow.NewBasePlugin("metrics", stepflow.PriorityHigh),
		collector:  collector,
	}
}

func (p *MetricsPlugin) OnWorkflowStart(_ context.Context, wf *stepflow.Workflow) error {
	if p.collector != nil {
		p.collector.RecordWorkflowStarted(wf.Name)
	}

	return nil
}

func (p *MetricsPlugin) OnWorkflowComplete(_ context.Context, wf *stepflow.Workflow) error {
	if p.collector != nil {
		p.collector.RecordWorkflowCompleted(wf.Name, wf.Duration(), wf.Attempts)
	}

	return nil
}

func (p *MetricsPlugin) OnWorkflowFailed(_ context.Context, wf *stepflow.Workflow, _ error) error {
	if p.collector != nil {
		p.collector.RecordWorkflowFailed(wf.Name, wf.Duration(), wf.Attempts)
	}

	return nil
}

func (p *MetricsPlugin) OnStepStart(_ context.Context, wf *stepflow.Workflow, step *stepflow.Step) error {
	if p.collector != nil {
		p.collector.RecordStepStarted(wf.Name, step.Name, step.Kind())
	}

	return nil
}

func (p *MetricsPlugin) OnStepComplete(_ context.Context, wf *stepflow.Workflow, step *stepflow.Step) error {
	if p.collector != nil {
		p.collector.RecordStepCompleted(wf.Name, step.Name, step.Kind(), step.Duration(), step.Attempts)
	}

	return nil
}

func (p *MetricsPlugin) OnStepFailed(_ context.Context, wf *stepflow.Workflow, step *stepflow.Step, _ error) error {
	if p.collector != nil {
		p.collector.RecordStepFailed(wf.Name, step.Name, step.Kind(), step.Duration(), step.Attempts)
	}

	return nil
}

func (p *MetricsPlugin) OnStepSkipped(_ context.Context, wf *stepflow.Workflow, step *stepflow.Step) error {
	if p.collector != nil {
		p.collector.RecordStepSkipped(wf.Name, step.Name, step.Kind())
	}

	return nil
}
