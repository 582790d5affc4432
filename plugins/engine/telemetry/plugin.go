package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rom8726/stepflow"
)

var _ stepflow.Plugin = (*TelemetryPlugin)(nil)

type spanEntry struct {
	span      trace.Span
	createdAt time.Time
}

type workflowCtxEntry struct {
	ctx       context.Context
	createdAt time.Time
}

// TelemetryPlugin opens one span per workflow run and a child span per step.
type TelemetryPlugin struct {
	stepflow.BasePlugin

	tracer       trace.Tracer
	mu           sync.Mutex
	spans        map[string]*spanEntry
	workflowCtxs map[string]*workflowCtxEntry
	defaultTTL   time.Duration
}

type TelemetryOption func(*TelemetryPlugin)

// WithDefaultTTL bounds how long an unfinished span is kept before it is
// ended as expired.
func WithDefaultTTL(ttl time.Duration) TelemetryOption {
	return func(p *TelemetryPlugin) {
		p.defaultTTL = ttl
	}
}

func New(tracer trace.Tracer, opts ...TelemetryOption) *TelemetryPlugin {
	if tracer == nil {
		tracer = otel.Tracer("stepflow")
	}

	plugin := &TelemetryPlugin{
		BasePlugin:   stepflow.NewBasePlugin("telemetry", stepflow.PriorityHigh),
		tracer:       tracer,
		spans:        make(map[string]*spanEntry),
		workflowCtxs: make(map[string]*workflowCtxEntry),
		defaultTTL:   1 * time.Hour,
	}

	for _, opt := range opts {
		opt(plugin)
	}

	return plugin
}

func workflowKey(wf *stepflow.Workflow) string { return "workflow:" + wf.ID }

func stepKey(step *stepflow.Step) string { return "step:" + step.ID }

func (p *TelemetryPlugin) OnWorkflowStart(ctx context.Context, wf *stepflow.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	workflowCtx, span := p.tracer.Start(ctx, fmt.Sprintf("workflow.%s", wf.Name),
		trace.WithSpanKind(trace.SpanKindInternal))

	span.SetAttributes(
		attribute.String("workflow.id", wf.ID),
		attribute.String("workflow.name", wf.Name),
		attribute.Int("workflow.retries", wf.Retries),
		attribute.Bool("workflow.continue_on_error", wf.ContinueOnError),
	)

	now := time.Now()
	p.spans[workflowKey(wf)] = &spanEntry{span: span, createdAt: now}
	p.workflowCtxs[wf.ID] = &workflowCtxEntry{ctx: workflowCtx, createdAt: now}

	p.cleanupExpired()

	return nil
}

func (p *TelemetryPlugin) OnWorkflowComplete(_ context.Context, wf *stepflow.Workflow) error {
	p.endWorkflow(wf, codes.Ok, "workflow completed", nil)

	return nil
}

func (p *TelemetryPlugin) OnWorkflowFailed(_ context.Context, wf *stepflow.Workflow, err error) error {
	p.endWorkflow(wf, codes.Error, "workflow failed", err)

	return nil
}

func (p *TelemetryPlugin) endWorkflow(wf *stepflow.Workflow, code codes.Code, description string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := workflowKey(wf)
	if entry, ok := p.spans[key]; ok {
		entry.span.SetAttributes(
			attribute.String("workflow.status", string(wf.Status)),
			attribute.Int("workflow.attempts", wf.Attempts),
		)
		if err != nil {
			entry.span.RecordError(err)
		}
		entry.span.SetStatus(code, description)
		entry.span.End()
		delete(p.spans, key)
	}
	delete(p.workflowCtxs, wf.ID)
}

func (p *TelemetryPlugin) OnStepStart(ctx context.Context, wf *stepflow.Workflow, step *stepflow.Step) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, span := p.tracer.Start(p.parentCtx(ctx, wf), fmt.Sprintf("step.%s", step.Name),
		trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(stepAttributes(wf, step)...)

	p.spans[stepKey(step)] = &spanEntry{span: span, createdAt: time.Now()}

	return nil
}

func (p *TelemetryPlugin) OnStepComplete(_ context.Context, _ *stepflow.Workflow, step *stepflow.Step) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := stepKey(step)
	if entry, ok := p.spans[key]; ok {
		entry.span.SetAttributes(
			attribute.String("step.status", string(step.Status)),
			attribute.Int("step.attempts", step.Attempts),
		)
		entry.span.SetStatus(codes.Ok, "step completed")
		entry.span.End()
		delete(p.spans, key)
	}

	return nil
}

func (p *TelemetryPlugin) OnStepFailed(_ context.Context, _ *stepflow.Workflow, step *stepflow.Step, err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := stepKey(step)
	if entry, ok := p.spans[key]; ok {
		entry.span.SetAttributes(
			attribute.String("step.status", string(step.Status)),
			attribute.Int("step.attempts", step.Attempts),
			attribute.String("step.error", step.ErrorMessage),
		)
		if err != nil {
			entry.span.RecordError(err)
		}
		entry.span.SetStatus(codes.Error, "step failed")
		entry.span.End()
		delete(p.spans, key)
	}

	return nil
}

// OnStepSkipped records a zero-length span so skipped steps remain visible
// in the trace.
func (p *TelemetryPlugin) OnStepSkipped(ctx context.Context, wf *stepflow.Workflow, step *stepflow.Step) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, span := p.tracer.Start(p.parentCtx(ctx, wf), fmt.Sprintf("step.%s", step.Name),
		trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(stepAttributes(wf, step)...)
	span.SetAttributes(attribute.String("step.skip_reason", step.SkipReason))
	span.SetStatus(codes.Unset, "step skipped")
	span.End()

	return nil
}

func (p *TelemetryPlugin) parentCtx(ctx context.Context, wf *stepflow.Workflow) context.Context {
	if entry, ok := p.workflowCtxs[wf.ID]; ok {
		return entry.ctx
	}

	return ctx
}

func stepAttributes(wf *stepflow.Workflow, step *stepflow.Step) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("step.id", step.ID),
		attribute.String("step.name", step.Name),
		attribute.String("step.kind", string(step.Kind())),
		attribute.String("step.status", string(step.Status)),
		attribute.Int("step.retries", step.Retries),
		attribute.String("step.retry_strategy", step.RetryStrategy.String()),
		attribute.String("workflow.id", wf.ID),
		attribute.String("workflow.name", wf.Name),
	}

	if group := step.Group(); group != nil {
		attrs = append(attrs, attribute.String("step.group", group.Name))
	}
	if step.Timeout > 0 {
		attrs = append(attrs, attribute.String("step.timeout", step.Timeout.String()))
	}

	return attrs
}

func (p *TelemetryPlugin) cleanupExpired() {
	now := time.Now()

	for key, entry := range p.spans {
		if now.Sub(entry.createdAt) > p.defaultTTL {
			entry.span.SetStatus(codes.Error, "span expired due to TTL")
			entry.span.End()
			delete(p.spans, key)
		}
	}

	for id, entry := range p.workflowCtxs {
		if now.Sub(entry.createdAt) > p.defaultTTL {
			delete(p.workflowCtxs, id)
		}
	}
}
