package stepflow

import (
	"time"
)

type StepOption func(step *Step)

func WithStepRetries(retries int) StepOption {
	return func(step *Step) {
		step.Retries = retries
	}
}

func WithStepRetryDelay(delay time.Duration) StepOption {
	return func(step *Step) {
		step.RetryDelay = delay
	}
}

func WithStepRetryStrategy(strategy RetryStrategy) StepOption {
	return func(step *Step) {
		step.RetryStrategy = strategy
	}
}

// WithStepTimeout bounds each attempt of a standalone step. Zero means no
// limit. Members of a parallel group ignore it.
func WithStepTimeout(timeout time.Duration) StepOption {
	return func(step *Step) {
		step.Timeout = timeout
	}
}

func WithStepMetadata(metadata map[string]any) StepOption {
	return func(step *Step) {
		step.Metadata = metadata
	}
}

type BuilderOption func(builder *Builder)

func WithBuilderWorkflowOptions(opts ...WorkflowOption) BuilderOption {
	return func(builder *Builder) {
		builder.workflowOpts = append(builder.workflowOpts, opts...)
	}
}

// WithBuilderStepDefaults applies opts to every step before its own options.
func WithBuilderStepDefaults(opts ...StepOption) BuilderOption {
	return func(builder *Builder) {
		builder.stepDefaults = append(builder.stepDefaults, opts...)
	}
}
