package stepflow

import (
	"io"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/rom8726/stepflow/config"
)

type WorkflowOption func(wf *Workflow)

// WithRetries sets how many times the whole workflow is attempted.
func WithRetries(retries int) WorkflowOption {
	return func(wf *Workflow) {
		wf.Retries = retries
	}
}

func WithRetryDelay(delay time.Duration) WorkflowOption {
	return func(wf *Workflow) {
		wf.RetryDelay = delay
	}
}

func WithContinueOnError(continueOnError bool) WorkflowOption {
	return func(wf *Workflow) {
		wf.ContinueOnError = continueOnError
	}
}

func WithLogger(logger *slog.Logger) WorkflowOption {
	return func(wf *Workflow) {
		if logger != nil {
			wf.logger = logger
		}
	}
}

// WithOutput sets the sink for progress lines, menus and summaries.
func WithOutput(out io.Writer) WorkflowOption {
	return func(wf *Workflow) {
		if out != nil {
			wf.out = out
		}
	}
}

func WithPluginManager(pluginManager *PluginManager) WorkflowOption {
	return func(wf *Workflow) {
		if pluginManager != nil {
			wf.plugins = pluginManager
		}
	}
}

func WithPlugin(plugin Plugin) WorkflowOption {
	return func(wf *Workflow) {
		wf.plugins.Register(plugin)
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) WorkflowOption {
	return func(wf *Workflow) {
		if clock != nil {
			wf.clock = clock
		}
	}
}

// WithInitialData seeds the shared context. The same values are restored
// when the context is replaced for a workflow-level retry.
func WithInitialData(data map[string]any) WorkflowOption {
	return func(wf *Workflow) {
		wf.initial = maps.Clone(data)
		wf.data = NewSharedContextFrom(data)
	}
}

// WithStepDefaults applies opts to every step created through the workflow,
// before the step's own options.
func WithStepDefaults(opts ...StepOption) WorkflowOption {
	return func(wf *Workflow) {
		wf.stepDefaults = append(wf.stepDefaults, opts...)
	}
}

func WithGroupConcurrency(maxConcurrency int) WorkflowOption {
	return func(wf *Workflow) {
		wf.groupConcurrency = maxConcurrency
	}
}

// WithConfig applies the workflow policy and the step and group defaults
// from cfg.
func WithConfig(cfg *config.Config) WorkflowOption {
	return func(wf *Workflow) {
		if cfg == nil {
			return
		}

		wf.Retries = cfg.Workflow.Retries
		wf.RetryDelay = cfg.Workflow.RetryDelay
		wf.ContinueOnError = cfg.Workflow.ContinueOnError
		wf.groupConcurrency = cfg.Group.MaxConcurrency
		wf.stepDefaults = append(wf.stepDefaults,
			WithStepRetries(cfg.Step.Retries),
			WithStepRetryDelay(cfg.Step.RetryDelay),
			WithStepRetryStrategy(ParseRetryStrategy(cfg.Step.RetryStrategy)),
			WithStepTimeout(cfg.Step.Timeout),
		)
	}
}

// ParseRetryStrategy maps "linear" and "exponential" to their strategies and
// anything else to fixed.
func ParseRetryStrategy(s string) RetryStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exponential":
		return RetryStrategyExponential
	case "linear":
		return RetryStrategyLinear
	default:
		return RetryStrategyFixed
	}
}
