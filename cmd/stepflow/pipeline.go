package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/rom8726/stepflow"
	"github.com/rom8726/stepflow/config"
)

type pipelineOptions struct {
	config   *config.Config
	logger   *slog.Logger
	plugins  *stepflow.PluginManager
	out      io.Writer
	approved bool

	// pause simulates work; zero means no delay
	pause time.Duration
}

// buildPipeline assembles the demo release workflow: checkout, a parallel
// group of checks, packaging, an approval-gated deploy and a notification.
func buildPipeline(opts pipelineOptions) (*stepflow.Workflow, error) {
	pause := func(ctx context.Context) error {
		if opts.pause <= 0 {
			return ctx.Err()
		}

		jitter := time.Duration(rand.Int64N(int64(opts.pause)/2 + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.pause + jitter):
			return nil
		}
	}

	builder := stepflow.NewBuilder("release",
		stepflow.WithBuilderWorkflowOptions(
			stepflow.WithConfig(opts.config),
			stepflow.WithLogger(opts.logger),
			stepflow.WithPluginManager(opts.plugins),
			stepflow.WithOutput(opts.out),
			stepflow.WithInitialData(map[string]any{
				"approved": opts.approved,
				"version":  "1.4.0",
			}),
		),
	)

	builder.
		Step("checkout", func(ctx context.Context, data *stepflow.SharedContext) (any, error) {
			if err := pause(ctx); err != nil {
				return nil, err
			}
			data.Set("commit", "a1b2c3d")

			return true, nil
		}).
		Parallel("checks", 3, func(group *stepflow.GroupBuilder) {
			group.
				Step("lint", checkStep(pause, "lint")).
				Step("unit-tests", checkStep(pause, "unit")).
				Step("integration-tests", checkStep(pause, "integration")).
				When("security-scan",
					stepflow.KeyGuard("commit"),
					checkStep(pause, "security"),
				)
		}).
		DependentStep("package", func(ctx context.Context, data *stepflow.SharedContext) (any, error) {
			if err := pause(ctx); err != nil {
				return nil, err
			}

			artifact := fmt.Sprintf("release-%s-%s.tar.gz", data.Get("version"), data.Get("commit"))
			data.Set("artifact", artifact)

			return artifact, nil
		}, []string{"lint", "unit-tests"}).
		When("deploy",
			stepflow.KeyGuard("approved"),
			func(ctx context.Context, data *stepflow.SharedContext) (any, error) {
				if err := pause(ctx); err != nil {
					return nil, err
				}
				data.Set("deployed", data.Get("artifact"))

				return true, nil
			},
			stepflow.WithStepTimeout(time.Minute),
		).
		DependentStep("notify", func(_ context.Context, data *stepflow.SharedContext) (any, error) {
			target := "nobody"
			if deployed, ok := data.Lookup("deployed"); ok {
				target = fmt.Sprint(deployed)
			}
			data.Set("notified", target)

			return nil, nil
		}, []string{"package", "deploy"})

	return builder.Build()
}

func checkStep(pause func(context.Context) error, name string) stepflow.WorkFunc {
	return func(ctx context.Context, data *stepflow.SharedContext) (any, error) {
		if err := pause(ctx); err != nil {
			return nil, err
		}
		data.Set("check."+name, "passed")

		return true, nil
	}
}
