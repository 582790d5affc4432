package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/rom8726/stepflow"
	"github.com/rom8726/stepflow/config"
	"github.com/rom8726/stepflow/log"
	"github.com/rom8726/stepflow/plugins/engine/audit"
	"github.com/rom8726/stepflow/plugins/engine/metrics"
	ratelimiter "github.com/rom8726/stepflow/plugins/engine/rate-limiter"
	"github.com/rom8726/stepflow/plugins/engine/telemetry"
)

type cliOptions struct {
	configPath      string
	logLevel        string
	continueOnError bool
	auditPath       string
	printMetrics    bool
	stepRate        float64
	approved        bool
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "stepflow",
		Short:         "Run a demo release workflow with the stepflow engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&opts.continueOnError, "continue-on-error", false, "keep going after a step fails")
	flags.StringVar(&opts.auditPath, "audit", "", "write JSON audit events to a file, or - for stderr")
	flags.BoolVar(&opts.printMetrics, "metrics", false, "print Prometheus metrics after the run")
	flags.Float64Var(&opts.stepRate, "step-rate", 0, "max step starts per second, 0 for unlimited")
	flags.BoolVar(&opts.approved, "approved", false, "mark the release as approved so deploy runs")

	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run every step of the workflow",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runWorkflow(cmd, opts, false)
			},
		},
		&cobra.Command{
			Use:   "interactive",
			Short: "Pick steps to run from a numbered menu",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runWorkflow(cmd, opts, true)
			},
		},
	)

	return rootCmd
}

func runWorkflow(cmd *cobra.Command, opts *cliOptions, interactive bool) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("continue-on-error") {
		cfg.Workflow.ContinueOnError = opts.continueOnError
	}

	levelName := cfg.LogLevel
	if opts.logLevel != "" {
		levelName = opts.logLevel
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return err
	}
	logger := log.NewWithWriter(cmd.ErrOrStderr(), "stepflow", level)

	registry := prometheus.NewRegistry()
	pluginManager := stepflow.NewPluginManager()
	pluginManager.Register(metrics.New(metrics.NewPrometheusCollector(registry)))
	pluginManager.Register(telemetry.New(otel.Tracer("stepflow")))

	if opts.stepRate > 0 {
		pluginManager.Register(ratelimiter.New(rate.Limit(opts.stepRate), 1))
	}

	if opts.auditPath != "" {
		out, closeAudit, err := openAudit(opts.auditPath, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer closeAudit()

		pluginManager.Register(audit.New(audit.NewJSONWriter(out)))
	}

	wf, err := buildPipeline(pipelineOptions{
		config:   cfg,
		logger:   logger,
		plugins:  pluginManager,
		out:      cmd.OutOrStdout(),
		approved: opts.approved,
		pause:    150 * time.Millisecond,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if interactive {
		err = wf.ExecuteInteractive(ctx, stepflow.NewLineReader(cmd.InOrStdin()))
	} else {
		if !wf.Execute(ctx) {
			err = wf.LastError
		}
		wf.PrintSummary()
	}

	if opts.printMetrics {
		if metricsErr := writeMetrics(cmd.OutOrStdout(), registry); metricsErr != nil {
			logger.Warn("[stepflow] failed to write metrics", log.Error(metricsErr))
		}
	}

	return err
}

func openAudit(path string, stderr io.Writer) (io.Writer, func(), error) {
	if path == "-" {
		return stderr, func() {}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}

	return file, func() { _ = file.Close() }, nil
}

func writeMetrics(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}

	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	rootCmd := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.New("stepflow").Error("stepflow failed", log.Error(err))
		os.Exit(1)
	}
}
