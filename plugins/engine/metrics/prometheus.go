package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rom8726/stepflow"
)

var _ MetricsCollector = (*PrometheusCollector)(nil)

type PrometheusCollector struct {
	workflowStarted  *prometheus.CounterVec
	workflowFinished *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	workflowAttempts *prometheus.HistogramVec

	stepStarted   *prometheus.CounterVec
	stepCompleted *prometheus.CounterVec
	stepFailed    *prometheus.CounterVec
	stepSkipped   *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepAttempts  *prometheus.HistogramVec
}

func NewPrometheusCollector(registry prometheus.Registerer) *PrometheusCollector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)
	attemptBuckets := []float64{1, 2, 3, 5, 8, 13}

	return &PrometheusCollector{
		workflowStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_workflow_started_total",
				Help: "Total number of workflow runs started",
			},
			[]string{"workflow"},
		),
		workflowFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_workflow_finished_total",
				Help: "Total number of finished workflow runs by final status",
			},
			[]string{"workflow", "status"},
		),
		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepflow_workflow_duration_seconds",
				Help:    "Duration of workflow runs in seconds, including workflow-level retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"workflow", "status"},
		),
		workflowAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepflow_workflow_attempts",
				Help:    "Workflow-level attempts used per run",
				Buckets: attemptBuckets,
			},
			[]string{"workflow", "status"},
		),
		stepStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_step_started_total",
				Help: "Total number of step executions started",
			},
			[]string{"workflow", "step", "kind"},
		),
		stepCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_step_completed_total",
				Help: "Total number of completed step executions",
			},
			[]string{"workflow", "step", "kind"},
		),
		stepFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_step_failed_total",
				Help: "Total number of failed step executions",
			},
			[]string{"workflow", "step", "kind"},
		),
		stepSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stepflow_step_skipped_total",
				Help: "Total number of skipped steps",
			},
			[]string{"workflow", "step", "kind"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepflow_step_duration_seconds",
				Help:    "Duration of step execution in seconds, including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"workflow", "step", "kind", "status"},
		),
		stepAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stepflow_step_attempts",
				Help:    "Attempts used per step execution",
				Buckets: attemptBuckets,
			},
			[]string{"workflow", "step", "kind", "status"},
		),
	}
}

func (c *PrometheusCollector) RecordWorkflowStarted(workflow string) {
	c.workflowStarted.WithLabelValues(workflow).Inc()
}

func (c *PrometheusCollector) RecordWorkflowCompleted(workflow string, duration time.Duration, attempts int) {
	c.recordWorkflowFinished(workflow, stepflow.StatusCompleted, duration, attempts)
}

func (c *PrometheusCollector) RecordWorkflowFailed(workflow string, duration time.Duration, attempts int) {
	c.recordWorkflowFinished(workflow, stepflow.StatusFailed, duration, attempts)
}

func (c *PrometheusCollector) recordWorkflowFinished(
	workflow string,
	status stepflow.WorkflowStatus,
	duration time.Duration,
	attempts int,
) {
	c.workflowFinished.WithLabelValues(workflow, string(status)).Inc()
	c.workflowDuration.WithLabelValues(workflow, string(status)).Observe(duration.Seconds())
	c.workflowAttempts.WithLabelValues(workflow, string(status)).Observe(float64(attempts))
}

func (c *PrometheusCollector) RecordStepStarted(workflow, step string, kind stepflow.StepKind) {
	c.stepStarted.WithLabelValues(workflow, step, string(kind)).Inc()
}

func (c *PrometheusCollector) RecordStepCompleted(
	workflow string,
	step string,
	kind stepflow.StepKind,
	duration time.Duration,
	attempts int,
) {
	c.stepCompleted.WithLabelValues(workflow, step, string(kind)).Inc()
	c.observeStep(workflow, step, kind, stepflow.StepStatusCompleted, duration, attempts)
}

func (c *PrometheusCollector) RecordStepFailed(
	workflow string,
	step string,
	kind stepflow.StepKind,
	duration time.Duration,
	attempts int,
) {
	c.stepFailed.WithLabelValues(workflow, step, string(kind)).Inc()
	c.observeStep(workflow, step, kind, stepflow.StepStatusFailed, duration, attempts)
}

func (c *PrometheusCollector) RecordStepSkipped(workflow, step string, kind stepflow.StepKind) {
	c.stepSkipped.WithLabelValues(workflow, step, string(kind)).Inc()
}

func (c *PrometheusCollector) observeStep(
	workflow string,
	step string,
	kind stepflow.StepKind,
	status stepflow.StepStatus,
	duration time.Duration,
	attempts int,
) {
	labels := []string{workflow, step, string(kind), string(status)}
	c.stepDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	c.stepAttempts.WithLabelValues(labels...).Observe(float64(attempts))
}
