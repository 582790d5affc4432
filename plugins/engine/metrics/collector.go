package metrics

import (
	"time"

	"github.com/rom8726/stepflow"
)

type MetricsCollector interface {
	RecordWorkflowStarted(workflow string)
	RecordWorkflowCompleted(workflow string, duration time.Duration, attempts int)
	RecordWorkflowFailed(workflow string, duration time.Duration, attempts int)
	RecordStepStarted(workflow, step string, kind stepflow.StepKind)
	RecordStepCompleted(workflow, step string, kind stepflow.StepKind, duration time.Duration, attempts int)
	RecordStepFailed(workflow, step string, kind stepflow.StepKind, duration time.Duration, attempts int)
	RecordStepSkipped(workflow, step string, kind stepflow.StepKind)
}
