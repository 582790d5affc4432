package log_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rom8726/stepflow/log"
)

func TestWorkflowAttrs(t *testing.T) {
	assertAttrEqual(t, log.WorkflowID("wf-1"), "workflow_id", "wf-1")
	assertAttrEqual(t, log.Workflow("release"), "workflow", "release")
}

func TestStepAttrs(t *testing.T) {
	assertAttrEqual(t, log.StepID("abc"), "step_id", "abc")
	assertAttrEqual(t, log.StepName("build"), "step", "build")
	assertAttrEqual(t, log.GroupName("tests"), "group", "tests")
	assertAttrEqual(t, log.Status("completed"), "status", "completed")
}

func TestAttempt(t *testing.T) {
	attr := log.Attempt(2, 3)
	assert.Equal(t, "attempt", attr.Key)
	assert.Equal(t, slog.KindGroup, attr.Value.Kind())
	group := attr.Value.Group()
	assert.Len(t, group, 2)
	assert.Equal(t, int64(2), group[0].Value.Int64())
	assert.Equal(t, int64(3), group[1].Value.Int64())
}

func TestDurations(t *testing.T) {
	assert.Equal(t, time.Second, log.Delay(time.Second).Value.Duration())
	assert.Equal(t, time.Minute, log.Elapsed(time.Minute).Value.Duration())
}

func TestError(t *testing.T) {
	assertAttrEqual(t, log.Error(nil), "error", "")
	assertAttrEqual(t, log.Error(errors.New("boom")), "error", "boom")
}

func assertAttrEqual(t *testing.T, attr slog.Attr, key, value string) {
	t.Helper()
	assert.Equal(t, key, attr.Key)
	assert.Equal(t, value, attr.Value.String())
}
