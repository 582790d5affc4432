package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rom8726/stepflow/log"
)

func TestNewUsesInfoLevel(t *testing.T) {
	logger := log.New("svc")
	ctx := context.Background()

	assert.False(t, logger.Handler().Enabled(ctx, slog.LevelDebug))
	assert.True(t, logger.Handler().Enabled(ctx, slog.LevelInfo))
}

func TestNewWithWriterOutputsService(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter(&buf, "stepflow", slog.LevelDebug)
	logger.Debug("hello", log.StepName("build"))

	out := buf.String()
	assert.Contains(t, out, "service=stepflow")
	assert.Contains(t, out, "step=build")
	assert.Contains(t, out, "msg=hello")
}

func TestDiscard(t *testing.T) {
	logger := log.Discard()
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{" error ", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := log.ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := log.ParseLevel("verbose")
	assert.Error(t, err)
}
