package log

import (
	"log/slog"
	"time"
)

func WorkflowID(id string) slog.Attr {
	return slog.String("workflow_id", id)
}

func Workflow(name string) slog.Attr {
	return slog.String("workflow", name)
}

func StepID(id string) slog.Attr {
	return slog.String("step_id", id)
}

func StepName(name string) slog.Attr {
	return slog.String("step", name)
}

func GroupName(name string) slog.Attr {
	return slog.String("group", name)
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Attempt(n, of int) slog.Attr {
	return slog.Group("attempt", slog.Int("n", n), slog.Int("of", of))
}

func Delay(d time.Duration) slog.Attr {
	return slog.Duration("delay", d)
}

func Elapsed(d time.Duration) slog.Attr {
	return slog.Duration("elapsed", d)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func Reason(reason string) slog.Attr {
	return slog.String("reason", reason)
}
