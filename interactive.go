package stepflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rom8726/stepflow/log"
)

// LineReader is a blocking source of user input, one line per call. It
// returns io.EOF when no more input is available.
type LineReader interface {
	ReadLine() (string, error)
}

type scannerLineReader struct {
	scanner *bufio.Scanner
}

func NewLineReader(r io.Reader) LineReader {
	return &scannerLineReader{scanner: bufio.NewScanner(r)}
}

func (r *scannerLineReader) ReadLine() (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

// ExecuteInteractive shows the step menu, reads a selection and runs it,
// until the user exits or input ends. Step failures are reported and the
// loop goes on.
func (wf *Workflow) ExecuteInteractive(ctx context.Context, in LineReader) error {
	steps := wf.BuildStepList()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wf.reporter.RenderStepList(wf.Name, steps)
		wf.reporter.Prompt()

		line, err := in.ReadLine()
		if errors.Is(err, io.EOF) {
			wf.reporter.Goodbye()

			return nil
		}
		if err != nil {
			return fmt.Errorf("read selection: %w", err)
		}

		selection := ParseStepSelection(line, steps)
		if selection.Exit() {
			wf.reporter.Goodbye()

			return nil
		}

		if err := wf.runSelectionSafely(ctx, selection.Indices, steps); err != nil {
			wf.reporter.SelectionFailed(err)
			wf.logger.Warn("[stepflow] selection failed", log.Error(err))
		}

		if len(selection.Indices) > 0 {
			wf.PrintSummary()
		}
	}
}

func (wf *Workflow) runSelectionSafely(ctx context.Context, indices []int, steps []FlatStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("selection panicked: %v", r)
		}
	}()

	return wf.ExecuteSelectedSteps(ctx, indices, steps)
}

// PrintSummary writes the step status table and run timing to the output.
func (wf *Workflow) PrintSummary() {
	defer func() {
		if r := recover(); r != nil {
			wf.logger.Error("[stepflow] summary rendering panicked", "panic", r)
		}
	}()

	wf.reporter.RenderSummary(wf)
}
