package stepflow

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Reporter renders progress lines, the selection menu and run summaries.
// Output failures are ignored. Styles come from a renderer bound to the
// output, so non-terminal writers receive plain text.
type Reporter struct {
	out io.Writer
	mu  sync.Mutex

	title   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
	info    lipgloss.Style
}

func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = io.Discard
	}

	renderer := lipgloss.NewRenderer(out)

	return &Reporter{
		out:     out,
		title:   renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		muted:   renderer.NewStyle().Foreground(lipgloss.Color("#888888")),
		success: renderer.NewStyle().Foreground(lipgloss.Color("#50C878")),
		failure: renderer.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		warning: renderer.NewStyle().Foreground(lipgloss.Color("#F5A623")),
		info:    renderer.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
	}
}

func (r *Reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *Reporter) write(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = io.WriteString(r.out, s)
}

func (r *Reporter) WorkflowStarted(wf *Workflow) {
	r.printf("%s\n", r.title.Render(fmt.Sprintf("▶ Workflow: %s", wf.Name)))
}

func (r *Reporter) WorkflowRetrying(wf *Workflow, attempt, of int, delay time.Duration) {
	r.printf("%s\n", r.warning.Render(fmt.Sprintf(
		"↻ Retrying workflow %s (attempt %d/%d) in %s", wf.Name, attempt, of, formatDuration(delay))))
}

func (r *Reporter) WorkflowCompleted(wf *Workflow) {
	r.printf("%s\n", r.success.Render(fmt.Sprintf(
		"✓ Workflow %s completed in %s", wf.Name, formatDuration(wf.Duration()))))
}

func (r *Reporter) WorkflowFailed(wf *Workflow, err error) {
	r.printf("%s\n", r.failure.Render(fmt.Sprintf("✗ Workflow %s failed: %v", wf.Name, err)))
}

func (r *Reporter) StepStarted(step *Step, position int) {
	prefix := "  "
	if position > 0 {
		prefix = fmt.Sprintf("[%d] ", position)
	}
	if step.IsParallel() {
		prefix = "  ∥ "
	}

	r.printf("%s%s\n", prefix, r.info.Render(fmt.Sprintf("⚙ %s ...", step.Name)))
}

func (r *Reporter) StepCompleted(step *Step) {
	r.printf("  %s\n", r.success.Render(fmt.Sprintf(
		"✓ %s (%s)", step.Name, formatDuration(step.Duration()))))
}

func (r *Reporter) StepFailed(step *Step, err error) {
	r.printf("  %s\n", r.failure.Render(fmt.Sprintf("✗ %s: %v", step.Name, err)))
}

func (r *Reporter) StepRetrying(step *Step, attempt, of int, delay time.Duration, err error) {
	r.printf("  %s\n", r.warning.Render(fmt.Sprintf(
		"↻ %s attempt %d/%d failed: %v (retry in %s)", step.Name, attempt, of, err, formatDuration(delay))))
}

func (r *Reporter) StepSkipped(step *Step) {
	r.printf("  %s\n", r.muted.Render(fmt.Sprintf("↷ %s skipped: %s", step.Name, step.SkipReason)))
}

func (r *Reporter) GroupStarted(group *ParallelGroup, selected, total int) {
	detail := fmt.Sprintf("%d steps, max concurrency %d", total, group.MaxConcurrency)
	if selected < total {
		detail = fmt.Sprintf("%d of %d steps selected", selected, total)
	}

	r.printf("%s\n", r.title.Render(fmt.Sprintf("⇉ Parallel group: %s (%s)", group.Name, detail)))
}

func (r *Reporter) GroupFinished(group *ParallelGroup, completed, failed int) {
	style := r.success
	if failed > 0 {
		style = r.failure
	}

	r.printf("%s\n", style.Render(fmt.Sprintf(
		"⇇ Parallel group %s joined: %d completed, %d failed", group.Name, completed, failed)))
}

func (r *Reporter) SelectionStarted(selected, total int) {
	r.printf("%s\n", r.title.Render(fmt.Sprintf("▶ Running %d of %d steps", selected, total)))
}

func (r *Reporter) SelectionFailed(err error) {
	r.printf("%s\n", r.failure.Render(fmt.Sprintf("✗ Selection failed: %v", err)))
}

func (r *Reporter) NoStepsSelected() {
	r.printf("%s\n", r.warning.Render("No steps selected"))
}

func (r *Reporter) Prompt() {
	r.write("Select steps (e.g. 1,3-5 | all | from N | to N | exit): ")
}

func (r *Reporter) Goodbye() {
	r.printf("%s\n", r.muted.Render("Bye"))
}

func (r *Reporter) RenderStepList(name string, steps []FlatStep) {
	r.write(r.FormatStepList(name, steps))
}

func (r *Reporter) RenderSummary(wf *Workflow) {
	r.write(r.FormatSummary(wf))
}

// FormatStepList returns the numbered selection menu.
func (r *Reporter) FormatStepList(name string, steps []FlatStep) string {
	var b strings.Builder

	b.WriteString(r.title.Render(fmt.Sprintf("Workflow: %s", name)))
	b.WriteString("\n======================================\n")

	for _, entry := range steps {
		line := fmt.Sprintf("%3d. %-28s %-12s", entry.Index, entry.Step.Name, "["+string(entry.Step.Kind())+"]")
		if entry.Group != nil {
			line += " " + r.muted.Render("group: "+entry.Group.Name)
		}
		if entry.Step.Status != StepStatusPending {
			line += " " + r.statusStyle(entry.Step.Status).Render(string(entry.Step.Status))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

// FormatSummary returns the per-step status table and run timing.
func (r *Reporter) FormatSummary(wf *Workflow) string {
	var b strings.Builder

	b.WriteString(r.title.Render(fmt.Sprintf("Summary: %s", wf.Name)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%-4s %-28s %-10s %-9s %-10s %s\n", "#", "STEP", "STATUS", "ATTEMPTS", "DURATION", "ERROR"))

	counts := make(map[StepStatus]int)
	for i, step := range wf.Steps() {
		counts[step.Status]++

		status := r.statusStyle(step.Status).Render(fmt.Sprintf("%-10s", step.Status))
		detail := step.ErrorMessage
		if step.Status == StepStatusSkipped {
			detail = step.SkipReason
		}
		if first, _, found := strings.Cut(detail, "\n"); found {
			detail = first
		}

		b.WriteString(fmt.Sprintf("%-4d %-28s %s %-9d %-10s %s\n",
			i+1, step.Name, status, step.Attempts, formatDuration(step.Duration()), detail))
	}

	b.WriteString(fmt.Sprintf("\nStatus: %s  completed=%d failed=%d skipped=%d pending=%d\n",
		r.workflowStatusStyle(wf.Status).Render(string(wf.Status)),
		counts[StepStatusCompleted], counts[StepStatusFailed],
		counts[StepStatusSkipped], counts[StepStatusPending]))

	if !wf.StartedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Started: %s\n", wf.StartedAt.Format(time.RFC3339)))
	}
	if d := wf.Duration(); d > 0 {
		b.WriteString(fmt.Sprintf("Duration: %s (attempts: %d)\n", formatDuration(d), wf.Attempts))
	}

	return b.String()
}

func (r *Reporter) statusStyle(status StepStatus) lipgloss.Style {
	switch status {
	case StepStatusCompleted:
		return r.success
	case StepStatusFailed:
		return r.failure
	case StepStatusSkipped:
		return r.muted
	case StepStatusRunning:
		return r.warning
	default:
		return r.info
	}
}

func (r *Reporter) workflowStatusStyle(status WorkflowStatus) lipgloss.Style {
	switch status {
	case StatusCompleted:
		return r.success
	case StatusFailed:
		return r.failure
	default:
		return r.info
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Millisecond {
		return d.String()
	}

	return d.Round(time.Millisecond).String()
}
