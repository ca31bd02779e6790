package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"deepresearch/internal/server/ports"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func init() {
	if !isTTY() {
		color.NoColor = true
	}
}

// isTTY checks if stdout is an interactive terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func errorStyle(msg string) string {
	return red("error: " + msg)
}

func statusStyle(status ports.TaskStatus) string {
	switch status {
	case ports.TaskStatusDone:
		return green(string(status))
	case ports.TaskStatusError:
		return red(string(status))
	default:
		return yellow(string(status))
	}
}

func stepMarker(status ports.StepStatus) string {
	switch status {
	case ports.StepStatusOK:
		return green("✓")
	case ports.StepStatusFailed:
		return red("✗")
	case ports.StepStatusSkipped:
		return gray("-")
	default:
		return yellow("…")
	}
}

// progressPrinter prints each step once, and again whenever its status
// changes, as snapshots arrive from the poller.
type progressPrinter struct {
	out  io.Writer
	seen map[string]ports.StepStatus
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, seen: make(map[string]ports.StepStatus)}
}

func (p *progressPrinter) Update(task *ports.ResearchTask) {
	for _, step := range task.Steps {
		if prev, ok := p.seen[step.ID]; ok && prev == step.Status {
			continue
		}
		p.seen[step.ID] = step.Status
		label := step.Label
		if label == "" {
			label = string(step.Kind)
		}
		line := fmt.Sprintf("  %s %s", stepMarker(step.Status), label)
		if step.ErrorMessage != "" {
			line += " " + red("("+step.ErrorMessage+")")
		}
		fmt.Fprintln(p.out, line)
	}
}

// renderReport writes the human-readable result of a finished task.
func renderReport(out io.Writer, task *ports.ResearchTask) {
	fmt.Fprintf(out, "\n%s %s [%s] %s\n", bold("Research:"), task.Goal, task.Mode, statusStyle(task.Status))
	if task.ErrorMessage != "" {
		fmt.Fprintln(out, errorStyle(task.ErrorMessage))
	}
	if task.Coverage != nil {
		fmt.Fprintf(out, "%s %.0f%% of questions answered, %d sources, %d claims\n",
			gray("coverage:"), *task.Coverage*100, len(task.Evidence), len(task.Claims))
	}

	draft := task.Draft
	if draft.ExecutiveSummary != "" {
		fmt.Fprintf(out, "\n%s\n%s\n", bold("Summary"), draft.ExecutiveSummary)
	}
	for _, section := range draft.Sections {
		fmt.Fprintf(out, "\n%s\n%s\n", cyan(section.Heading), section.Body)
	}
	if len(draft.FAQ) > 0 {
		fmt.Fprintf(out, "\n%s\n", bold("FAQ"))
		for _, entry := range draft.FAQ {
			fmt.Fprintf(out, "Q: %s\nA: %s\n", entry.Q, entry.A)
		}
	}
	if len(draft.Limitations) > 0 {
		fmt.Fprintf(out, "\n%s\n", bold("Limitations"))
		for _, limitation := range draft.Limitations {
			fmt.Fprintf(out, "- %s\n", limitation)
		}
	}
	if len(draft.Bibliography) > 0 {
		fmt.Fprintf(out, "\n%s\n%s\n", bold("Sources"), strings.Join(draft.Bibliography, "\n"))
	}
}

// renderSummaries prints the task list as aligned columns.
func renderSummaries(out io.Writer, summaries []ports.TaskSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(out, gray("no research tasks"))
		return
	}
	for _, summary := range summaries {
		fmt.Fprintf(out, "%-40s %-6s %-8s %3d sources %3d claims  %s\n",
			summary.ID, summary.Mode, statusStyle(summary.Status), summary.EvidenceCount, summary.ClaimCount, truncate(summary.Goal, 60))
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
