package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/diligence-engine/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintResult outputs a human-readable summary of a pipeline run.
func (p *Printer) PrintResult(result *types.PipelineResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status:   %s\n", result.Status))
	if result.Rating != "" {
		sb.WriteString(fmt.Sprintf("Rating:   %s\n", result.Rating))
	}
	sb.WriteString(fmt.Sprintf("Stages:   %d run, %d ok, %d failed\n",
		result.Metadata.ComponentsRun,
		result.Metadata.ComponentsSuccessful,
		result.Metadata.ComponentsFailed))

	if len(result.Errors) > 0 {
		sb.WriteString("\nErrors:\n")
		count := min(len(result.Errors), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s: %s\n", result.Errors[i].StageID, result.Errors[i].Error))
		}
		if len(result.Errors) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(result.Errors)-maxItemsToShow))
		}
	}

	p.printBox("Assessment Result", sb.String())
}

// PrintSanityTally outputs the run's sanity-check counters.
func (p *Printer) PrintSanityTally(tally SanityTally) {
	content := fmt.Sprintf("Pass:   %d\nWarn:   %d\nReject: %d", tally.Pass, tally.Warn, tally.Reject)
	p.printBox("Sanity Checks", content)
}

// PrintStageStats outputs per-stage timing and token usage.
func (p *Printer) PrintStageStats(record RunRecord) {
	var sb strings.Builder
	for stageID, stats := range record.Stages {
		sb.WriteString(fmt.Sprintf("%-16s %s  %6dms  %d+%d tokens\n",
			stageID, stats.Status, stats.DurationMS, stats.InputTokens, stats.OutputTokens))
	}
	p.printBox("Stage Stats", sb.String())
}

// PrintFragments outputs report fragment titles in order.
func (p *Printer) PrintFragments(fragments []types.ReportFragment) {
	var sb strings.Builder
	for i, fragment := range fragments {
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, fragment.Title, fragment.StageID))
	}
	p.printBox("Report Sections", sb.String())
}
