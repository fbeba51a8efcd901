package ui

import (
	"fmt"
	"strings"
	"time"
)

// ProgressState holds the counters shown after each poll cycle.
type ProgressState struct {
	Cycle     int
	InFlight  int
	Completed int
	Failed    int
	CostCents int64
	StartTime time.Time
}

// RunSummary is the end-of-run report for the CLI.
type RunSummary struct {
	Completed int
	Failed    int
	CostCents int64
	Tokens    int64
	Duration  time.Duration
}

// FormatProgress returns a single-line progress string for the poll loop.
func FormatProgress(ps ProgressState) string {
	elapsed := time.Since(ps.StartTime).Truncate(time.Second)
	return fmt.Sprintf("[poll %d] %d running | %d done | %d failed | %s | %v elapsed",
		ps.Cycle, ps.InFlight, ps.Completed, ps.Failed, FormatCents(ps.CostCents), elapsed)
}

// FormatRunSummary returns a multi-line summary printed when a run ends.
func FormatRunSummary(rs RunSummary) string {
	var b strings.Builder
	b.WriteString("\n=== Run Summary ===\n")
	b.WriteString(fmt.Sprintf("Duration:   %v\n", rs.Duration.Truncate(time.Second)))
	b.WriteString("\nTickets:\n")
	b.WriteString(fmt.Sprintf("  Completed: %d\n", rs.Completed))
	b.WriteString(fmt.Sprintf("  Failed:    %d\n", rs.Failed))
	b.WriteString("\nCost:\n")
	b.WriteString(fmt.Sprintf("  Total:     %s\n", FormatCents(rs.CostCents)))
	b.WriteString(fmt.Sprintf("  Tokens:    %s\n", FormatTokens(rs.Tokens)))
	b.WriteString("===================\n")
	return b.String()
}
