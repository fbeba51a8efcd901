package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kylegalloway/trellm/internal/stats"
)

const recentTickets = 5

// FormatCents renders integer cents as dollars, e.g. 150 -> "$1.50".
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}

// FormatSeconds renders whole seconds as "1h 5m", "2m 30s" or "45s".
func FormatSeconds(s int64) string {
	d := time.Duration(s) * time.Second
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatTokens abbreviates large token counts, e.g. 1234567 -> "1.2M".
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func tickets(n int64) string {
	if n == 1 {
		return "1 ticket"
	}
	return fmt.Sprintf("%d tickets", n)
}

func bucketLine(label string, b stats.Bucket) string {
	return fmt.Sprintf("%s: %s over %s (wall %s, API %s, +%d -%d lines)",
		label, FormatCents(b.CostCents), tickets(b.Tickets),
		FormatSeconds(b.WallSeconds), FormatSeconds(b.APISeconds), b.LinesAdded, b.LinesRemoved)
}

func tokenLine(b stats.Bucket) string {
	return fmt.Sprintf("Tokens: %s in / %s out / %s cache write / %s cache read",
		FormatTokens(b.InputTokens), FormatTokens(b.OutputTokens),
		FormatTokens(b.CacheCreationTokens), FormatTokens(b.CacheReadTokens))
}

// ProjectReport is the comment posted in reply to a "<project> /stats" task.
func ProjectReport(l *stats.Ledger, project string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claude: /stats for %s\n\n", project)

	p := l.Project(project)
	b.WriteString(bucketLine("Project "+project, p) + "\n")
	b.WriteString(tokenLine(p) + "\n\n")

	// Period buckets are not split by project.
	today := l.Day(now)
	week := l.LastDays(now, 7)
	month := l.LastDays(now, stats.DailyRetentionDays)
	fmt.Fprintf(&b, "All projects: %s over %s\n", FormatCents(l.Global.CostCents), tickets(l.Global.Tickets))
	fmt.Fprintf(&b, "  Today: %s (%s)\n", FormatCents(today.CostCents), tickets(today.Tickets))
	fmt.Fprintf(&b, "  Last 7 days: %s (%s)\n", FormatCents(week.CostCents), tickets(week.Tickets))
	fmt.Fprintf(&b, "  Last %d days: %s (%s)\n", stats.DailyRetentionDays, FormatCents(month.CostCents), tickets(month.Tickets))

	if recent := l.Recent(project, recentTickets); len(recent) > 0 {
		b.WriteString("\nRecent tickets:\n")
		for _, r := range recent {
			b.WriteString(recordLine(r) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func recordLine(r stats.Record) string {
	title := r.Title
	if title == "" {
		title = r.TaskID
	}
	return fmt.Sprintf("- %s %s %s (%s)", stats.DayKey(r.CompletedAt), FormatCents(r.Usage.CostCents), title, FormatSeconds(r.Usage.WallSeconds))
}

// LedgerReport is the full report printed by "trellm stats".
func LedgerReport(l *stats.Ledger, now time.Time) string {
	var b strings.Builder
	b.WriteString("=== Usage ===\n")
	b.WriteString(bucketLine("All projects", l.Global) + "\n")
	b.WriteString(tokenLine(l.Global) + "\n")

	names := make([]string, 0, len(l.Projects))
	for name := range l.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		b.WriteString("\nProjects:\n")
		for _, name := range names {
			b.WriteString("  " + bucketLine(name, l.Project(name)) + "\n")
		}
	}

	keys := make([]string, 0, len(l.Periods))
	for k := range l.Periods {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if len(keys) > 0 {
		b.WriteString("\nPeriods:\n")
		for _, k := range keys {
			p := l.Periods[k]
			fmt.Fprintf(&b, "  %-10s %10s  %s\n", k, FormatCents(p.CostCents), tickets(p.Tickets))
		}
		total := l.PeriodTotal()
		fmt.Fprintf(&b, "  %-10s %10s  %s\n", "total", FormatCents(total.CostCents), tickets(total.Tickets))
	}

	if recent := l.Recent("", recentTickets*2); len(recent) > 0 {
		retained := l.HistoryTotal()
		fmt.Fprintf(&b, "\nRecent tickets (%d retained, %s):\n", len(l.History), FormatCents(retained.CostCents))
		for _, r := range recent {
			b.WriteString("  [" + r.Project + "] " + strings.TrimPrefix(recordLine(r), "- ") + "\n")
		}
	}
	fmt.Fprintf(&b, "\nGenerated %s\n", now.UTC().Format(time.RFC3339))
	return b.String()
}
