package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kylegalloway/trellm/internal/stats"
)

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "$0.00", FormatCents(0))
	assert.Equal(t, "$0.05", FormatCents(5))
	assert.Equal(t, "$1.50", FormatCents(150))
	assert.Equal(t, "$5.00", FormatCents(500))
	assert.Equal(t, "$1234.56", FormatCents(123456))
	assert.Equal(t, "-$0.10", FormatCents(-10))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "45s", FormatSeconds(45))
	assert.Equal(t, "2m 30s", FormatSeconds(150))
	assert.Equal(t, "1h 5m", FormatSeconds(3900))
}

func TestFormatTokens(t *testing.T) {
	assert.Equal(t, "999", FormatTokens(999))
	assert.Equal(t, "1.5K", FormatTokens(1500))
	assert.Equal(t, "2.3M", FormatTokens(2_300_000))
}

func sampleLedger(now time.Time) *stats.Ledger {
	l := stats.NewLedger()
	l.Record("c1", "web", "Fix login", stats.FromUsage(stats.Usage{
		Cost: "$1.50", WallDuration: "5m 15s", APIDuration: "2m 30s", CodeChanges: "+100 -50",
		InputTokens: 12000, OutputTokens: 3400,
	}), now.AddDate(0, 0, -3), 100)
	l.Record("c2", "web", "", stats.FromUsage(stats.Usage{Cost: "$3.50"}), now, 100)
	l.Record("c3", "api", "Add endpoint", stats.FromUsage(stats.Usage{Cost: "$2.00"}), now, 100)
	return l
}

func TestProjectReport(t *testing.T) {
	now := time.Date(2026, time.March, 10, 15, 0, 0, 0, time.UTC)
	got := ProjectReport(sampleLedger(now), "web", now)

	for _, want := range []string{
		"Claude: /stats for web",
		"Project web: $5.00 over 2 tickets",
		"+100 -50 lines",
		"12.0K in",
		"All projects: $7.00 over 3 tickets",
		"Today: $5.50 (2 tickets)",
		"Last 7 days: $7.00 (3 tickets)",
		"- 2026-03-07 $1.50 Fix login (5m 15s)",
		"- 2026-03-10 $3.50 c2",
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "Add endpoint")
	assert.Less(t, strings.Index(got, "c2"), strings.Index(got, "Fix login"), "newest ticket first")
}

func TestProjectReportEmpty(t *testing.T) {
	now := time.Date(2026, time.March, 10, 15, 0, 0, 0, time.UTC)
	got := ProjectReport(stats.NewLedger(), "web", now)
	assert.Contains(t, got, "Project web: $0.00 over 0 tickets")
	assert.NotContains(t, got, "Recent tickets")
}

func TestLedgerReport(t *testing.T) {
	now := time.Date(2026, time.March, 10, 15, 0, 0, 0, time.UTC)
	got := LedgerReport(sampleLedger(now), now)

	assert.Contains(t, got, "All projects: $7.00 over 3 tickets")
	assert.Contains(t, got, "api: $2.00 over 1 ticket")
	assert.Contains(t, got, "web: $5.00 over 2 tickets")
	assert.Contains(t, got, "2026-03-10")
	assert.Contains(t, got, "[api] 2026-03-10 $2.00 Add endpoint")
	assert.Less(t, strings.Index(got, "api:"), strings.Index(got, "web:"))
	assert.Regexp(t, `total\s+\$7\.00\s+3 tickets`, got)
	assert.Contains(t, got, "Recent tickets (3 retained, $7.00):")
}
