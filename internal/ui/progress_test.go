package ui

import (
	"strings"
	"testing"
	"time"
)

func TestFormatProgress(t *testing.T) {
	ps := ProgressState{
		Cycle:     7,
		InFlight:  3,
		Completed: 4,
		Failed:    1,
		CostCents: 250,
		StartTime: time.Now().Add(-5 * time.Minute),
	}

	got := FormatProgress(ps)
	for _, want := range []string{"poll 7", "3 running", "4 done", "1 failed", "$2.50"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q: %s", want, got)
		}
	}
}

func TestFormatRunSummary(t *testing.T) {
	got := FormatRunSummary(RunSummary{
		Completed: 8,
		Failed:    1,
		CostCents: 525,
		Tokens:    50000,
		Duration:  15 * time.Minute,
	})

	checks := []string{
		"Run Summary",
		"15m0s",
		"Completed: 8",
		"Failed:    1",
		"$5.25",
		"50.0K",
	}
	for _, check := range checks {
		if !strings.Contains(got, check) {
			t.Errorf("summary missing %q:\n%s", check, got)
		}
	}
}
