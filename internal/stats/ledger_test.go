package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usage(cents int64) Bucket {
	return Bucket{CostCents: cents, Tickets: 1, WallSeconds: 60, InputTokens: 100}
}

func TestRecordUpdatesAllScopes(t *testing.T) {
	l := NewLedger()
	now := date(2026, time.March, 10)

	rec := l.Record("c1", "web", "Fix login", FromUsage(Usage{
		Cost:         "$1.50",
		APIDuration:  "2m 30s",
		WallDuration: "5m 15s",
		CodeChanges:  "+100 -50",
	}), now, 10)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "c1", rec.TaskID)
	assert.Equal(t, int64(150), l.Global.CostCents)
	assert.Equal(t, int64(150), l.Global.APISeconds)
	assert.Equal(t, int64(315), l.Global.WallSeconds)
	assert.Equal(t, int64(100), l.Global.LinesAdded)
	assert.Equal(t, int64(50), l.Global.LinesRemoved)
	assert.Equal(t, int64(1), l.Global.Tickets)
	assert.Equal(t, l.Global, l.Project("web"))
	assert.Equal(t, l.Global, l.Day(now))
	require.Len(t, l.History, 1)
	assert.Equal(t, "Fix login", l.History[0].Title)
}

func TestRecordEvictsOldestHistory(t *testing.T) {
	l := NewLedger()
	now := date(2026, time.March, 10)
	for i, id := range []string{"a", "b", "c"} {
		l.Record(id, "web", "", usage(int64(i+1)), now, 2)
	}

	require.Len(t, l.History, 2)
	assert.Equal(t, "b", l.History[0].TaskID)
	assert.Equal(t, "c", l.History[1].TaskID)
	// Aggregates are not affected by eviction.
	assert.Equal(t, int64(6), l.Global.CostCents)
	assert.Equal(t, int64(3), l.Global.Tickets)
}

func TestRecordDefaultLimit(t *testing.T) {
	l := NewLedger()
	now := date(2026, time.March, 10)
	for i := 0; i < DefaultHistoryLimit+5; i++ {
		l.Record("t", "web", "", usage(1), now, 0)
	}
	assert.Len(t, l.History, DefaultHistoryLimit)
}

func TestRollupBoundaries(t *testing.T) {
	now := date(2026, time.June, 15)
	l := NewLedger()
	days := map[int]int64{0: 1, 30: 2, 31: 4, 90: 8, 91: 16}
	for age, cents := range days {
		l.Record("t", "web", "", usage(cents), now.AddDate(0, 0, -age), 100)
	}

	l.Rollup(now)

	assert.Contains(t, l.Periods, DayKey(now))
	assert.Contains(t, l.Periods, DayKey(now.AddDate(0, 0, -30)))
	for _, age := range []int{31, 90, 91} {
		assert.NotContains(t, l.Periods, DayKey(now.AddDate(0, 0, -age)), "age %d", age)
	}

	day31 := now.AddDate(0, 0, -31)
	require.Contains(t, l.Periods, WeekKey(day31))
	assert.Equal(t, int64(4), l.Periods[WeekKey(day31)].CostCents)

	day91 := now.AddDate(0, 0, -91)
	require.Contains(t, l.Periods, MonthKey(day91))

	assert.Equal(t, l.Global, l.PeriodTotal())
}

func TestRollupWeeklyToMonthly(t *testing.T) {
	now := date(2026, time.June, 15)
	l := NewLedger()
	l.Periods["2026-W01"] = &Bucket{CostCents: 5}
	l.Periods["2025-12"] = &Bucket{CostCents: 7}
	l.Periods["2026-W20"] = &Bucket{CostCents: 3}

	l.Rollup(now)

	// Week 1 of 2026 starts on Monday 2025-12-29.
	assert.NotContains(t, l.Periods, "2026-W01")
	assert.Equal(t, int64(12), l.Periods["2025-12"].CostCents)
	assert.Equal(t, int64(3), l.Periods["2026-W20"].CostCents)
}

func TestRollupIdempotent(t *testing.T) {
	now := date(2026, time.June, 15)
	l := NewLedger()
	for age := 0; age < 200; age += 3 {
		l.Record("t", "web", "", usage(int64(age)), now.AddDate(0, 0, -age), 1000)
	}

	l.Rollup(now)
	once := snapshot(t, l)
	l.Rollup(now)
	if diff := cmp.Diff(once, snapshot(t, l)); diff != "" {
		t.Errorf("second rollup changed the ledger (-first +second):\n%s", diff)
	}
}

func TestLedgerTotalsAgree(t *testing.T) {
	now := date(2026, time.June, 15)
	l := NewLedger()
	projects := []string{"web", "api"}
	for age := 0; age < 150; age += 7 {
		l.Record("t", projects[age%2], "", usage(int64(age+1)), now.AddDate(0, 0, -age), 1000)
	}
	l.Rollup(now)

	want := l.Global
	if diff := cmp.Diff(want, l.PeriodTotal()); diff != "" {
		t.Errorf("period total mismatch (-global +periods):\n%s", diff)
	}
	if diff := cmp.Diff(want, l.HistoryTotal()); diff != "" {
		t.Errorf("history total mismatch (-global +history):\n%s", diff)
	}
	byProject := l.Project("web")
	byProject.Add(l.Project("api"))
	assert.Equal(t, want, byProject)
}

func TestLastDaysAndRecent(t *testing.T) {
	now := date(2026, time.June, 15)
	l := NewLedger()
	l.Record("old", "web", "", usage(100), now.AddDate(0, 0, -10), 10)
	l.Record("a", "web", "", usage(1), now.AddDate(0, 0, -1), 10)
	l.Record("b", "api", "", usage(2), now, 10)

	assert.Equal(t, int64(3), l.LastDays(now, 7).CostCents)
	assert.Equal(t, int64(2), l.LastDays(now, 1).CostCents)

	recent := l.Recent("", 2)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].TaskID)
	assert.Equal(t, "a", recent[1].TaskID)

	web := l.Recent("web", 5)
	require.Len(t, web, 2)
	assert.Equal(t, "a", web[0].TaskID)
}

func TestLedgerJSON(t *testing.T) {
	l := NewLedger()
	l.Record("c1", "web", "", usage(42), date(2026, time.March, 10), 10)

	data, err := json.Marshal(l)
	require.NoError(t, err)

	var back Ledger
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, l.Global, back.Global)
	assert.Equal(t, int64(42), back.Periods["2026-03-10"].CostCents)
}

func TestZeroLedgerUsable(t *testing.T) {
	var l Ledger
	l.Rollup(date(2026, time.March, 10))
	l.Record("c1", "web", "", usage(1), date(2026, time.March, 10), 10)
	assert.Equal(t, int64(1), l.Global.CostCents)
}

func snapshot(t *testing.T, l *Ledger) map[string]Bucket {
	t.Helper()
	out := make(map[string]Bucket, len(l.Periods))
	for k, b := range l.Periods {
		out[k] = *b
	}
	return out
}

func TestCloneIsIndependent(t *testing.T) {
	l := NewLedger()
	now := date(2026, time.March, 10)
	l.Record("c1", "web", "", usage(5), now, 10)

	c := l.Clone()
	l.Record("c2", "web", "", usage(5), now, 10)

	assert.Equal(t, int64(5), c.Global.CostCents)
	assert.Equal(t, int64(5), c.Project("web").CostCents)
	assert.Equal(t, int64(5), c.Day(now).CostCents)
	assert.Len(t, c.History, 1)
}
