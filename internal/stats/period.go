package stats

import (
	"fmt"
	"time"
)

// PeriodKind identifies the granularity of a period bucket key.
type PeriodKind int

const (
	PeriodUnknown PeriodKind = iota
	PeriodDay
	PeriodWeek
	PeriodMonth
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"

	// DailyRetentionDays is the oldest age, in days, kept as a daily bucket.
	DailyRetentionDays = 30
	// WeeklyRetentionDays is the oldest age, in days, kept at weekly granularity.
	WeeklyRetentionDays = 90
)

// DayKey returns the daily bucket key ("2006-01-02") for t in UTC.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// WeekKey returns the ISO week bucket key ("2006-W01") for t in UTC.
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MonthKey returns the monthly bucket key ("2006-01") for t in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// ParsePeriodKey classifies a key and returns the first day it covers.
func ParsePeriodKey(key string) (PeriodKind, time.Time) {
	if t, err := time.Parse(dayLayout, key); err == nil && len(key) == len(dayLayout) {
		return PeriodDay, t
	}
	var year, week int
	if n, err := fmt.Sscanf(key, "%4d-W%2d", &year, &week); err == nil && n == 2 && len(key) == 8 && week >= 1 && week <= 53 {
		return PeriodWeek, isoWeekStart(year, week)
	}
	if t, err := time.Parse(monthLayout, key); err == nil && len(key) == len(monthLayout) {
		return PeriodMonth, t
	}
	return PeriodUnknown, time.Time{}
}

// isoWeekStart returns the Monday starting ISO week w of year.
func isoWeekStart(year, w int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	week1 := jan4.AddDate(0, 0, -offset)
	return week1.AddDate(0, 0, (w-1)*7)
}

// ageDays returns whole days between the UTC dates of t and now.
func ageDays(t, now time.Time) int {
	today := truncateDay(now)
	return int(today.Sub(truncateDay(t)).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
