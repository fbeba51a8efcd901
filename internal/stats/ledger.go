package stats

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryLimit caps the ticket history when no limit is configured.
const DefaultHistoryLimit = 500

// Record is an audit entry for one completed ticket.
type Record struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Project     string    `json:"project"`
	Title       string    `json:"title,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	Usage       Bucket    `json:"usage"`
}

// Ledger is the persisted usage ledger. It is not safe for concurrent use;
// the state manager serializes access.
type Ledger struct {
	Global   Bucket             `json:"global"`
	Projects map[string]*Bucket `json:"projects"`
	// Periods holds daily, weekly and monthly buckets keyed by DayKey,
	// WeekKey and MonthKey.
	Periods map[string]*Bucket `json:"periods"`
	History []Record           `json:"history"`
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	l := &Ledger{}
	l.ensureMaps()
	return l
}

func (l *Ledger) ensureMaps() {
	if l.Projects == nil {
		l.Projects = make(map[string]*Bucket)
	}
	if l.Periods == nil {
		l.Periods = make(map[string]*Bucket)
	}
}

// Record adds a ticket's usage to the global, project and current-day
// buckets, then appends it to the history, evicting the oldest records
// beyond limit.
func (l *Ledger) Record(taskID, project, title string, usage Bucket, now time.Time, limit int) Record {
	l.ensureMaps()
	if limit < 1 {
		limit = DefaultHistoryLimit
	}

	l.Global.Add(usage)
	bucketFor(l.Projects, project).Add(usage)
	bucketFor(l.Periods, DayKey(now)).Add(usage)

	rec := Record{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		Project:     project,
		Title:       title,
		CompletedAt: now.UTC(),
		Usage:       usage,
	}
	l.History = append(l.History, rec)
	if over := len(l.History) - limit; over > 0 {
		l.History = append([]Record(nil), l.History[over:]...)
	}
	return rec
}

func bucketFor(m map[string]*Bucket, key string) *Bucket {
	b, ok := m[key]
	if !ok {
		b = &Bucket{}
		m[key] = b
	}
	return b
}

// Rollup downsamples aged period buckets: daily buckets older than
// DailyRetentionDays merge into their ISO week, those older than
// WeeklyRetentionDays into their month, and weekly buckets whose week
// starts more than WeeklyRetentionDays ago into the month of that start.
// Running it twice in a row changes nothing.
func (l *Ledger) Rollup(now time.Time) {
	l.ensureMaps()

	for _, key := range sortedKeys(l.Periods) {
		kind, start := ParsePeriodKey(key)
		if kind != PeriodDay {
			continue
		}
		switch age := ageDays(start, now); {
		case age <= DailyRetentionDays:
		case age <= WeeklyRetentionDays:
			l.merge(key, WeekKey(start))
		default:
			l.merge(key, MonthKey(start))
		}
	}

	// Weeks are checked after days so a week created above is already
	// in its final place.
	for _, key := range sortedKeys(l.Periods) {
		kind, start := ParsePeriodKey(key)
		if kind == PeriodWeek && ageDays(start, now) > WeeklyRetentionDays {
			l.merge(key, MonthKey(start))
		}
	}
}

func (l *Ledger) merge(from, to string) {
	src, ok := l.Periods[from]
	if !ok || from == to {
		return
	}
	bucketFor(l.Periods, to).Add(*src)
	delete(l.Periods, from)
}

func sortedKeys(m map[string]*Bucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PeriodTotal sums every period bucket.
func (l *Ledger) PeriodTotal() Bucket {
	var total Bucket
	for _, b := range l.Periods {
		total.Add(*b)
	}
	return total
}

// HistoryTotal sums every retained history record.
func (l *Ledger) HistoryTotal() Bucket {
	var total Bucket
	for _, r := range l.History {
		total.Add(r.Usage)
	}
	return total
}

// Project returns the totals for one project.
func (l *Ledger) Project(name string) Bucket {
	if b, ok := l.Projects[name]; ok {
		return *b
	}
	return Bucket{}
}

// Day returns the daily bucket for the day containing t.
func (l *Ledger) Day(t time.Time) Bucket {
	if b, ok := l.Periods[DayKey(t)]; ok {
		return *b
	}
	return Bucket{}
}

// LastDays sums the daily buckets of the n days ending today.
func (l *Ledger) LastDays(now time.Time, n int) Bucket {
	var total Bucket
	for key, b := range l.Periods {
		kind, start := ParsePeriodKey(key)
		if kind != PeriodDay {
			continue
		}
		if age := ageDays(start, now); age >= 0 && age < n {
			total.Add(*b)
		}
	}
	return total
}

// Recent returns up to n most recent history records, newest first,
// optionally restricted to one project.
func (l *Ledger) Recent(project string, n int) []Record {
	var out []Record
	for i := len(l.History) - 1; i >= 0 && len(out) < n; i-- {
		if project == "" || l.History[i].Project == project {
			out = append(out, l.History[i])
		}
	}
	return out
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		Global:   l.Global,
		Projects: make(map[string]*Bucket, len(l.Projects)),
		Periods:  make(map[string]*Bucket, len(l.Periods)),
		History:  append([]Record(nil), l.History...),
	}
	for k, b := range l.Projects {
		v := *b
		c.Projects[k] = &v
	}
	for k, b := range l.Periods {
		v := *b
		c.Periods[k] = &v
	}
	return c
}
