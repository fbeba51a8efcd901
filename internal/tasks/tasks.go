package tasks

import (
	"regexp"
	"strings"
	"time"
)

// UnknownProject is used when a task name carries no project word.
const UnknownProject = "unknown"

// Task is a unit of work pulled from the board.
type Task struct {
	ID           string
	Name         string
	Description  string
	URL          string
	LastActivity time.Time
}

// Project returns the project that owns this task.
func (t *Task) Project() string {
	return ParseProject(t.Name)
}

// ParseProject extracts the project name (first word, lower-cased, without
// a trailing colon) from a task name.
func ParseProject(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return UnknownProject
	}
	project := strings.ToLower(strings.TrimSuffix(fields[0], ":"))
	if project == "" {
		return UnknownProject
	}
	return project
}

var statsCommandPattern = regexp.MustCompile(`(?i)^\s*(\S+?):?\s+/stats\b`)

// IsStatsCommand reports whether a task name is a "<project> /stats"
// request. The command must directly follow the project word. When
// validProjects is non-empty, only those projects are accepted.
func IsStatsCommand(name string, validProjects []string) bool {
	m := statsCommandPattern.FindStringSubmatch(name)
	if m == nil {
		return false
	}
	if strings.HasPrefix(m[1], "/") {
		return false
	}
	if len(validProjects) == 0 {
		return true
	}
	project := strings.ToLower(m[1])
	for _, p := range validProjects {
		if strings.ToLower(p) == project {
			return true
		}
	}
	return false
}

// ParseActivity parses a board timestamp. Unparseable values yield the zero time.
func ParseActivity(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
