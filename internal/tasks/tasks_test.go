package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseProject(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"trellm Fix the poller", "trellm"},
		{"MyApp: add login", "myapp"},
		{"  spaced   out  ", "spaced"},
		{"", UnknownProject},
		{"   ", UnknownProject},
		{": nothing", UnknownProject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseProject(tt.name))
		})
	}
}

func TestTaskProject(t *testing.T) {
	task := &Task{ID: "c1", Name: "Webapp tweak header"}
	assert.Equal(t, "webapp", task.Project())
}

func TestIsStatsCommand(t *testing.T) {
	assert.True(t, IsStatsCommand("project /stats", nil))
	assert.True(t, IsStatsCommand("trellm /stats", nil))
	assert.True(t, IsStatsCommand("project: /stats", nil))
	assert.True(t, IsStatsCommand("project /STATS", nil))
	assert.True(t, IsStatsCommand("project /Stats", nil))

	assert.False(t, IsStatsCommand("project Add stats feature", nil))
	assert.False(t, IsStatsCommand("trellm Fix bug", nil))
	assert.False(t, IsStatsCommand("project / stats", nil))
	assert.False(t, IsStatsCommand("trellm problem with the /stats command", nil))
	assert.False(t, IsStatsCommand("myapp bug in /stats feature", nil))
	assert.False(t, IsStatsCommand("/stats", nil))
	assert.False(t, IsStatsCommand("project", nil))
}

func TestIsStatsCommandWithProjectFilter(t *testing.T) {
	valid := []string{"trellm", "myapp"}
	assert.True(t, IsStatsCommand("trellm /stats", valid))
	assert.True(t, IsStatsCommand("MyApp /stats", valid))
	assert.False(t, IsStatsCommand("otherproject /stats", valid))
	assert.False(t, IsStatsCommand("unknown /stats", valid))
}

func TestParseActivity(t *testing.T) {
	ts := ParseActivity("2026-01-08T12:00:00.000Z")
	assert.Equal(t, time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC), ts)
	assert.True(t, ParseActivity("").IsZero())
	assert.True(t, ParseActivity("yesterday").IsZero())
}
