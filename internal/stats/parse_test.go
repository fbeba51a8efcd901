package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCost(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"$1.50", 150},
		{"$0.004", 0},
		{"$0.005", 1},
		{"  $3 ", 300},
		{"$1,024.10", 102410},
		{"", 0},
		{"n/a", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCost(tt.in))
		})
	}
}

func TestParseDurationSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"2m 30s", 150},
		{"5m 15s", 315},
		{"12.3s", 12},
		{"450ms", 0},
		{"1500ms", 2},
		{"1h 5m", 3900},
		{"", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDurationSeconds(tt.in))
		})
	}
}

func TestParseCodeChanges(t *testing.T) {
	added, removed := ParseCodeChanges("+100 -50")
	assert.Equal(t, int64(100), added)
	assert.Equal(t, int64(50), removed)

	added, removed = ParseCodeChanges("+7")
	assert.Equal(t, int64(7), added)
	assert.Zero(t, removed)

	added, removed = ParseCodeChanges("")
	assert.Zero(t, added)
	assert.Zero(t, removed)
}

func TestFromUsage(t *testing.T) {
	b := FromUsage(Usage{
		Cost:         "$1.50",
		WallDuration: "5m 15s",
		APIDuration:  "2m 30s",
		CodeChanges:  "+100 -50",
		InputTokens:  10,
		OutputTokens: 20,
	})
	assert.Equal(t, Bucket{
		CostCents:    150,
		Tickets:      1,
		WallSeconds:  315,
		APISeconds:   150,
		LinesAdded:   100,
		LinesRemoved: 50,
		InputTokens:  10,
		OutputTokens: 20,
	}, b)
	assert.Equal(t, int64(30), b.TotalTokens())
}

func TestFromUsageZeroValue(t *testing.T) {
	assert.Equal(t, Bucket{Tickets: 1}, FromUsage(Usage{}))
}
