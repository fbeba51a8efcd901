package stats

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParseCost converts "$1.50" to 150 cents, rounding to the nearest cent.
func ParseCost(s string) int64 {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int64(math.Round(f * 100))
}

var durationPart = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(ms|h|m|s)\b`)

// ParseDurationSeconds converts renderings like "2m 30s", "12.3s", "450ms"
// or "1h 5m" to whole seconds.
func ParseDurationSeconds(s string) int64 {
	var total float64
	for _, m := range durationPart.FindAllStringSubmatch(s, -1) {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		switch m[2] {
		case "h":
			total += n * 3600
		case "m":
			total += n * 60
		case "s":
			total += n
		case "ms":
			total += n / 1000
		}
	}
	return int64(math.Round(total))
}

var (
	linesAdded   = regexp.MustCompile(`\+(\d+)`)
	linesRemoved = regexp.MustCompile(`-(\d+)`)
)

// ParseCodeChanges converts "+100 -50" to (100, 50).
func ParseCodeChanges(s string) (added, removed int64) {
	if m := linesAdded.FindStringSubmatch(s); m != nil {
		added, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := linesRemoved.FindStringSubmatch(s); m != nil {
		removed, _ = strconv.ParseInt(m[1], 10, 64)
	}
	return added, removed
}
