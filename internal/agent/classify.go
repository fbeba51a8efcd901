package agent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// signature pairs a failure pattern with the function that builds the
// typed error for a match.
type signature struct {
	name    string
	pattern *regexp.Regexp
	extract func(m []string, output string, now time.Time) error
}

// signatures are evaluated in order; the first match wins.
var signatures = []signature{
	{
		name:    "context_overflow_detailed",
		pattern: regexp.MustCompile(`(?i)prompt is too long:\s*(\d+)\s*tokens?\s*>\s*(\d+)\s*maximum`),
		extract: func(m []string, _ string, _ time.Time) error {
			tokens, err1 := strconv.Atoi(m[1])
			maximum, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil {
				return &ContextOverflowError{}
			}
			return &ContextOverflowError{Tokens: tokens, Maximum: maximum, HasCounts: true}
		},
	},
	{
		name:    "context_overflow",
		pattern: regexp.MustCompile(`(?i)prompt is too long`),
		extract: func(_ []string, _ string, _ time.Time) error {
			return &ContextOverflowError{}
		},
	},
	{
		name:    "rate_limit_error",
		pattern: regexp.MustCompile(`rate_limit_error`),
		extract: throttled,
	},
	{
		name:    "usage_limit",
		pattern: regexp.MustCompile(`(?i)limits? reached|hit your (?:usage )?limit`),
		extract: throttled,
	},
}

func throttled(_ []string, output string, now time.Time) error {
	after, ok := ParseResetAfter(output, now)
	return &ThrottledError{ResetAfter: after, HasReset: ok}
}

// Classify inspects combined process output for a known failure signature.
// It returns a *ContextOverflowError, a *ThrottledError, or nil when nothing
// matched.
func Classify(output string, now time.Time) error {
	for _, s := range signatures {
		if m := s.pattern.FindStringSubmatch(output); m != nil {
			return s.extract(m, output, now)
		}
	}
	return nil
}

var (
	resetDurationPattern = regexp.MustCompile(`(?i)resets?\s+(?:in\s+)?(\d+)\s*(hours?|minutes?|days?|h|m|d)\b`)
	resetClockPattern    = regexp.MustCompile(`(?i)resets?\s+(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b(?:\s*\(([^)]+)\))?`)
)

// ParseResetAfter recovers how long until a throttle lifts from phrases like
// "resets in 2 hours", "reset 30m" or "resets 8pm (UTC)". The second return
// is false when no reset time is present.
func ParseResetAfter(output string, now time.Time) (time.Duration, bool) {
	if m := resetDurationPattern.FindStringSubmatch(output); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		var unit time.Duration
		switch strings.ToLower(m[2])[0] {
		case 'h':
			unit = time.Hour
		case 'm':
			unit = time.Minute
		case 'd':
			unit = 24 * time.Hour
		}
		return time.Duration(n) * unit, true
	}

	if m := resetClockPattern.FindStringSubmatch(output); m != nil {
		return untilClock(m, now)
	}
	return 0, false
}

func untilClock(m []string, now time.Time) (time.Duration, bool) {
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 12 {
		return 0, false
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return 0, false
		}
	}
	hour %= 12
	if strings.EqualFold(m[3], "pm") {
		hour += 12
	}

	// The clock is read as UTC whatever zone label follows it.
	utc := now.UTC()
	target := time.Date(utc.Year(), utc.Month(), utc.Day(), hour, minute, 0, 0, time.UTC)
	if !target.After(utc) {
		target = target.AddDate(0, 0, 1)
	}
	return target.Sub(now), true
}
