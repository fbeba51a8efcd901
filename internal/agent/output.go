package agent

import (
	"encoding/json"
	"strings"
)

// DefaultSummary is reported when the agent emitted no result text.
const DefaultSummary = "Task completed"

// Output is the fold of every JSON object the agent printed.
type Output struct {
	SessionID     string
	Result        string
	HasResult     bool
	IsError       bool
	TotalCostUSD  float64
	DurationMS    int64
	DurationAPIMS int64
}

// Summary returns the result text, or DefaultSummary when there was none.
func (o Output) Summary() string {
	if o.HasResult && o.Result != "" {
		return o.Result
	}
	return DefaultSummary
}

type outputLine struct {
	Type          string   `json:"type"`
	SessionID     *string  `json:"session_id"`
	Result        *string  `json:"result"`
	IsError       *bool    `json:"is_error"`
	TotalCostUSD  *float64 `json:"total_cost_usd"`
	DurationMS    *int64   `json:"duration_ms"`
	DurationAPIMS *int64   `json:"duration_api_ms"`
}

// ParseOutput folds over output lines, keeping the most recent non-empty
// session id and the most recent result. Blank, non-object and unparseable
// lines are skipped.
func ParseOutput(raw string) Output {
	var out Output
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var l outputLine
		if err := json.Unmarshal([]byte(line), &l); err != nil {
			continue
		}
		if l.SessionID != nil && *l.SessionID != "" {
			out.SessionID = *l.SessionID
		}
		if l.Result != nil {
			out.Result = *l.Result
			out.HasResult = true
			out.IsError = l.IsError != nil && *l.IsError
		}
		if l.TotalCostUSD != nil {
			out.TotalCostUSD = *l.TotalCostUSD
		}
		if l.DurationMS != nil {
			out.DurationMS = *l.DurationMS
		}
		if l.DurationAPIMS != nil {
			out.DurationAPIMS = *l.DurationAPIMS
		}
	}
	return out
}
