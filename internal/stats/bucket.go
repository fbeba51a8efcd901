// Package stats keeps the usage ledger: global, per-project and per-period
// aggregates plus a capped ticket history.
package stats

// Bucket sums usage counters over a scope or a time window.
type Bucket struct {
	CostCents           int64 `json:"cost_cents"`
	Tickets             int64 `json:"tickets"`
	WallSeconds         int64 `json:"wall_seconds"`
	APISeconds          int64 `json:"api_seconds"`
	LinesAdded          int64 `json:"lines_added"`
	LinesRemoved        int64 `json:"lines_removed"`
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
}

// Add sums o into b field by field.
func (b *Bucket) Add(o Bucket) {
	b.CostCents += o.CostCents
	b.Tickets += o.Tickets
	b.WallSeconds += o.WallSeconds
	b.APISeconds += o.APISeconds
	b.LinesAdded += o.LinesAdded
	b.LinesRemoved += o.LinesRemoved
	b.InputTokens += o.InputTokens
	b.OutputTokens += o.OutputTokens
	b.CacheCreationTokens += o.CacheCreationTokens
	b.CacheReadTokens += o.CacheReadTokens
}

// TotalTokens is the sum of the four token categories.
func (b Bucket) TotalTokens() int64 {
	return b.InputTokens + b.OutputTokens + b.CacheCreationTokens + b.CacheReadTokens
}

// Usage is one ticket's usage as reported by the agent.
type Usage struct {
	Cost         string
	WallDuration string
	APIDuration  string
	CodeChanges  string

	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
}

// FromUsage parses a ticket's usage into a single-ticket bucket.
// Unparseable strings count as zero.
func FromUsage(u Usage) Bucket {
	added, removed := ParseCodeChanges(u.CodeChanges)
	return Bucket{
		CostCents:           ParseCost(u.Cost),
		Tickets:             1,
		WallSeconds:         ParseDurationSeconds(u.WallDuration),
		APISeconds:          ParseDurationSeconds(u.APIDuration),
		LinesAdded:          added,
		LinesRemoved:        removed,
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheCreationTokens: u.CacheCreationTokens,
		CacheReadTokens:     u.CacheReadTokens,
	}
}
