package config

import "time"

func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == 0 {
		cfg.SchemaVersion = 1
	}

	// Agent defaults
	if cfg.Claude.Binary == "" {
		cfg.Claude.Binary = "claude"
	}
	if cfg.Claude.Timeout == 0 {
		cfg.Claude.Timeout = 600 * time.Second
	}
	if cfg.Claude.MaxRetries == 0 {
		cfg.Claude.MaxRetries = 2
	}
	if cfg.Claude.DefaultBackoff == 0 {
		cfg.Claude.DefaultBackoff = 300 * time.Second
	}
	if cfg.Claude.CompactTimeout == 0 {
		cfg.Claude.CompactTimeout = 120 * time.Second
	}
	if cfg.Claude.CostTimeout == 0 {
		cfg.Claude.CostTimeout = 30 * time.Second
	}
	if cfg.Claude.LogDir == "" {
		cfg.Claude.LogDir = "~/.claude/projects"
	}
	if cfg.Claude.MaxConcurrent == 0 {
		cfg.Claude.MaxConcurrent = 4
	}
	if cfg.Claude.MinRAMPerAgentMB == 0 {
		cfg.Claude.MinRAMPerAgentMB = 600
	}

	// Maintenance defaults
	for name, p := range cfg.Projects {
		if p.Maintenance.Interval == 0 {
			p.Maintenance.Interval = 10
		}
		if p.Maintenance.Timeout == 0 {
			p.Maintenance.Timeout = 600 * time.Second
		}
		cfg.Projects[name] = p
	}

	if cfg.Polling.Interval == 0 {
		cfg.Polling.Interval = 5 * time.Second
	}
	if cfg.State.File == "" {
		cfg.State.File = "~/.trellm/state.json"
	}
	if cfg.Stats.HistoryLimit == 0 {
		cfg.Stats.HistoryLimit = 500
	}
	if cfg.Stats.MinDiskMB == 0 {
		cfg.Stats.MinDiskMB = 50
	}
}
