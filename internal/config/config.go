package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultPath is where the config is read from when no path is given.
const DefaultPath = "~/.trellm/config.yaml"

// Config represents the full trellm.yaml configuration.
type Config struct {
	SchemaVersion int                      `yaml:"schema_version"`
	Board         BoardConfig              `yaml:"board"`
	Claude        ClaudeConfig             `yaml:"claude"`
	Projects      map[string]ProjectConfig `yaml:"projects"`
	Polling       PollingConfig            `yaml:"polling"`
	State         StateConfig              `yaml:"state"`
	Stats         StatsConfig              `yaml:"stats"`
	Metrics       MetricsConfig            `yaml:"metrics"`
}

// BoardConfig holds the work board credentials and list ids.
type BoardConfig struct {
	APIKey      string `yaml:"api_key"`
	APIToken    string `yaml:"api_token"`
	BoardID     string `yaml:"board_id"`
	TodoListID  string `yaml:"todo_list_id"`
	ReadyListID string `yaml:"ready_list_id"`
	DoneBoardID string `yaml:"done_board_id"`
	DoneListID  string `yaml:"done_list_id"`
}

// ClaudeConfig controls how the agent binary is driven.
type ClaudeConfig struct {
	Binary            string        `yaml:"binary"`
	Timeout           time.Duration `yaml:"timeout"`
	Yolo              bool          `yaml:"yolo"`
	MaxRetries        int           `yaml:"max_retries"`
	DefaultBackoff    time.Duration `yaml:"default_backoff"`
	CompactTimeout    time.Duration `yaml:"compact_timeout"`
	CostTimeout       time.Duration `yaml:"cost_timeout"`
	LogDir            string        `yaml:"log_dir"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	Adaptive          bool          `yaml:"adaptive"`
	MinRAMPerAgentMB  int           `yaml:"min_ram_per_agent_mb"`
}

type ProjectConfig struct {
	WorkingDir    string            `yaml:"working_dir"`
	SessionID     string            `yaml:"session_id"`
	CompactPrompt string            `yaml:"compact_prompt"`
	Maintenance   MaintenanceConfig `yaml:"maintenance"`
}

type MaintenanceConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval int           `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type StateConfig struct {
	File string `yaml:"file"`
}

type StatsConfig struct {
	HistoryLimit int `yaml:"history_limit"`
	MinDiskMB    int `yaml:"min_disk_mb"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// WorkingDir returns the configured working directory for a project, or "".
func (c *Config) WorkingDir(project string) string {
	if p, ok := c.Projects[project]; ok {
		return ExpandHome(p.WorkingDir)
	}
	return ""
}

// InitialSessionID returns the session handle seeded from the config file.
func (c *Config) InitialSessionID(project string) string {
	if p, ok := c.Projects[project]; ok {
		return p.SessionID
	}
	return ""
}

// CompactPrompt returns the project-specific retention instruction for compaction.
func (c *Config) CompactPrompt(project string) string {
	if p, ok := c.Projects[project]; ok {
		return p.CompactPrompt
	}
	return ""
}

// Maintenance returns the maintenance settings for a project, or nil.
func (c *Config) Maintenance(project string) *MaintenanceConfig {
	p, ok := c.Projects[project]
	if !ok {
		return nil
	}
	m := p.Maintenance
	return &m
}

// ProjectNames returns the configured project names.
func (c *Config) ProjectNames() []string {
	names := make([]string, 0, len(c.Projects))
	for name := range c.Projects {
		names = append(names, name)
	}
	return names
}

// Load reads and parses a trellm.yaml file, applying env overrides,
// defaults and validation. A missing file yields a config built from
// the environment and defaults alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = nil
	}
	return Parse(data)
}

// Parse parses raw YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg, err := Migrate(data)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, os.LookupEnv)
	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"TRELLO_API_KEY", &cfg.Board.APIKey},
		{"TRELLO_API_TOKEN", &cfg.Board.APIToken},
		{"TRELLO_BOARD_ID", &cfg.Board.BoardID},
		{"TRELLO_TODO_LIST_ID", &cfg.Board.TodoListID},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && v != "" {
			*o.dst = v
		}
	}
}

// Validate checks a Config for logical errors. Board credentials are
// checked separately by ValidateBoard since offline commands do not need them.
func Validate(cfg *Config) error {
	if cfg.Claude.Binary == "" {
		return fmt.Errorf("claude.binary is required")
	}
	if cfg.Claude.MaxRetries < 0 {
		return fmt.Errorf("claude.max_retries must be >= 0, got %d", cfg.Claude.MaxRetries)
	}
	if cfg.Claude.Timeout <= 0 {
		return fmt.Errorf("claude.timeout must be positive, got %v", cfg.Claude.Timeout)
	}
	if cfg.Claude.MaxConcurrent < 1 || cfg.Claude.MaxConcurrent > 32 {
		return fmt.Errorf("claude.max_concurrent must be 1-32, got %d", cfg.Claude.MaxConcurrent)
	}
	if cfg.Stats.HistoryLimit < 1 {
		return fmt.Errorf("stats.history_limit must be >= 1, got %d", cfg.Stats.HistoryLimit)
	}

	for name, p := range cfg.Projects {
		if name != strings.ToLower(name) {
			return fmt.Errorf("projects.%s: project names must be lower case", name)
		}
		if p.Maintenance.Enabled && p.Maintenance.Interval < 1 {
			return fmt.Errorf("projects.%s.maintenance.interval must be >= 1, got %d", name, p.Maintenance.Interval)
		}
		if p.WorkingDir == "" {
			continue
		}
		if info, err := os.Stat(ExpandHome(p.WorkingDir)); err != nil || !info.IsDir() {
			if err != nil {
				return fmt.Errorf("projects.%s.working_dir %q: %w", name, p.WorkingDir, err)
			}
			return fmt.Errorf("projects.%s.working_dir %q is not a directory", name, p.WorkingDir)
		}
	}

	return nil
}

// ValidateBoard checks that the board credentials needed for polling are present.
func ValidateBoard(cfg *Config) error {
	if cfg.Board.APIKey == "" || cfg.Board.APIToken == "" {
		return fmt.Errorf("board credentials not configured: set TRELLO_API_KEY and TRELLO_API_TOKEN or board.api_key/board.api_token")
	}
	if cfg.Board.TodoListID == "" {
		return fmt.Errorf("board.todo_list_id not configured: set TRELLO_TODO_LIST_ID or board.todo_list_id")
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
