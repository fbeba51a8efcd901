package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const maxSupportedSchemaVersion = 1

// Migrate parses raw YAML bytes, handling schema version migration.
// An unversioned file with a top-level "trello" section is the legacy
// layout and is converted; any other unversioned file is read as v1.
// Empty input yields an empty v1 config.
func Migrate(raw []byte) (*Config, error) {
	var base struct {
		SchemaVersion int       `yaml:"schema_version"`
		Trello        yaml.Node `yaml:"trello"`
	}
	if err := yaml.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("parse schema_version: %w", err)
	}

	switch {
	case base.SchemaVersion == 0 && !base.Trello.IsZero():
		return parseLegacy(raw)
	case base.SchemaVersion == 0 || base.SchemaVersion == 1:
		return parseV1(raw)
	default:
		return nil, fmt.Errorf("unsupported schema_version %d (max supported: %d)",
			base.SchemaVersion, maxSupportedSchemaVersion)
	}
}

func parseV1(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Projects == nil {
		cfg.Projects = make(map[string]ProjectConfig)
	}
	cfg.SchemaVersion = 1
	return &cfg, nil
}

// legacyConfig is the pre-versioned layout: board settings under "trello",
// projects nested in "claude" and plain-second durations.
type legacyConfig struct {
	Trello struct {
		APIKey           string `yaml:"api_key"`
		APIToken         string `yaml:"api_token"`
		BoardID          string `yaml:"board_id"`
		TodoListID       string `yaml:"todo_list_id"`
		ReadyToTryListID string `yaml:"ready_to_try_list_id"`
	} `yaml:"trello"`
	Claude struct {
		Binary   string `yaml:"binary"`
		Timeout  int    `yaml:"timeout"`
		Projects map[string]struct {
			WorkingDir string `yaml:"working_dir"`
			SessionID  string `yaml:"session_id"`
		} `yaml:"projects"`
	} `yaml:"claude"`
	Polling struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"polling"`
	State struct {
		File string `yaml:"file"`
	} `yaml:"state"`
}

func parseLegacy(raw []byte) (*Config, error) {
	var old legacyConfig
	if err := yaml.Unmarshal(raw, &old); err != nil {
		return nil, fmt.Errorf("parse legacy config: %w", err)
	}

	cfg := &Config{
		SchemaVersion: 1,
		Board: BoardConfig{
			APIKey:      old.Trello.APIKey,
			APIToken:    old.Trello.APIToken,
			BoardID:     old.Trello.BoardID,
			TodoListID:  old.Trello.TodoListID,
			ReadyListID: old.Trello.ReadyToTryListID,
		},
		Claude: ClaudeConfig{
			Binary:  old.Claude.Binary,
			Timeout: time.Duration(old.Claude.Timeout) * time.Second,
		},
		Projects: make(map[string]ProjectConfig, len(old.Claude.Projects)),
		Polling:  PollingConfig{Interval: time.Duration(old.Polling.IntervalSeconds) * time.Second},
		State:    StateConfig{File: old.State.File},
	}
	for name, p := range old.Claude.Projects {
		cfg.Projects[name] = ProjectConfig{WorkingDir: p.WorkingDir, SessionID: p.SessionID}
	}
	return cfg, nil
}
