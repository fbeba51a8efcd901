package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearBoardEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"TRELLO_API_KEY", "TRELLO_API_TOKEN", "TRELLO_BOARD_ID", "TRELLO_TODO_LIST_ID"} {
		t.Setenv(k, "")
	}
}

func fullConfig(workDir string) []byte {
	return []byte(strings.ReplaceAll(`
schema_version: 1
board:
  api_key: "file-key"
  api_token: "file-token"
  board_id: "board-1"
  todo_list_id: "todo-1"
  ready_list_id: "ready-1"
claude:
  binary: "/usr/local/bin/claude"
  timeout: 900s
  yolo: true
  max_retries: 3
  default_backoff: 120s
  compact_timeout: 90s
  cost_timeout: 15s
projects:
  trellm:
    working_dir: "WORKDIR"
    session_id: "seed-session"
    compact_prompt: "keep the test layout"
    maintenance:
      enabled: true
      interval: 5
polling:
  interval: 10s
state:
  file: "/tmp/trellm-state.json"
stats:
  history_limit: 50
`, "WORKDIR", workDir))
}

func TestParseFullConfig(t *testing.T) {
	clearBoardEnv(t)
	workDir := t.TempDir()

	cfg, err := Parse(fullConfig(workDir))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.SchemaVersion)
	assert.Equal(t, "/usr/local/bin/claude", cfg.Claude.Binary)
	assert.Equal(t, 900*time.Second, cfg.Claude.Timeout)
	assert.True(t, cfg.Claude.Yolo)
	assert.Equal(t, 3, cfg.Claude.MaxRetries)
	assert.Equal(t, 120*time.Second, cfg.Claude.DefaultBackoff)
	assert.Equal(t, 90*time.Second, cfg.Claude.CompactTimeout)
	assert.Equal(t, 15*time.Second, cfg.Claude.CostTimeout)
	assert.Equal(t, 10*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 50, cfg.Stats.HistoryLimit)

	assert.Equal(t, workDir, cfg.WorkingDir("trellm"))
	assert.Equal(t, "seed-session", cfg.InitialSessionID("trellm"))
	assert.Equal(t, "keep the test layout", cfg.CompactPrompt("trellm"))
	m := cfg.Maintenance("trellm")
	require.NotNil(t, m)
	assert.True(t, m.Enabled)
	assert.Equal(t, 5, m.Interval)
	assert.Equal(t, 600*time.Second, m.Timeout)

	assert.Equal(t, "", cfg.WorkingDir("unknown"))
	assert.Equal(t, "", cfg.InitialSessionID("unknown"))
	assert.Nil(t, cfg.Maintenance("unknown"))
}

func TestDefaults(t *testing.T) {
	clearBoardEnv(t)

	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, "claude", cfg.Claude.Binary)
	assert.Equal(t, 600*time.Second, cfg.Claude.Timeout)
	assert.Equal(t, 2, cfg.Claude.MaxRetries)
	assert.Equal(t, 300*time.Second, cfg.Claude.DefaultBackoff)
	assert.Equal(t, 120*time.Second, cfg.Claude.CompactTimeout)
	assert.Equal(t, 30*time.Second, cfg.Claude.CostTimeout)
	assert.Equal(t, 4, cfg.Claude.MaxConcurrent)
	assert.Equal(t, 5*time.Second, cfg.Polling.Interval)
	assert.Equal(t, "~/.trellm/state.json", cfg.State.File)
	assert.Equal(t, 500, cfg.Stats.HistoryLimit)
}

func TestEnvOverridesFile(t *testing.T) {
	clearBoardEnv(t)
	t.Setenv("TRELLO_API_KEY", "env-key")
	t.Setenv("TRELLO_TODO_LIST_ID", "env-todo")

	cfg, err := Parse(fullConfig(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Board.APIKey)
	assert.Equal(t, "file-token", cfg.Board.APIToken)
	assert.Equal(t, "env-todo", cfg.Board.TodoListID)
	assert.Equal(t, "board-1", cfg.Board.BoardID)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearBoardEnv(t)
	t.Setenv("TRELLO_API_KEY", "k")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.Board.APIKey)
	assert.Equal(t, "claude", cfg.Claude.Binary)
}

func TestLoadFromFile(t *testing.T) {
	clearBoardEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, fullConfig(t.TempDir()), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.Board.APIKey)
}

func TestValidateErrors(t *testing.T) {
	clearBoardEnv(t)

	tests := []struct {
		name string
		yaml string
	}{
		{"negative retries", "claude:\n  max_retries: -1\n"},
		{"upper-case project", "projects:\n  TreLLM:\n    working_dir: \"\"\n"},
		{"missing working dir", "projects:\n  app:\n    working_dir: \"/nonexistent/trellm/dir\"\n"},
		{"bad maintenance interval", "projects:\n  app:\n    maintenance:\n      enabled: true\n      interval: -3\n"},
		{"too many concurrent", "claude:\n  max_concurrent: 99\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestValidateBoard(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, ValidateBoard(cfg))

	cfg.Board.APIKey = "k"
	cfg.Board.APIToken = "t"
	assert.Error(t, ValidateBoard(cfg), "todo list id still missing")

	cfg.Board.TodoListID = "todo"
	assert.NoError(t, ValidateBoard(cfg))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".trellm/state.json"), ExpandHome("~/.trellm/state.json"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	assert.Equal(t, "~user/x", ExpandHome("~user/x"))
}
