package config

import (
	"testing"
	"time"
)

func TestMigrateV1(t *testing.T) {
	raw := []byte(`
schema_version: 1
projects:
  trellm:
    working_dir: "/tmp"
`)
	cfg, err := Migrate(raw)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if cfg.SchemaVersion != 1 {
		t.Errorf("schema_version = %d, want 1", cfg.SchemaVersion)
	}
	if cfg.Projects["trellm"].WorkingDir != "/tmp" {
		t.Errorf("projects.trellm.working_dir = %q, want %q", cfg.Projects["trellm"].WorkingDir, "/tmp")
	}
}

func TestMigrateNoVersion(t *testing.T) {
	raw := []byte(`
claude:
  binary: "claude"
`)
	cfg, err := Migrate(raw)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if cfg.SchemaVersion != 1 {
		t.Errorf("schema_version = %d, want 1 (default for missing version)", cfg.SchemaVersion)
	}
}

func TestMigrateEmpty(t *testing.T) {
	cfg, err := Migrate(nil)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if cfg.Projects == nil {
		t.Error("Projects map should be initialized")
	}
}

func TestMigrateUnsupportedVersion(t *testing.T) {
	raw := []byte(`
schema_version: 99
claude:
  binary: "claude"
`)
	_, err := Migrate(raw)
	if err == nil {
		t.Fatal("expected error for unsupported schema version")
	}
}

func TestMigrateInvalidYAML(t *testing.T) {
	raw := []byte(`{{{invalid yaml}}}`)
	_, err := Migrate(raw)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestMigrateLegacyLayout(t *testing.T) {
	raw := []byte(`
trello:
  api_key: "k"
  api_token: "t"
  board_id: "b"
  todo_list_id: "todo"
  ready_to_try_list_id: "ready"
claude:
  binary: "/opt/claude"
  timeout: 900
  projects:
    trellm:
      working_dir: "/tmp"
      session_id: "abc"
polling:
  interval_seconds: 30
state:
  file: "/var/lib/trellm/state.json"
`)
	cfg, err := Migrate(raw)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if cfg.SchemaVersion != 1 {
		t.Errorf("schema_version = %d, want 1", cfg.SchemaVersion)
	}
	if cfg.Board.APIKey != "k" || cfg.Board.TodoListID != "todo" || cfg.Board.ReadyListID != "ready" {
		t.Errorf("board = %+v", cfg.Board)
	}
	if cfg.Claude.Binary != "/opt/claude" || cfg.Claude.Timeout != 900*time.Second {
		t.Errorf("claude = %+v", cfg.Claude)
	}
	p := cfg.Projects["trellm"]
	if p.WorkingDir != "/tmp" || p.SessionID != "abc" {
		t.Errorf("projects.trellm = %+v", p)
	}
	if cfg.Polling.Interval != 30*time.Second {
		t.Errorf("polling.interval = %v, want 30s", cfg.Polling.Interval)
	}
	if cfg.State.File != "/var/lib/trellm/state.json" {
		t.Errorf("state.file = %q", cfg.State.File)
	}
}

func TestMigrateLegacyGetsDefaults(t *testing.T) {
	t.Setenv("TRELLO_API_KEY", "")
	cfg, err := Parse([]byte("trello:\n  api_key: \"k\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Claude.Timeout != 600*time.Second {
		t.Errorf("claude.timeout = %v, want default 600s", cfg.Claude.Timeout)
	}
	if cfg.Board.APIKey != "k" {
		t.Errorf("board.api_key = %q, want k", cfg.Board.APIKey)
	}
}
