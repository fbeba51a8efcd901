// Package state persists the single trellm state document: per-project
// sessions, the processed-task registry, the stats ledger and maintenance
// counters.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kylegalloway/trellm/internal/stats"
)

// StatusComplete marks a task that finished successfully.
const StatusComplete = "complete"

// Session is the agent session bound to a project.
type Session struct {
	SessionID    string    `json:"session_id"`
	LastActivity time.Time `json:"last_activity"`
	LastTaskID   string    `json:"last_task_id,omitempty"`
}

// Processed records when a task was handled.
type Processed struct {
	ProcessedAt time.Time `json:"processed_at"`
	Status      string    `json:"status"`
}

// Maintenance tracks tickets completed since the project was created and
// when maintenance last ran.
type Maintenance struct {
	TicketCount     int        `json:"ticket_count"`
	LastMaintenance *time.Time `json:"last_maintenance,omitempty"`
}

// Document is the on-disk JSON shape.
type Document struct {
	Sessions    map[string]*Session     `json:"sessions"`
	Processed   map[string]*Processed   `json:"processed"`
	Stats       *stats.Ledger           `json:"stats"`
	Maintenance map[string]*Maintenance `json:"maintenance"`
	LastSave    time.Time               `json:"last_save"`
}

func newDocument() Document {
	return Document{
		Sessions:    make(map[string]*Session),
		Processed:   make(map[string]*Processed),
		Stats:       stats.NewLedger(),
		Maintenance: make(map[string]*Maintenance),
	}
}

func (d *Document) fill() {
	if d.Sessions == nil {
		d.Sessions = make(map[string]*Session)
	}
	if d.Processed == nil {
		d.Processed = make(map[string]*Processed)
	}
	if d.Stats == nil {
		d.Stats = stats.NewLedger()
	}
	if d.Maintenance == nil {
		d.Maintenance = make(map[string]*Maintenance)
	}
}

// Options tune a Manager.
type Options struct {
	HistoryLimit int
	// MinDiskMB refuses to save when the state directory has less free
	// space. Zero disables the check.
	MinDiskMB int
	Now       func() time.Time
}

// Manager owns the state document. All methods are safe for concurrent use;
// every mutation is saved before it returns.
type Manager struct {
	mu     sync.Mutex
	path   string
	doc    Document
	opts   Options
	logger *zap.Logger
}

// Open loads the state file at path. A missing file starts empty; an
// unreadable or corrupt one is logged and replaced by an empty document
// on the next save.
func Open(path string, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		path:   path,
		opts:   opts,
		logger: logger.Named("state"),
	}
	doc, err := load(path)
	switch {
	case err == nil:
		m.doc = doc
	case errors.Is(err, os.ErrNotExist):
		m.doc = newDocument()
	default:
		m.logger.Error("failed to load state, starting empty", zap.String("path", path), zap.Error(err))
		m.doc = newDocument()
	}
	return m
}

func load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read state: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse state: %w", err)
	}
	doc.fill()
	return doc, nil
}

// Path returns the state file location.
func (m *Manager) Path() string { return m.path }

// Session returns the session stored for project.
func (m *Manager) Session(project string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.doc.Sessions[project]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// SetSession binds sessionID to project. An empty lastTaskID keeps the
// previously recorded one.
func (m *Manager) SetSession(project, sessionID, lastTaskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.doc.Sessions[project]
	if !ok {
		s = &Session{}
		m.doc.Sessions[project] = s
	}
	s.SessionID = sessionID
	s.LastActivity = m.opts.Now().UTC()
	if lastTaskID != "" {
		s.LastTaskID = lastTaskID
	}
	return m.saveLocked()
}

// IsProcessed reports whether taskID has been handled.
func (m *Manager) IsProcessed(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.doc.Processed[taskID]
	return ok
}

// ShouldReprocess reports whether a processed task has seen activity after
// it was processed, meaning it was reopened.
func (m *Manager) ShouldReprocess(taskID string, lastActivity time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.doc.Processed[taskID]
	if !ok {
		return false
	}
	return lastActivity.After(p.ProcessedAt)
}

// MarkProcessed records taskID as complete.
func (m *Manager) MarkProcessed(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc.Processed[taskID] = &Processed{ProcessedAt: m.opts.Now().UTC(), Status: StatusComplete}
	return m.saveLocked()
}

// ClearProcessed forgets taskID so it is picked up again.
func (m *Manager) ClearProcessed(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doc.Processed[taskID]; !ok {
		return nil
	}
	delete(m.doc.Processed, taskID)
	return m.saveLocked()
}

// RecordTicket adds a completed ticket's usage to the stats ledger.
func (m *Manager) RecordTicket(taskID, project, title string, u stats.Usage) (stats.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := m.opts.HistoryLimit
	rec := m.doc.Stats.Record(taskID, project, title, stats.FromUsage(u), m.opts.Now(), limit)
	if err := m.saveLocked(); err != nil {
		return rec, err
	}
	m.logger.Debug("ticket recorded",
		zap.String("project", project),
		zap.String("task", taskID),
		zap.Int64("cost_cents", rec.Usage.CostCents),
	)
	return rec, nil
}

// Stats returns a copy of the ledger.
func (m *Manager) Stats() *stats.Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Stats.Clone()
}

// IncrementTicketCount bumps the project's completed ticket count and
// returns the new value.
func (m *Manager) IncrementTicketCount(project string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt := m.maintenanceLocked(project)
	mt.TicketCount++
	return mt.TicketCount, m.saveLocked()
}

// MarkMaintenance records that maintenance ran for project now.
func (m *Manager) MarkMaintenance(project string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.Now().UTC()
	m.maintenanceLocked(project).LastMaintenance = &now
	return m.saveLocked()
}

// Maintenance returns the maintenance counters for project.
func (m *Manager) Maintenance(project string) Maintenance {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt, ok := m.doc.Maintenance[project]; ok {
		return *mt
	}
	return Maintenance{}
}

func (m *Manager) maintenanceLocked(project string) *Maintenance {
	mt, ok := m.doc.Maintenance[project]
	if !ok {
		mt = &Maintenance{}
		m.doc.Maintenance[project] = mt
	}
	return mt
}

// Save rolls up the ledger and persists the document.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

// saveLocked writes the document atomically via a temp file and rename.
func (m *Manager) saveLocked() error {
	now := m.opts.Now()
	m.doc.Stats.Rollup(now)
	m.doc.LastSave = now.UTC()

	data, err := json.MarshalIndent(&m.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if m.opts.MinDiskMB > 0 {
		if err := CheckDiskSpace(dir, m.opts.MinDiskMB); err != nil {
			return err
		}
	}

	tmpFile, err := os.CreateTemp(dir, "state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
