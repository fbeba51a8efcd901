package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Process kinds recorded in the registry.
const (
	KindTask        = "task"
	KindCompact     = "compact"
	KindCost        = "cost"
	KindMaintenance = "maintenance"
)

// ProcessEntry describes a live agent subprocess.
type ProcessEntry struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	PGID      int       `json:"pgid"`
	Kind      string    `json:"kind"`
	Project   string    `json:"project"`
	TaskID    string    `json:"task_id,omitempty"`
	StartTime time.Time `json:"start_time"`
}

// Registry tracks live agent subprocesses so they can be killed on shutdown.
// When a persist path is set, the live set is mirrored to disk so a later
// run can reap processes orphaned by a crash.
type Registry struct {
	mu    sync.Mutex
	procs map[string]*ProcessEntry

	// persistMu orders writes so the file always holds the latest snapshot.
	persistMu   sync.Mutex
	persistPath string
	logger      *zap.Logger
}

// NewRegistry creates a registry persisting to path ("" disables persistence).
func NewRegistry(path string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		procs:       make(map[string]*ProcessEntry),
		persistPath: path,
		logger:      logger.Named("registry"),
	}
}

// Register records a started process.
func (r *Registry) Register(e ProcessEntry) {
	if e.PGID == 0 {
		e.PGID = e.PID
	}
	r.mu.Lock()
	r.procs[e.ID] = &e
	r.mu.Unlock()
	r.persist()
}

// Unregister forgets a process that has exited.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, ok := r.procs[id]
	delete(r.procs, id)
	r.mu.Unlock()
	if ok {
		r.persist()
	}
}

// Running returns a snapshot of the live processes.
func (r *Registry) Running() []ProcessEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]ProcessEntry, 0, len(r.procs))
	for _, e := range r.procs {
		entries = append(entries, *e)
	}
	return entries
}

// Count returns the number of live processes.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// KillAll terminates every live process group: SIGTERM, wait up to grace,
// then SIGKILL for survivors.
func (r *Registry) KillAll(grace time.Duration) {
	procs := r.Running()
	if len(procs) == 0 {
		return
	}
	r.logger.Info("terminating live agent processes", zap.Int("count", len(procs)))

	pids := make([]int, 0, len(procs))
	for _, p := range procs {
		signalGroup(p.PGID, p.PID, syscall.SIGTERM)
		pids = append(pids, p.PID)
	}

	if !waitExit(pids, grace) {
		for _, p := range procs {
			if ProcessAlive(p.PID) {
				signalGroup(p.PGID, p.PID, syscall.SIGKILL)
				r.logger.Warn("sent SIGKILL", zap.String("id", p.ID), zap.Int("pid", p.PID))
			}
		}
	}

	r.mu.Lock()
	r.procs = make(map[string]*ProcessEntry)
	r.mu.Unlock()
	r.persist()
}

// LoadOrphans reads the process list persisted by a previous run.
func (r *Registry) LoadOrphans() ([]ProcessEntry, error) {
	if r.persistPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(r.persistPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", filepath.Base(r.persistPath), err)
	}

	var entries []ProcessEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(r.persistPath), err)
	}
	return entries, nil
}

// KillOrphan terminates a process group left behind by a previous run.
func KillOrphan(e ProcessEntry, grace time.Duration) {
	pgid := e.PGID
	if pgid == 0 {
		pgid = e.PID
	}
	signalGroup(pgid, e.PID, syscall.SIGTERM)
	if !waitExit([]int{e.PID}, grace) {
		signalGroup(pgid, e.PID, syscall.SIGKILL)
	}
}

// ProcessAlive checks if a given PID is still running.
func ProcessAlive(pid int) bool {
	return pid > 0 && syscall.Kill(pid, 0) == nil
}

func signalGroup(pgid, pid int, sig syscall.Signal) {
	if pgid > 0 {
		_ = syscall.Kill(-pgid, sig)
	}
	if pid > 0 {
		_ = syscall.Kill(pid, sig)
	}
}

// waitExit polls until every pid has exited or the timeout passes.
func waitExit(pids []int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		alive := false
		for _, pid := range pids {
			if ProcessAlive(pid) {
				alive = true
				break
			}
		}
		if !alive {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// persist writes the live set to disk via temp file and rename.
func (r *Registry) persist() {
	if r.persistPath == "" {
		return
	}
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	entries := r.Running()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		r.logger.Warn("marshal process registry", zap.Error(err))
		return
	}

	dir := filepath.Dir(r.persistPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.logger.Warn("create registry dir", zap.Error(err))
		return
	}
	tmp, err := os.CreateTemp(dir, "agents-*.json")
	if err != nil {
		r.logger.Warn("create registry temp file", zap.Error(err))
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return
	}
	tmp.Close()

	if err := os.Rename(tmpName, r.persistPath); err != nil {
		os.Remove(tmpName)
		r.logger.Warn("persist process registry", zap.Error(err))
	}
}
