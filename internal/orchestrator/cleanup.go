package orchestrator

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kylegalloway/trellm/internal/agent"
	"github.com/kylegalloway/trellm/internal/locks"
)

const orphanGrace = 5 * time.Second

// CleanupResult reports what was cleaned up during startup.
type CleanupResult struct {
	OrphansKilled     int
	StaleLocksCleaned int
}

// CleanupStaleState kills agent processes orphaned by a previous run and
// removes instance locks whose holder is gone. Either argument may be
// empty/nil to skip that step.
func CleanupStaleState(registry *agent.Registry, lockDir string, logger *zap.Logger) (*CleanupResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	result := &CleanupResult{}

	if registry != nil {
		orphans, err := registry.LoadOrphans()
		if err != nil {
			logger.Warn("could not load orphaned agents", zap.Error(err))
		}
		for _, e := range orphans {
			if !agent.ProcessAlive(e.PID) {
				continue
			}
			agent.KillOrphan(e, orphanGrace)
			logger.Info("killed orphaned agent",
				zap.String("id", e.ID),
				zap.Int("pid", e.PID),
				zap.String("kind", e.Kind),
				zap.String("project", e.Project),
			)
			result.OrphansKilled++
		}
	}

	if lockDir != "" {
		removed, err := locks.CleanStale(lockDir)
		if err != nil {
			return result, fmt.Errorf("stale lock cleanup: %w", err)
		}
		result.StaleLocksCleaned = len(removed)
	}
	return result, nil
}

// StartupCleanup takes the instance lock in dir and only then reaps
// orphaned agents and stale locks. If another instance holds the lock the
// returned error wraps locks.ErrLocked and nothing is touched. The lock is
// returned even when the cleanup step itself fails.
func StartupCleanup(dir string, registry *agent.Registry, logger *zap.Logger) (*locks.InstanceLock, *CleanupResult, error) {
	lock, err := locks.AcquireInstance(dir)
	if err != nil {
		return nil, nil, err
	}
	result, err := CleanupStaleState(registry, dir, logger)
	return lock, result, err
}

// FormatCleanupResult returns a human-readable summary of cleanup actions.
func FormatCleanupResult(r *CleanupResult) string {
	if r == nil {
		return "No cleanup needed"
	}

	msg := ""
	if r.OrphansKilled > 0 {
		msg += fmt.Sprintf("Killed %d orphan agent(s). ", r.OrphansKilled)
	}
	if r.StaleLocksCleaned > 0 {
		msg += fmt.Sprintf("Removed %d stale lock(s). ", r.StaleLocksCleaned)
	}
	if msg == "" {
		msg = "Clean startup, no stale state found."
	}
	return msg
}
