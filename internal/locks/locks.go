// Package locks provides the per-project scheduler and the advisory
// single-instance lock guarding the state directory.
package locks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// InstanceLockName is the lock file created next to the state file.
const InstanceLockName = "trellm.lock"

// ErrLocked is returned when another process holds the instance lock.
var ErrLocked = errors.New("another trellm instance is running")

// InstanceLock is an exclusive flock held for the lifetime of a run.
type InstanceLock struct {
	path string
	file *os.File
}

// AcquireInstance takes the non-blocking exclusive lock in dir and writes
// the holder's pid and start time into it.
func AcquireInstance(dir string) (*InstanceLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, InstanceLockName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		holder, _ := os.ReadFile(path)
		return nil, fmt.Errorf("%w (holder: %s): %v", ErrLocked, strings.TrimSpace(string(holder)), err)
	}

	f.Truncate(0)
	f.Seek(0, 0)
	fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().Format(time.RFC3339))

	return &InstanceLock{path: path, file: f}, nil
}

// Path returns the lock file location.
func (l *InstanceLock) Path() string { return l.path }

// Release unlocks and removes the lock file.
func (l *InstanceLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	os.Remove(l.path)
	l.file = nil
}

// CleanStale removes lock files in dir whose holder process is no longer
// alive. It returns the removed paths.
func CleanStale(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock dir: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		lockPath := filepath.Join(dir, entry.Name())

		// If the lock can be taken, nobody holds it.
		f, err := os.OpenFile(lockPath, os.O_RDWR, 0o644)
		if err != nil {
			continue
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err == nil {
			unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			if os.Remove(lockPath) == nil {
				removed = append(removed, lockPath)
			}
		} else {
			f.Close()
		}
	}
	return removed, nil
}
