package state

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrInsufficientDisk is returned when the state directory is nearly full.
var ErrInsufficientDisk = errors.New("insufficient disk space")

// CheckDiskSpace checks if the given path has at least minMB megabytes of free space.
func CheckDiskSpace(path string, minMB int) error {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Errorf("statfs %s: %w", path, err)
	}

	availableMB := stat.Bavail * uint64(stat.Bsize) / (1024 * 1024)
	if availableMB < uint64(minMB) {
		return fmt.Errorf("%w: %d MB available, %d MB required at %s",
			ErrInsufficientDisk, availableMB, minMB, path)
	}
	return nil
}
