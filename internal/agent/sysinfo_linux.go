//go:build linux

package agent

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// getAvailableRAMMB reads MemAvailable from /proc/meminfo, falling back to
// sysinfo(2) free RAM when the file is unreadable.
func getAvailableRAMMB() int {
	if mb := memAvailableMB("/proc/meminfo"); mb > 0 {
		return mb
	}
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return int(uint64(info.Freeram) * uint64(info.Unit) / (1024 * 1024))
}

func memAvailableMB(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "MemAvailable:" {
			continue
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0
		}
		return kb / 1024
	}
	return 0
}
