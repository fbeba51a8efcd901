//go:build darwin

package agent

import "golang.org/x/sys/unix"

// getAvailableRAMMB estimates free RAM from the free page count.
func getAvailableRAMMB() int {
	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0
	}
	pageSize, err := unix.SysctlUint32("hw.pagesize")
	if err != nil {
		pageSize = 4096
	}
	free, err := unix.SysctlUint32("vm.page_free_count")
	if err != nil || free == 0 {
		// Quarter of physical memory as a conservative guess.
		return int(total / (4 * 1024 * 1024))
	}
	return int(uint64(free) * uint64(pageSize) / (1024 * 1024))
}
