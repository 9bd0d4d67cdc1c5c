package util

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// LogicalCPUCount returns the number of logical CPUs. Used to size the
// quality-measurement thread pool.
func LogicalCPUCount() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// AvailableDiskBytes returns the free space on the filesystem containing
// path. Returns 0 if it cannot be determined.
func AvailableDiskBytes(path string) uint64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0
	}
	return stat.Bavail * uint64(stat.Bsize)
}

// CheckDiskSpace reports whether the filesystem containing path has at least
// needed bytes free. Unknown free space passes the check.
func CheckDiskSpace(path string, needed uint64) bool {
	available := AvailableDiskBytes(path)
	if available == 0 {
		return true
	}
	return available >= needed
}
