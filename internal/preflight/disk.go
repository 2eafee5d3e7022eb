package preflight

import (
	"fmt"
	"syscall"
)

const (
	// MinDiskSpaceBytes is the free space below which indexing is refused (100MB).
	MinDiskSpaceBytes = 100 * 1024 * 1024

	// WarnDiskSpaceBytes is the free space below which a warning is raised (500MB).
	WarnDiskSpaceBytes = 500 * 1024 * 1024
)

// CheckDiskSpace checks the free space on the filesystem holding path.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	const name = "disk_space"

	available, err := c.diskFree(existingAncestor(path))
	if err != nil {
		return fail(name, true, fmt.Sprintf("failed to check disk space: %v", err))
	}

	msg := fmt.Sprintf("%s free (minimum: 100 MB)", formatBytes(available))
	switch {
	case available < MinDiskSpaceBytes:
		return fail(name, true, msg)
	case available < WarnDiskSpaceBytes:
		r := warn(name, fmt.Sprintf("%s free (recommended: 500 MB)", formatBytes(available)))
		r.Required = true
		return r
	}
	return pass(name, true, msg)
}

func freeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
