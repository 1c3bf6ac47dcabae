//go:build !windows

package audit

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// checkDiskSpace refuses a write when the log's file system is nearly full.
// A failed statfs only logs a warning.
func checkDiskSpace(dir string) error {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		slog.Warn("failed to check disk space for audit log", "dir", dir, "error", err)
		return nil
	}

	available := uint64(stat.Bavail) * uint64(stat.Bsize)
	if available < MinDiskSpace {
		return fmt.Errorf("audit: insufficient disk space: only %d bytes available, need at least %d",
			available, MinDiskSpace)
	}
	return nil
}
