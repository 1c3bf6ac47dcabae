package vault

import (
	"fmt"
	"os"
	"path/filepath"
)

// Disk capacity thresholds
const (
	MinDiskSpaceBytes  = 10 * 1024 * 1024 // 10 MB minimum free space
	DiskWarningPercent = 90               // Warn when disk is 90% full
)

// DiskSpaceInfo contains disk usage information
type DiskSpaceInfo struct {
	Total     uint64 `json:"total"`     // Total disk space in bytes
	Free      uint64 `json:"free"`      // Free disk space in bytes
	Available uint64 `json:"available"` // Available to non-root users
	UsedPct   int    `json:"used_pct"`  // Percentage of disk used
}

// Low reports whether disk usage is above the warning threshold.
func (d *DiskSpaceInfo) Low() bool {
	return d.UsedPct >= DiskWarningPercent
}

// CheckDiskSpace returns disk space information for the directory holding the vault.
func (v *Vault) CheckDiskSpace() (*DiskSpaceInfo, error) {
	return diskSpace(filepath.Dir(v.path))
}

// checkDiskSpaceForSnapshot requires room for at least one more copy of the
// database, or MinDiskSpaceBytes, whichever is larger.
func (v *Vault) checkDiskSpaceForSnapshot() error {
	info, err := v.CheckDiskSpace()
	if err != nil {
		// Statfs can be unavailable on some filesystems; let SQLite report a real shortage.
		return nil
	}

	required := uint64(MinDiskSpaceBytes)
	if st, err := os.Stat(v.path); err == nil && uint64(st.Size()) > required {
		required = uint64(st.Size())
	}

	if info.Available < required {
		return fmt.Errorf("%w: only %d MB available, need at least %d MB",
			ErrInsufficientDisk,
			info.Available/(1024*1024),
			required/(1024*1024))
	}
	return nil
}
