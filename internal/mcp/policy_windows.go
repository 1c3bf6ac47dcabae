//go:build windows

package mcp

import (
	"os"
)

// openPolicyFile opens path read-only. There is no O_NOFOLLOW on Windows;
// creating a symlink there needs elevated privileges.
func openPolicyFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return f, nil
}

// checkFileOwnership is a no-op: ownership on Windows lives in ACLs.
func checkFileOwnership(_ os.FileInfo) error {
	return nil
}
