//go:build windows

package audit

// checkDiskSpace is not implemented on Windows.
func checkDiskSpace(string) error {
	return nil
}
