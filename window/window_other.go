//go:build !windows

package window

import (
	"fmt"

	"patchlauncher/process"
)

func renameOnce(pid process.ProcessID, title string) (bool, error) {
	return false, fmt.Errorf("rename window of pid %d: %w", pid, process.ErrNotSupported)
}
