// Package window renames the main window of a launched client once it
// appears, so several instances can be told apart.
package window

import (
	"time"

	"patchlauncher/process"
)

// PollInterval is how often Rename looks for the window
const PollInterval = 100 * time.Millisecond

// Rename waits up to timeout for a visible top-level window owned by pid and
// sets its title. It returns process.ErrWaitTimeout if no window appears.
func Rename(pid process.ProcessID, title string, timeout time.Duration) error {
	if title == "" {
		return &process.ArgumentError{Name: "title", Value: title, Reason: "must not be empty"}
	}

	deadline := time.Now().Add(timeout)
	for {
		found, err := renameOnce(pid, title)
		if err != nil || found {
			return err
		}
		if time.Now().After(deadline) {
			return process.ErrWaitTimeout
		}
		time.Sleep(PollInterval)
	}
}
