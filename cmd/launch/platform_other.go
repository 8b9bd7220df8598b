//go:build !windows && !linux

package main

import (
	"fmt"
	"runtime"

	"patchlauncher/process"
)

func getPlatform() (process.Platform, error) {
	return nil, fmt.Errorf("%s: %w", runtime.GOOS, process.ErrNotSupported)
}
