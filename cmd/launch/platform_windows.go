package main

import (
	"patchlauncher/process"
	"patchlauncher/process_windows"
)

func getPlatform() (process.Platform, error) {
	return process_windows.New(), nil
}
