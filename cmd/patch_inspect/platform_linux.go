package main

import (
	"patchlauncher/process"
	"patchlauncher/process_linux"
)

func getPlatform() (process.Platform, error) {
	return process_linux.New(), nil
}
