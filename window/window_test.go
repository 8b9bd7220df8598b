package window

import (
	"runtime"
	"testing"
	"time"

	"patchlauncher/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameRequiresTitle(t *testing.T) {
	var argErr *process.ArgumentError
	require.ErrorAs(t, Rename(1, "", time.Second), &argErr)
	assert.Equal(t, "title", argErr.Name)
}

func TestRenameNotSupported(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows has a real implementation")
	}
	err := Rename(1, "client 1", time.Minute)
	assert.ErrorIs(t, err, process.ErrNotSupported)
}

func TestRenameTimesOut(t *testing.T) {
	if runtime.GOOS != "windows" {
		t.Skip("needs EnumWindows")
	}
	// pid 0 never owns a top-level window
	err := Rename(0, "nobody", 2*PollInterval)
	assert.ErrorIs(t, err, process.ErrWaitTimeout)
}
