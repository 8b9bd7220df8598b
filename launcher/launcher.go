// Package launcher starts a process with its main thread suspended and
// controls the single transition to running.
package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"patchlauncher/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// maxSuspendCount bounds the resume loop. Windows refuses to suspend a thread
// more than MAXIMUM_SUSPEND_COUNT (127) times.
const maxSuspendCount = 127

// State is the lifecycle of a SuspendedProcess. Transitions only move forward.
type State int

const (
	StateSuspended State = iota
	StateResumed
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateResumed:
		return "resumed"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// SuspendedProcess owns the process and main thread handles of a process
// created suspended.
type SuspendedProcess struct {
	platform      process.Platform
	pid           process.ProcessID
	tid           process.ThreadID
	process       *process.OwnedHandle
	thread        *process.OwnedHandle
	state         State
	resumeOnClose bool
	log           *logger.Logger
	mu            sync.Mutex
}

// Start creates path suspended. commandLine holds the arguments after the
// executable. When resumeOnClose is set, Close resumes a process that was
// never resumed before releasing it.
func Start(platform process.Platform, path, commandLine string, resumeOnClose bool) (*SuspendedProcess, error) {
	if path == "" {
		return nil, &process.LaunchError{Path: path, Err: &process.ArgumentError{Name: "path", Value: `""`, Reason: "empty"}}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &process.LaunchError{Path: path, Err: err}
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, &process.LaunchError{Path: abs, Code: process.ErrorCode(err), Err: err}
	}

	// The client loads its data files relative to its own folder
	info, err := platform.CreateSuspended(abs, commandLine, filepath.Dir(abs))
	if err != nil {
		return nil, &process.LaunchError{Path: abs, Code: process.ErrorCode(err), Err: err}
	}

	sp := &SuspendedProcess{
		platform:      platform,
		pid:           info.PID,
		tid:           info.TID,
		process:       process.Own(platform, info.Process),
		thread:        process.Own(platform, info.Thread),
		state:         StateSuspended,
		resumeOnClose: resumeOnClose,
		log:           logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("launcher-%d", info.PID))),
	}
	sp.log.Infoln("Started suspended", abs, "tid", info.TID)
	return sp, nil
}

// PID returns the process id
func (sp *SuspendedProcess) PID() process.ProcessID {
	return sp.pid
}

// TID returns the main thread id
func (sp *SuspendedProcess) TID() process.ThreadID {
	return sp.tid
}

// State returns the current lifecycle state
func (sp *SuspendedProcess) State() State {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.state
}

// Suspended reports whether the main thread has not been resumed yet
func (sp *SuspendedProcess) Suspended() bool {
	return sp.State() == StateSuspended
}

// ProcessHandle returns the owned process handle. Callers may borrow it for
// the lifetime of the SuspendedProcess but must not close it.
func (sp *SuspendedProcess) ProcessHandle() (process.Handle, error) {
	return sp.process.Handle()
}

// Resume lets the main thread run. Calling it on a running process is a no-op.
func (sp *SuspendedProcess) Resume() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	switch sp.state {
	case StateReleased:
		return process.ErrClosed
	case StateResumed:
		return nil
	}
	return sp.resumeLocked()
}

func (sp *SuspendedProcess) resumeLocked() error {
	thread, err := sp.thread.Handle()
	if err != nil {
		return err
	}

	// Each call returns the count before decrementing; a previous count of
	// 1 means this call released the thread, 0 means it was already running
	for i := 0; i <= maxSuspendCount; i++ {
		prev, err := sp.platform.ResumeThread(thread)
		if err != nil {
			return &process.HandleError{Op: "ResumeThread", Code: process.ErrorCode(err), Err: err}
		}
		if prev <= 1 {
			sp.state = StateResumed
			sp.log.Infoln("Resumed")
			return nil
		}
	}
	return &process.HandleError{Op: "ResumeThread", Err: fmt.Errorf("thread still suspended after %d resumes", maxSuspendCount+1)}
}

// Terminate kills the process. It is the only safe exit for a process that
// was created but could not be patched. The handles are released afterwards.
func (sp *SuspendedProcess) Terminate(exitCode uint32) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.state == StateReleased {
		return process.ErrClosed
	}

	h, err := sp.process.Handle()
	if err != nil {
		return err
	}
	if err := sp.platform.TerminateProcess(h, exitCode); err != nil {
		return &process.HandleError{Op: "TerminateProcess", Code: process.ErrorCode(err), Err: err}
	}
	sp.log.Warn("Terminated with exit code ", exitCode)
	return sp.releaseLocked()
}

// Close releases both handles, resuming first if resumeOnClose was requested
// and the process is still suspended. Further calls are no-ops.
func (sp *SuspendedProcess) Close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.state == StateReleased {
		return nil
	}

	var resumeErr error
	if sp.state == StateSuspended && sp.resumeOnClose {
		resumeErr = sp.resumeLocked()
	}
	if err := sp.releaseLocked(); err != nil {
		return err
	}
	return resumeErr
}

func (sp *SuspendedProcess) releaseLocked() error {
	sp.state = StateReleased
	threadErr := sp.thread.Close()
	processErr := sp.process.Close()
	sp.log.Debugln("Handles released")
	if threadErr != nil {
		return threadErr
	}
	return processErr
}
