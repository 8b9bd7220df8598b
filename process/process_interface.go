package process

import (
	"time"
)

// Platform is the narrow set of OS primitives the launcher, memory stream and
// injector are built on. One implementation exists per target OS; tests use
// an in-memory implementation.
type Platform interface {
	// CreateSuspended starts path with its initial thread not yet running.
	// workDir may be empty.
	CreateSuspended(path, commandLine, workDir string) (ProcessInformation, error)

	// OpenProcess opens a handle to pid with only the requested rights
	OpenProcess(pid ProcessID, rights AccessRights) (Handle, error)

	// CloseHandle releases a process or thread handle
	CloseHandle(h Handle) error

	// ReadMemory copies len(buf) bytes from addr into buf and returns the
	// number of bytes transferred
	ReadMemory(h Handle, addr ProcessMemoryAddress, buf []byte) (int, error)

	// WriteMemory copies data to addr and returns the number of bytes transferred
	WriteMemory(h Handle, addr ProcessMemoryAddress, data []byte) (int, error)

	// ResumeThread decrements the thread's suspend count and returns the
	// count before the call. Failure is reported as an error, never as a
	// sentinel count.
	ResumeThread(thread Handle) (uint32, error)

	// TerminateProcess ends the process with exitCode
	TerminateProcess(h Handle, exitCode uint32) error

	// Allocate reserves and commits size bytes of read/write memory in the process
	Allocate(h Handle, size ProcessMemorySize) (ProcessMemoryAddress, error)

	// Free releases memory returned by Allocate
	Free(h Handle, addr ProcessMemoryAddress) error

	// LoaderEntryPoint returns the address of the OS library loader entry
	// point in the process behind h. It fails with ErrNotSupported when that
	// address cannot be known, for example when the process has a different
	// architecture than the caller.
	LoaderEntryPoint(h Handle) (ProcessMemoryAddress, error)

	// CreateRemoteThread starts a thread in the process at start with arg as
	// its only parameter
	CreateRemoteThread(h Handle, start, arg ProcessMemoryAddress) (Handle, error)

	// WaitThread blocks until the thread exits or timeout elapses, in which
	// case ErrWaitTimeout is returned
	WaitThread(thread Handle, timeout time.Duration) error

	// ThreadExitCode returns the exit code of a finished thread
	ThreadExitCode(thread Handle) (uint32, error)
}
