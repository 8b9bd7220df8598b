package process

import (
	"errors"
	"fmt"
	"syscall"
)

// LaunchError reports that process creation failed.
type LaunchError struct {
	Path string
	Code uint32 // OS error code, 0 when unknown
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %q failed (code %d): %v", e.Path, e.Code, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// HandleError reports a failure to open, use or release a process or thread handle.
type HandleError struct {
	Op   string
	Code uint32
	Err  error
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("%s failed (code %d): %v", e.Op, e.Code, e.Err)
}

func (e *HandleError) Unwrap() error { return e.Err }

// MemoryAccessError reports a failed or partial remote read or write.
// Partial transfers are never retried.
type MemoryAccessError struct {
	Op          string // "read" or "write"
	Address     ProcessMemoryAddress
	Requested   int
	Transferred int
	Err         error
}

func (e *MemoryAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s at %s: %d of %d bytes: %v", e.Op, e.Address.ToString(), e.Transferred, e.Requested, e.Err)
	}
	return fmt.Sprintf("remote %s at %s: %d of %d bytes", e.Op, e.Address.ToString(), e.Transferred, e.Requested)
}

func (e *MemoryAccessError) Unwrap() error { return e.Err }

// ArgumentError reports invalid caller input.
type ArgumentError struct {
	Name   string
	Value  any
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Name, e.Value, e.Reason)
}

// InjectionReason identifies which step of a module injection failed.
type InjectionReason string

const (
	ReasonAllocate     InjectionReason = "allocate"
	ReasonWrite        InjectionReason = "write"
	ReasonResolve      InjectionReason = "resolve"
	ReasonCreateThread InjectionReason = "create-thread"
	ReasonTimeout      InjectionReason = "timeout"
	ReasonWait         InjectionReason = "wait"
	ReasonLoadFailed   InjectionReason = "load-failed"
)

// InjectionError reports a module injection failure and the step it failed at.
type InjectionError struct {
	Reason InjectionReason
	Err    error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("injection failed at %s: %v", e.Reason, e.Err)
}

func (e *InjectionError) Unwrap() error { return e.Err }

// VersionMismatchError reports that an executable's content hash matches no
// registered client version, or not the one that was asked for.
type VersionMismatchError struct {
	Path      string
	Hash      string
	Requested string // version name explicitly requested, if any
}

func (e *VersionMismatchError) Error() string {
	if e.Requested != "" {
		return fmt.Sprintf("%s (hash %s) is not client version %s", e.Path, e.Hash, e.Requested)
	}
	return fmt.Sprintf("%s (hash %s) matches no known client version", e.Path, e.Hash)
}

// ErrorCode extracts the OS error number carried by err, or 0.
func ErrorCode(err error) uint32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return 0
}
