// Package process provides the OS-neutral types, errors and platform seam
// used to launch, patch and inject into a suspended process.
package process

import "errors"

var (
	// ErrClosed is returned by any operation on a handle, stream or process
	// wrapper after it has been released.
	ErrClosed = errors.New("object already closed")

	// ErrNotSupported is returned for operations a remote address space cannot
	// provide (seeking from the end, querying length) and for platform calls
	// that have no implementation on the running OS.
	ErrNotSupported = errors.New("operation not supported")

	// ErrAccessDenied is returned when a stream is used in a direction it was
	// not opened for.
	ErrAccessDenied = errors.New("access mode does not permit operation")

	// ErrWaitTimeout is returned by Platform.WaitThread when the timeout elapses.
	ErrWaitTimeout = errors.New("wait timed out")
)
