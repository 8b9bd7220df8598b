package process

import (
	"sync"
)

// HandleCloser releases OS handles. Every Platform is a HandleCloser.
type HandleCloser interface {
	CloseHandle(h Handle) error
}

// OwnedHandle is the single owner of an OS handle. The handle is released
// exactly once, by the first call to Close. A borrowed OwnedHandle never
// releases the handle; its owner does.
type OwnedHandle struct {
	closer   HandleCloser
	handle   Handle
	borrowed bool
	closed   bool
	mu       sync.Mutex
}

// Own takes ownership of h.
func Own(closer HandleCloser, h Handle) *OwnedHandle {
	return &OwnedHandle{closer: closer, handle: h}
}

// Borrow wraps h without taking ownership.
func Borrow(h Handle) *OwnedHandle {
	return &OwnedHandle{handle: h, borrowed: true}
}

// Handle returns the wrapped handle, or ErrClosed after Close.
func (o *OwnedHandle) Handle() (Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return InvalidHandle, ErrClosed
	}
	return o.handle, nil
}

// Borrowed reports whether Close leaves the handle open.
func (o *OwnedHandle) Borrowed() bool {
	return o.borrowed
}

// Closed reports whether Close has been called.
func (o *OwnedHandle) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close releases the handle if owned. Calls after the first are no-ops.
func (o *OwnedHandle) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if o.borrowed || o.handle == InvalidHandle {
		return nil
	}
	if err := o.closer.CloseHandle(o.handle); err != nil {
		return &HandleError{Op: "CloseHandle", Err: err}
	}
	return nil
}
