// Package memstream exposes the virtual address space of another process as
// an io.ReadWriteSeeker. The position is an absolute virtual address.
package memstream

import (
	"fmt"
	"io"
	"sync"

	"patchlauncher/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// BufferSize is the largest transfer issued to the OS per call
const BufferSize = 4096

// DefaultImageBase is the conventional load address of a 32-bit Windows
// executable. Patch addresses assume the image was not relocated.
const DefaultImageBase process.ProcessMemoryAddress = 0x400000

// Access selects the directions a stream may be used in
type Access int

const (
	Read Access = 1 << iota
	Write
	ReadWrite = Read | Write
)

func (a Access) String() string {
	switch a {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "read-write"
	}
	return fmt.Sprintf("Access(%d)", int(a))
}

// Rights returns the handle rights implied by a: VM operation always, plus VM
// read and VM write as requested
func (a Access) Rights() process.AccessRights {
	rights := process.AccessVMOperation
	if a&Read != 0 {
		rights |= process.AccessVMRead
	}
	if a&Write != 0 {
		rights |= process.AccessVMWrite
	}
	return rights
}

// Stream reads and writes remote memory in chunks of at most BufferSize.
// A Stream is not safe for concurrent use; the mutex only guards Close.
type Stream struct {
	platform process.Platform
	handle   *process.OwnedHandle
	access   Access
	position process.ProcessMemoryAddress
	readBuf  [BufferSize]byte
	writeBuf [BufferSize]byte
	log      *logger.Logger
	mu       sync.Mutex
}

var _ io.ReadWriteSeeker = (*Stream)(nil)
var _ io.Closer = (*Stream)(nil)

// Open opens pid with only the rights access needs. The stream owns the handle.
func Open(platform process.Platform, pid process.ProcessID, access Access) (*Stream, error) {
	if access&ReadWrite == 0 || access&^ReadWrite != 0 {
		return nil, &process.ArgumentError{Name: "access", Value: access, Reason: "must be read, write or both"}
	}

	h, err := platform.OpenProcess(pid, access.Rights())
	if err != nil {
		return nil, &process.HandleError{Op: "OpenProcess", Code: process.ErrorCode(err), Err: err}
	}
	if h == process.InvalidHandle {
		return nil, &process.HandleError{Op: "OpenProcess", Err: fmt.Errorf("invalid handle for pid %d", pid)}
	}
	return newStream(platform, process.Own(platform, h), access), nil
}

// New wraps an existing process handle. With leaveOpen the handle stays owned
// by the caller and Close does not release it.
func New(platform process.Platform, h process.Handle, access Access, leaveOpen bool) (*Stream, error) {
	if h == process.InvalidHandle {
		return nil, &process.HandleError{Op: "memstream.New", Err: fmt.Errorf("invalid handle")}
	}
	if access&ReadWrite == 0 || access&^ReadWrite != 0 {
		return nil, &process.ArgumentError{Name: "access", Value: access, Reason: "must be read, write or both"}
	}

	owned := process.Borrow(h)
	if !leaveOpen {
		owned = process.Own(platform, h)
	}
	return newStream(platform, owned, access), nil
}

func newStream(platform process.Platform, h *process.OwnedHandle, access Access) *Stream {
	return &Stream{
		platform: platform,
		handle:   h,
		access:   access,
		position: DefaultImageBase,
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "memstream")),
	}
}

// Position returns the current virtual address
func (s *Stream) Position() process.ProcessMemoryAddress {
	return s.position
}

// Access returns the directions the stream was opened for
func (s *Stream) Access() Access {
	return s.access
}

// Read fills p from the current address. Any failed or short OS transfer ends
// the read with a *process.MemoryAccessError.
func (s *Stream) Read(p []byte) (int, error) {
	if s.access&Read == 0 {
		return 0, process.ErrAccessDenied
	}
	h, err := s.handle.Handle()
	if err != nil {
		return 0, err
	}

	total := 0
	for total < len(p) {
		chunk := len(p) - total
		if chunk > BufferSize {
			chunk = BufferSize
		}

		n, err := s.platform.ReadMemory(h, s.position, s.readBuf[:chunk])
		if err != nil || n != chunk {
			s.log.Debugln("Read failed at", s.position.ToString(), "got", n, "of", chunk, err)
			return total, &process.MemoryAccessError{Op: "read", Address: s.position, Requested: chunk, Transferred: n, Err: err}
		}

		copy(p[total:], s.readBuf[:chunk])
		total += chunk
		s.position += process.ProcessMemoryAddress(chunk)
	}
	return total, nil
}

// Write stores p at the current address with the same all-or-error chunking as Read
func (s *Stream) Write(p []byte) (int, error) {
	if s.access&Write == 0 {
		return 0, process.ErrAccessDenied
	}
	h, err := s.handle.Handle()
	if err != nil {
		return 0, err
	}

	total := 0
	for total < len(p) {
		chunk := len(p) - total
		if chunk > BufferSize {
			chunk = BufferSize
		}

		copy(s.writeBuf[:chunk], p[total:total+chunk])
		n, err := s.platform.WriteMemory(h, s.position, s.writeBuf[:chunk])
		if err != nil || n != chunk {
			s.log.Debugln("Write failed at", s.position.ToString(), "put", n, "of", chunk, err)
			return total, &process.MemoryAccessError{Op: "write", Address: s.position, Requested: chunk, Transferred: n, Err: err}
		}

		total += chunk
		s.position += process.ProcessMemoryAddress(chunk)
	}
	return total, nil
}

// Seek moves to an absolute address (io.SeekStart) or relative to the current
// one (io.SeekCurrent). A remote address space has no end, so io.SeekEnd is
// not supported.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.handle.Closed() {
		return 0, process.ErrClosed
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = int64(s.position) + offset
	case io.SeekEnd:
		return 0, fmt.Errorf("seek from end: %w", process.ErrNotSupported)
	default:
		return 0, &process.ArgumentError{Name: "whence", Value: whence, Reason: "unknown origin"}
	}

	if target < 0 {
		return 0, &process.ArgumentError{Name: "offset", Value: offset, Reason: "address would be negative"}
	}
	s.position = process.ProcessMemoryAddress(target)
	return target, nil
}

// SeekAddress moves to an absolute address
func (s *Stream) SeekAddress(addr process.ProcessMemoryAddress) error {
	_, err := s.Seek(int64(addr), io.SeekStart)
	return err
}

// Len is not defined for a remote address space
func (s *Stream) Len() (int64, error) {
	return 0, fmt.Errorf("length of remote address space: %w", process.ErrNotSupported)
}

// Close releases the handle unless the stream was created with leaveOpen.
// Calls after the first are no-ops.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle.Close()
}
