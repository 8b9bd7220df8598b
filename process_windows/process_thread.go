//go:build windows

package process_windows

import (
	"fmt"
	"strconv"
	"time"
	"unsafe"

	"patchlauncher/process"

	"golang.org/x/sys/windows"
)

// LoaderEntryPoint returns LoadLibraryA as mapped in this process. kernel32
// has the same base in every process of one architecture during a boot
// session, but a WOW64 process maps the 32-bit kernel32 elsewhere, so a
// target whose bitness differs from ours is refused.
func (p *WindowsPlatform) LoaderEntryPoint(h process.Handle) (process.ProcessMemoryAddress, error) {
	self32, err := is32Bit(windows.CurrentProcess())
	if err != nil {
		return 0, fmt.Errorf("IsWow64Process self: %w", err)
	}
	target32, err := is32Bit(windows.Handle(h))
	if err != nil {
		return 0, fmt.Errorf("IsWow64Process target: %w", err)
	}
	if self32 != target32 {
		return 0, fmt.Errorf("target is %s, launcher is %s: %w", bitness(target32), bitness(self32), process.ErrNotSupported)
	}

	if err := procLoadLibraryA.Find(); err != nil {
		return 0, fmt.Errorf("resolve LoadLibraryA: %w", err)
	}
	return process.ProcessMemoryAddress(procLoadLibraryA.Addr()), nil
}

func (p *WindowsPlatform) CreateRemoteThread(h process.Handle, start, arg process.ProcessMemoryAddress) (process.Handle, error) {
	var threadID uint32
	thread, _, err := procCreateRemoteThread.Call(
		uintptr(h),
		0,
		0,
		uintptr(start),
		uintptr(arg),
		0,
		uintptr(unsafe.Pointer(&threadID)),
	)
	if thread == 0 {
		return process.InvalidHandle, fmt.Errorf("CreateRemoteThread: %w", err)
	}

	p.log.Debugln("CreateRemoteThread tid", threadID, "start", start.ToString())
	return process.Handle(thread), nil
}

func (p *WindowsPlatform) WaitThread(thread process.Handle, timeout time.Duration) error {
	event, err := windows.WaitForSingleObject(windows.Handle(thread), uint32(timeout.Milliseconds()))
	switch {
	case err != nil:
		return fmt.Errorf("WaitForSingleObject: %w", err)
	case event == waitTimeout:
		return process.ErrWaitTimeout
	case event != waitObject0:
		return fmt.Errorf("WaitForSingleObject: unexpected result 0x%x", event)
	}
	return nil
}

func (p *WindowsPlatform) ThreadExitCode(thread process.Handle) (uint32, error) {
	var code uint32
	ret, _, err := procGetExitCodeThread.Call(uintptr(thread), uintptr(unsafe.Pointer(&code)))
	if ret == 0 {
		return 0, fmt.Errorf("GetExitCodeThread: %w", err)
	}
	return code, nil
}

// is32Bit reports whether the process behind h runs 32-bit code
func is32Bit(h windows.Handle) (bool, error) {
	var wow bool
	if err := windows.IsWow64Process(h, &wow); err != nil {
		return false, err
	}
	if wow {
		return true, nil
	}

	// Not under WOW64, so the process has the OS's native bitness. A 32-bit
	// launcher that is not under WOW64 itself runs on a 32-bit OS.
	if strconv.IntSize == 64 {
		return false, nil
	}
	var selfWow bool
	if err := windows.IsWow64Process(windows.CurrentProcess(), &selfWow); err != nil {
		return false, err
	}
	return !selfWow, nil
}

func bitness(is32 bool) string {
	if is32 {
		return "32-bit"
	}
	return "64-bit"
}
