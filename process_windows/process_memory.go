//go:build windows

package process_windows

import (
	"fmt"

	"patchlauncher/process"

	"golang.org/x/sys/windows"
)

func (p *WindowsPlatform) ReadMemory(h process.Handle, addr process.ProcessMemoryAddress, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	var bytesRead uintptr
	err := windows.ReadProcessMemory(windows.Handle(h), uintptr(addr), &buf[0], uintptr(len(buf)), &bytesRead)
	if err != nil {
		return int(bytesRead), fmt.Errorf("ReadProcessMemory: %w", err)
	}
	return int(bytesRead), nil
}

func (p *WindowsPlatform) WriteMemory(h process.Handle, addr process.ProcessMemoryAddress, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	var bytesWritten uintptr
	err := windows.WriteProcessMemory(windows.Handle(h), uintptr(addr), &data[0], uintptr(len(data)), &bytesWritten)
	if err != nil {
		return int(bytesWritten), fmt.Errorf("WriteProcessMemory: %w", err)
	}
	return int(bytesWritten), nil
}

func (p *WindowsPlatform) Allocate(h process.Handle, size process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	addr, _, err := procVirtualAllocEx.Call(
		uintptr(h),
		0,
		uintptr(size),
		uintptr(MEM_COMMIT|MEM_RESERVE),
		uintptr(PAGE_READWRITE),
	)
	if addr == 0 {
		return 0, fmt.Errorf("VirtualAllocEx: %w", err)
	}
	return process.ProcessMemoryAddress(addr), nil
}

func (p *WindowsPlatform) Free(h process.Handle, addr process.ProcessMemoryAddress) error {
	// MEM_RELEASE requires a zero size
	ret, _, err := procVirtualFreeEx.Call(uintptr(h), uintptr(addr), 0, uintptr(MEM_RELEASE))
	if ret == 0 {
		return fmt.Errorf("VirtualFreeEx: %w", err)
	}
	return nil
}
