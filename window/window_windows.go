//go:build windows

package window

import (
	"fmt"
	"syscall"
	"unsafe"

	"patchlauncher/process"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows = user32.NewProc("EnumWindows")
)

type search struct {
	pid  uint32
	hwnd win.HWND
}

var enumCallback = syscall.NewCallback(func(hwnd uintptr, lParam uintptr) uintptr {
	s := (*search)(unsafe.Pointer(lParam))
	h := win.HWND(hwnd)
	if !win.IsWindowVisible(h) {
		return 1
	}

	var pid uint32
	win.GetWindowThreadProcessId(h, &pid)
	if pid != s.pid {
		return 1
	}
	s.hwnd = h
	return 0
})

func renameOnce(pid process.ProcessID, title string) (bool, error) {
	s := &search{pid: uint32(pid)}
	procEnumWindows.Call(enumCallback, uintptr(unsafe.Pointer(s)))
	if s.hwnd == 0 {
		return false, nil
	}

	text, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return false, &process.ArgumentError{Name: "title", Value: title, Reason: err.Error()}
	}
	if !win.SetWindowText(s.hwnd, text) {
		err := windows.GetLastError()
		return false, &process.HandleError{Op: "SetWindowText", Code: process.ErrorCode(err), Err: fmt.Errorf("window %#x: %w", s.hwnd, err)}
	}
	return true, nil
}
