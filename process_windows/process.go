//go:build windows

// Package process_windows implements process.Platform on the Win32 API.
package process_windows

import (
	"fmt"
	"unsafe"

	"patchlauncher/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

var (
	modkernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocEx     = modkernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx      = modkernel32.NewProc("VirtualFreeEx")
	procCreateRemoteThread = modkernel32.NewProc("CreateRemoteThread")
	procGetExitCodeThread  = modkernel32.NewProc("GetExitCodeThread")
	procLoadLibraryA       = modkernel32.NewProc("LoadLibraryA")
)

const (
	PROCESS_CREATE_THREAD     = 0x0002
	PROCESS_VM_OPERATION      = 0x0008
	PROCESS_VM_READ           = 0x0010
	PROCESS_VM_WRITE          = 0x0020
	PROCESS_QUERY_INFORMATION = 0x0400

	MEM_COMMIT     = 0x1000
	MEM_RESERVE    = 0x2000
	MEM_RELEASE    = 0x8000
	PAGE_READWRITE = 0x04

	waitObject0 = 0x00000000
	waitTimeout = 0x00000102
)

// WindowsPlatform implements process.Platform for Windows systems
type WindowsPlatform struct {
	log *logger.Logger
}

var _ process.Platform = (*WindowsPlatform)(nil)

// New creates a new WindowsPlatform
func New() process.Platform {
	return &WindowsPlatform{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "win32")),
	}
}

func nativeRights(rights process.AccessRights) uint32 {
	var native uint32
	if rights.Has(process.AccessVMOperation) {
		native |= PROCESS_VM_OPERATION
	}
	if rights.Has(process.AccessVMRead) {
		native |= PROCESS_VM_READ
	}
	if rights.Has(process.AccessVMWrite) {
		native |= PROCESS_VM_WRITE
	}
	if rights.Has(process.AccessCreateThread) {
		native |= PROCESS_CREATE_THREAD
	}
	if rights.Has(process.AccessQueryInformation) {
		native |= PROCESS_QUERY_INFORMATION
	}
	return native
}

func (p *WindowsPlatform) CreateSuspended(path, commandLine, workDir string) (process.ProcessInformation, error) {
	appName, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return process.ProcessInformation{}, err
	}

	// argv[0] is the quoted executable path, as a shell would pass it
	line := windows.EscapeArg(path)
	if commandLine != "" {
		line += " " + commandLine
	}
	cmdLine, err := windows.UTF16PtrFromString(line)
	if err != nil {
		return process.ProcessInformation{}, err
	}

	var dir *uint16
	if workDir != "" {
		if dir, err = windows.UTF16PtrFromString(workDir); err != nil {
			return process.ProcessInformation{}, err
		}
	}

	si := windows.StartupInfo{}
	si.Cb = uint32(unsafe.Sizeof(si))
	pi := windows.ProcessInformation{}

	err = windows.CreateProcess(appName, cmdLine, nil, nil, false, windows.CREATE_SUSPENDED, nil, dir, &si, &pi)
	if err != nil {
		return process.ProcessInformation{}, fmt.Errorf("CreateProcess: %w", err)
	}

	p.log.Debugln("CreateProcess suspended pid", pi.ProcessId, "tid", pi.ThreadId)

	return process.ProcessInformation{
		PID:     process.ProcessID(pi.ProcessId),
		TID:     process.ThreadID(pi.ThreadId),
		Process: process.Handle(pi.Process),
		Thread:  process.Handle(pi.Thread),
	}, nil
}

func (p *WindowsPlatform) OpenProcess(pid process.ProcessID, rights process.AccessRights) (process.Handle, error) {
	h, err := windows.OpenProcess(nativeRights(rights), false, uint32(pid))
	if err != nil {
		return process.InvalidHandle, fmt.Errorf("OpenProcess: %w", err)
	}
	if h == 0 {
		return process.InvalidHandle, fmt.Errorf("OpenProcess: %w", windows.ERROR_INVALID_HANDLE)
	}
	return process.Handle(h), nil
}

func (p *WindowsPlatform) CloseHandle(h process.Handle) error {
	if err := windows.CloseHandle(windows.Handle(h)); err != nil {
		return fmt.Errorf("CloseHandle: %w", err)
	}
	return nil
}

func (p *WindowsPlatform) ResumeThread(thread process.Handle) (uint32, error) {
	// x/sys/windows turns the (DWORD)-1 sentinel into err
	prev, err := windows.ResumeThread(windows.Handle(thread))
	if err != nil {
		return 0, fmt.Errorf("ResumeThread: %w", err)
	}
	return prev, nil
}

func (p *WindowsPlatform) TerminateProcess(h process.Handle, exitCode uint32) error {
	if err := windows.TerminateProcess(windows.Handle(h), exitCode); err != nil {
		return fmt.Errorf("TerminateProcess: %w", err)
	}
	return nil
}
