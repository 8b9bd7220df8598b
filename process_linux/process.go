//go:build linux

// Package process_linux implements process.Platform on Linux. Processes are
// started under ptrace so that they stop before their first instruction;
// resuming detaches the tracer.
package process_linux

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"patchlauncher/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"
)

type handleKind int

const (
	kindProcess handleKind = iota
	kindThread
)

type linuxHandle struct {
	kind handleKind
	pid  int
}

// LinuxPlatform implements the process.Platform interface for Linux systems
type LinuxPlatform struct {
	log     *logger.Logger
	tracer  tracer
	mu      sync.Mutex
	next    process.Handle
	handles map[process.Handle]linuxHandle
	traced  map[int]bool
}

var _ process.Platform = (*LinuxPlatform)(nil)

// New creates a new LinuxPlatform
func New() process.Platform {
	return &LinuxPlatform{
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "linux")),
		handles: make(map[process.Handle]linuxHandle),
		traced:  make(map[int]bool),
	}
}

func (p *LinuxPlatform) newHandle(kind handleKind, pid int) process.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	p.handles[p.next] = linuxHandle{kind: kind, pid: pid}
	return p.next
}

func (p *LinuxPlatform) lookup(h process.Handle, kind handleKind) (int, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	lh, ok := p.handles[h]
	if !ok || lh.kind != kind {
		return 0, false, fmt.Errorf("handle %d: %w", h, unix.EBADF)
	}
	return lh.pid, p.traced[lh.pid], nil
}

func (p *LinuxPlatform) lookupProcess(h process.Handle) (int, bool, error) {
	return p.lookup(h, kindProcess)
}

func (p *LinuxPlatform) CreateSuspended(path, commandLine, workDir string) (process.ProcessInformation, error) {
	argv := append([]string{path}, strings.Fields(commandLine)...)
	attr := &syscall.ProcAttr{
		Dir:   workDir,
		Env:   os.Environ(),
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd()},
		Sys:   &syscall.SysProcAttr{Ptrace: true},
	}

	var pid int
	err := p.tracer.do(func() error {
		var ferr error
		pid, ferr = syscall.ForkExec(path, argv, attr)
		if ferr != nil {
			return ferr
		}

		// The child stops with SIGTRAP once execve completes
		var ws unix.WaitStatus
		if _, werr := unix.Wait4(pid, &ws, 0, nil); werr != nil {
			return werr
		}
		if !ws.Stopped() {
			return fmt.Errorf("child %d did not stop after exec: status 0x%x", pid, uint32(ws))
		}
		return nil
	})
	if err != nil {
		return process.ProcessInformation{}, fmt.Errorf("fork/exec %s: %w", path, err)
	}

	p.mu.Lock()
	p.traced[pid] = true
	p.mu.Unlock()

	p.log.Debugln("Started traced pid", pid)

	// The main thread's tid equals the pid
	return process.ProcessInformation{
		PID:     process.ProcessID(pid),
		TID:     process.ThreadID(pid),
		Process: p.newHandle(kindProcess, pid),
		Thread:  p.newHandle(kindThread, pid),
	}, nil
}

func (p *LinuxPlatform) OpenProcess(pid process.ProcessID, rights process.AccessRights) (process.Handle, error) {
	procPath := fmt.Sprintf("/proc/%d", pid)
	if _, err := os.Stat(procPath); err != nil {
		return process.InvalidHandle, fmt.Errorf("process with PID %d does not exist: %w", pid, unix.ESRCH)
	}
	return p.newHandle(kindProcess, int(pid)), nil
}

func (p *LinuxPlatform) CloseHandle(h process.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.handles[h]; !ok {
		return fmt.Errorf("handle %d: %w", h, unix.EBADF)
	}
	delete(p.handles, h)
	return nil
}

// ResumeThread detaches from a stopped tracee. A tracee has a suspend count of
// one; an untraced thread reports zero
func (p *LinuxPlatform) ResumeThread(thread process.Handle) (uint32, error) {
	pid, traced, err := p.lookup(thread, kindThread)
	if err != nil {
		return 0, err
	}
	if !traced {
		return 0, nil
	}

	if err := p.tracer.do(func() error { return unix.PtraceDetach(pid) }); err != nil {
		return 0, fmt.Errorf("PTRACE_DETACH: %w", err)
	}

	p.mu.Lock()
	delete(p.traced, pid)
	p.mu.Unlock()

	go p.reap(pid)
	return 1, nil
}

// reap collects the exit status of a detached child so it does not linger as a zombie
func (p *LinuxPlatform) reap(pid int) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	p.log.Debugln("Reaped pid", pid, "exit", ws.ExitStatus())
}

func (p *LinuxPlatform) TerminateProcess(h process.Handle, exitCode uint32) error {
	pid, traced, err := p.lookupProcess(h)
	if err != nil {
		return err
	}

	// Linux has no caller-chosen exit code for a killed process
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("kill %d: %w", pid, err)
	}

	if traced {
		p.tracer.do(func() error {
			var ws unix.WaitStatus
			_, werr := unix.Wait4(pid, &ws, 0, nil)
			return werr
		})
		p.mu.Lock()
		delete(p.traced, pid)
		p.mu.Unlock()
	}
	return nil
}

// Remote allocation and remote threads have no portable Linux equivalent
// without code injection of our own; injection is a Windows feature.

func (p *LinuxPlatform) Allocate(h process.Handle, size process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	return 0, fmt.Errorf("remote allocation: %w", process.ErrNotSupported)
}

func (p *LinuxPlatform) Free(h process.Handle, addr process.ProcessMemoryAddress) error {
	return fmt.Errorf("remote free: %w", process.ErrNotSupported)
}

func (p *LinuxPlatform) LoaderEntryPoint(h process.Handle) (process.ProcessMemoryAddress, error) {
	return 0, fmt.Errorf("loader entry point: %w", process.ErrNotSupported)
}

func (p *LinuxPlatform) CreateRemoteThread(h process.Handle, start, arg process.ProcessMemoryAddress) (process.Handle, error) {
	return process.InvalidHandle, fmt.Errorf("remote thread: %w", process.ErrNotSupported)
}

func (p *LinuxPlatform) WaitThread(thread process.Handle, timeout time.Duration) error {
	return fmt.Errorf("wait thread: %w", process.ErrNotSupported)
}

func (p *LinuxPlatform) ThreadExitCode(thread process.Handle) (uint32, error) {
	return 0, fmt.Errorf("thread exit code: %w", process.ErrNotSupported)
}
