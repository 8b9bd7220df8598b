// Package process_mock is an in-memory process.Platform. It models suspended
// processes, sparse remote memory, handle lifetimes, remote allocations and
// remote threads, and lets tests inject a failure at every step.
package process_mock

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"patchlauncher/process"
)

// LoaderAddress is the address LoaderEntryPoint reports.
const LoaderAddress process.ProcessMemoryAddress = 0x7FF80000

type handleKind int

const (
	kindProcess handleKind = iota
	kindThread
)

type handleEntry struct {
	kind   handleKind
	pid    process.ProcessID
	thread *Thread
	rights process.AccessRights
	closed bool
}

// Thread is a main or remote thread of a mock process.
type Thread struct {
	TID          process.ThreadID
	SuspendCount uint32
	Start        process.ProcessMemoryAddress
	Arg          process.ProcessMemoryAddress
	Remote       bool
}

// Process is the state of one mock process.
type Process struct {
	PID         process.ProcessID
	Path        string
	CommandLine string
	WorkDir     string
	Main        *Thread
	Remote      []*Thread
	Terminated  bool
	ExitCode    uint32

	memory      map[process.ProcessMemoryAddress]byte
	allocations map[process.ProcessMemoryAddress]process.ProcessMemorySize
	nextAlloc   process.ProcessMemoryAddress
	frees       int
}

// Platform implements process.Platform in memory. The exported fields inject
// failures; they must be set before the platform is used.
type Platform struct {
	CreateErr       error
	OpenErr         error
	ReadErr         error
	WriteErr        error
	ResumeErr       error
	TerminateErr    error
	AllocateErr     error
	FreeErr         error
	ResolveErr      error
	CreateThreadErr error

	// ShortRead and ShortWrite cap the bytes transferred per call when non-zero
	ShortRead  int
	ShortWrite int

	// InitialSuspendCount is the suspend count of a new main thread, 1 when zero
	InitialSuspendCount uint32

	// WaitTimeout makes WaitThread report a timeout
	WaitTimeout bool

	// RemoteExitCode is the exit code of remote threads, 1 when zero.
	// Set FailLoad to report 0 as LoadLibraryA does on failure.
	RemoteExitCode uint32
	FailLoad       bool

	// ForeignArch makes every process differ in bitness from the caller, so
	// LoaderEntryPoint cannot resolve a loader for it
	ForeignArch bool

	// WaitErr makes WaitThread fail with an error other than a timeout
	WaitErr error

	mu         sync.Mutex
	nextHandle process.Handle
	nextPID    process.ProcessID
	handles    map[process.Handle]*handleEntry
	processes  map[process.ProcessID]*Process
	reads      int
	writes     int
}

// New returns an empty mock platform
func New() *Platform {
	return &Platform{
		nextHandle: 0x100,
		nextPID:    4000,
		handles:    make(map[process.Handle]*handleEntry),
		processes:  make(map[process.ProcessID]*Process),
	}
}

var _ process.Platform = (*Platform)(nil)

func (m *Platform) newHandle(e *handleEntry) process.Handle {
	m.nextHandle += 4
	m.handles[m.nextHandle] = e
	return m.nextHandle
}

func (m *Platform) entry(h process.Handle, kind handleKind) (*handleEntry, error) {
	e, ok := m.handles[h]
	if !ok || e.closed {
		return nil, syscall.Errno(6) // ERROR_INVALID_HANDLE
	}
	if e.kind != kind {
		return nil, syscall.Errno(6)
	}
	return e, nil
}

func (m *Platform) newProcess(path, commandLine, workDir string) *Process {
	m.nextPID += 4
	suspend := m.InitialSuspendCount
	if suspend == 0 {
		suspend = 1
	}
	p := &Process{
		PID:         m.nextPID,
		Path:        path,
		CommandLine: commandLine,
		WorkDir:     workDir,
		Main:        &Thread{TID: process.ThreadID(m.nextPID + 1), SuspendCount: suspend},
		memory:      make(map[process.ProcessMemoryAddress]byte),
		allocations: make(map[process.ProcessMemoryAddress]process.ProcessMemorySize),
		nextAlloc:   0x10000000,
	}
	m.processes[p.PID] = p
	return p
}

// Spawn adds a running process without going through CreateSuspended
func (m *Platform) Spawn(path string) process.ProcessID {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.newProcess(path, "", "")
	p.Main.SuspendCount = 0
	return p.PID
}

func (m *Platform) CreateSuspended(path, commandLine, workDir string) (process.ProcessInformation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return process.ProcessInformation{}, m.CreateErr
	}
	if _, err := os.Stat(path); err != nil {
		return process.ProcessInformation{}, fmt.Errorf("create %s: %w", path, syscall.Errno(2)) // ERROR_FILE_NOT_FOUND
	}

	p := m.newProcess(path, commandLine, workDir)
	return process.ProcessInformation{
		PID:     p.PID,
		TID:     p.Main.TID,
		Process: m.newHandle(&handleEntry{kind: kindProcess, pid: p.PID, rights: ^process.AccessRights(0)}),
		Thread:  m.newHandle(&handleEntry{kind: kindThread, pid: p.PID, thread: p.Main}),
	}, nil
}

func (m *Platform) OpenProcess(pid process.ProcessID, rights process.AccessRights) (process.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OpenErr != nil {
		return process.InvalidHandle, m.OpenErr
	}
	if _, ok := m.processes[pid]; !ok {
		return process.InvalidHandle, syscall.Errno(87) // ERROR_INVALID_PARAMETER
	}
	return m.newHandle(&handleEntry{kind: kindProcess, pid: pid, rights: rights}), nil
}

func (m *Platform) CloseHandle(h process.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.handles[h]
	if !ok || e.closed {
		return syscall.Errno(6)
	}
	e.closed = true
	return nil
}

func (m *Platform) ReadMemory(h process.Handle, addr process.ProcessMemoryAddress, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entry(h, kindProcess)
	if err != nil {
		return 0, err
	}
	if !e.rights.Has(process.AccessVMRead) {
		return 0, syscall.Errno(5) // ERROR_ACCESS_DENIED
	}
	m.reads++
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}

	n := len(buf)
	if m.ShortRead > 0 && n > m.ShortRead {
		n = m.ShortRead
	}
	p := m.processes[e.pid]
	for i := 0; i < n; i++ {
		buf[i] = p.memory[addr+process.ProcessMemoryAddress(i)]
	}
	return n, nil
}

func (m *Platform) WriteMemory(h process.Handle, addr process.ProcessMemoryAddress, data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entry(h, kindProcess)
	if err != nil {
		return 0, err
	}
	if !e.rights.Has(process.AccessVMWrite) {
		return 0, syscall.Errno(5)
	}
	m.writes++
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}

	n := len(data)
	if m.ShortWrite > 0 && n > m.ShortWrite {
		n = m.ShortWrite
	}
	p := m.processes[e.pid]
	for i := 0; i < n; i++ {
		p.memory[addr+process.ProcessMemoryAddress(i)] = data[i]
	}
	return n, nil
}

func (m *Platform) ResumeThread(thread process.Handle) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entry(thread, kindThread)
	if err != nil {
		return 0, err
	}
	if m.ResumeErr != nil {
		return 0, m.ResumeErr
	}
	prev := e.thread.SuspendCount
	if prev > 0 {
		e.thread.SuspendCount--
	}
	return prev, nil
}

func (m *Platform) TerminateProcess(h process.Handle, exitCode uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entry(h, kindProcess)
	if err != nil {
		return err
	}
	if m.TerminateErr != nil {
		return m.TerminateErr
	}
	p := m.processes[e.pid]
	p.Terminated = true
	p.ExitCode = exitCode
	return nil
}

func (m *Platform) Allocate(h process.Handle, size process.ProcessMemorySize) (process.ProcessMemoryAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entry(h, kindProcess)
	if err != nil {
		return 0, err
	}
	if m.AllocateErr != nil {
		return 0, m.AllocateErr
	}
	p := m.processes[e.pid]
	addr := p.nextAlloc
	p.allocations[addr] = size
	p.nextAlloc += 0x10000
	return addr, nil
}

func (m *Platform) Free(h process.Handle, addr process.ProcessMemoryAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entry(h, kindProcess)
	if err != nil {
		return err
	}
	p := m.processes[e.pid]
	p.frees++
	if m.FreeErr != nil {
		return m.FreeErr
	}
	if _, ok := p.allocations[addr]; !ok {
		return errors.New("free of unallocated address " + addr.ToString())
	}
	delete(p.allocations, addr)
	return nil
}

func (m *Platform) LoaderEntryPoint(h process.Handle) (process.ProcessMemoryAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.entry(h, kindProcess); err != nil {
		return 0, err
	}
	if m.ResolveErr != nil {
		return 0, m.ResolveErr
	}
	if m.ForeignArch {
		return 0, fmt.Errorf("loader of a process with another architecture: %w", process.ErrNotSupported)
	}
	return LoaderAddress, nil
}

func (m *Platform) CreateRemoteThread(h process.Handle, start, arg process.ProcessMemoryAddress) (process.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.entry(h, kindProcess)
	if err != nil {
		return process.InvalidHandle, err
	}
	if m.CreateThreadErr != nil {
		return process.InvalidHandle, m.CreateThreadErr
	}
	p := m.processes[e.pid]
	t := &Thread{TID: process.ThreadID(p.PID) + process.ThreadID(len(p.Remote)+2), Start: start, Arg: arg, Remote: true}
	p.Remote = append(p.Remote, t)
	return m.newHandle(&handleEntry{kind: kindThread, pid: p.PID, thread: t}), nil
}

func (m *Platform) WaitThread(thread process.Handle, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.entry(thread, kindThread); err != nil {
		return err
	}
	if m.WaitErr != nil {
		return m.WaitErr
	}
	if m.WaitTimeout {
		return process.ErrWaitTimeout
	}
	return nil
}

func (m *Platform) ThreadExitCode(thread process.Handle) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.entry(thread, kindThread); err != nil {
		return 0, err
	}
	if m.FailLoad {
		return 0, nil
	}
	if m.RemoteExitCode == 0 {
		return 1, nil
	}
	return m.RemoteExitCode, nil
}
