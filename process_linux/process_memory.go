//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"patchlauncher/process"

	"golang.org/x/sys/unix"
)

// vmTransfer moves len(local) bytes between local and remote with
// process_vm_readv or process_vm_writev, selected by trap
func vmTransfer(trap uintptr, pid int, local []byte, remote process.ProcessMemoryAddress) (int, error) {
	localIov := unix.Iovec{Base: &local[0], Len: uint64(len(local))}
	remoteIov := unix.RemoteIovec{Base: uintptr(remote), Len: len(local)}

	n, _, errno := unix.Syscall6(trap,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)), 1,
		uintptr(unsafe.Pointer(&remoteIov)), 1,
		0)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// ReadMemory reads buf from addr. A stopped tracee is read with
// PTRACE_PEEKDATA on the tracer thread, a running process with process_vm_readv.
func (p *LinuxPlatform) ReadMemory(h process.Handle, addr process.ProcessMemoryAddress, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	pid, traced, err := p.lookupProcess(h)
	if err != nil {
		return 0, err
	}

	if !traced {
		n, err := vmTransfer(unix.SYS_PROCESS_VM_READV, pid, buf, addr)
		if err != nil {
			return n, fmt.Errorf("process_vm_readv %d at %s: %w", pid, addr.ToString(), err)
		}
		return n, nil
	}

	var n int
	err = p.tracer.do(func() (perr error) {
		n, perr = unix.PtracePeekData(pid, uintptr(addr), buf)
		return perr
	})
	if err != nil {
		return n, fmt.Errorf("PTRACE_PEEKDATA %d at %s: %w", pid, addr.ToString(), err)
	}
	return n, nil
}

// WriteMemory writes data at addr. process_vm_writev honours page
// protections, so the read-only code pages of a stopped tracee are written
// with PTRACE_POKEDATA.
func (p *LinuxPlatform) WriteMemory(h process.Handle, addr process.ProcessMemoryAddress, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	pid, traced, err := p.lookupProcess(h)
	if err != nil {
		return 0, err
	}

	if !traced {
		n, err := vmTransfer(unix.SYS_PROCESS_VM_WRITEV, pid, data, addr)
		if err != nil {
			return n, fmt.Errorf("process_vm_writev %d at %s: %w", pid, addr.ToString(), err)
		}
		return n, nil
	}

	var n int
	err = p.tracer.do(func() (perr error) {
		n, perr = unix.PtracePokeData(pid, uintptr(addr), data)
		return perr
	})
	if err != nil {
		return n, fmt.Errorf("PTRACE_POKEDATA %d at %s: %w", pid, addr.ToString(), err)
	}
	return n, nil
}
