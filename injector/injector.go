// Package injector makes a process load a shared library by starting a
// remote thread on the OS loader entry point with the library path as its
// argument.
package injector

import (
	"errors"
	"fmt"
	"time"

	"patchlauncher/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// DefaultTimeout bounds the wait for the loader thread
const DefaultTimeout = 10 * time.Second

// Injector loads libraries into processes through a platform. It holds no
// per-injection state and may be shared.
type Injector struct {
	platform process.Platform
	timeout  time.Duration
	log      *logger.Logger
}

// New returns an injector that waits up to timeout for the loader thread.
// A non-positive timeout selects DefaultTimeout.
func New(platform process.Platform, timeout time.Duration) *Injector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Injector{
		platform: platform,
		timeout:  timeout,
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "injector")),
	}
}

// Inject loads libraryPath into the process behind h with DefaultTimeout
func Inject(platform process.Platform, h process.Handle, libraryPath string) error {
	return New(platform, DefaultTimeout).Inject(h, libraryPath)
}

// Request is one injection attempt. The handle stays owned by the caller.
type Request struct {
	LibraryPath string
	Process     process.Handle
}

// Run performs req
func (i *Injector) Run(req Request) error {
	return i.Inject(req.Process, req.LibraryPath)
}

func injectionError(reason process.InjectionReason, err error) error {
	return &process.InjectionError{Reason: reason, Err: err}
}

// Inject writes libraryPath into a fresh allocation in the target, runs the
// loader on it in a new remote thread and waits for that thread. The
// allocation is freed on every path. Each failing step is reported with its
// own process.InjectionReason.
func (i *Injector) Inject(h process.Handle, libraryPath string) (err error) {
	if libraryPath == "" {
		return &process.ArgumentError{Name: "library path", Value: `""`, Reason: "empty"}
	}
	if h == process.InvalidHandle {
		return &process.HandleError{Op: "Inject", Err: errors.New("invalid process handle")}
	}

	// LoadLibraryA takes a NUL terminated ANSI string
	path := append([]byte(libraryPath), 0)

	remote, err := i.platform.Allocate(h, process.ProcessMemorySize(len(path)))
	if err != nil {
		return injectionError(process.ReasonAllocate, err)
	}
	defer func() {
		if ferr := i.platform.Free(h, remote); ferr != nil {
			i.log.Warn("Failed to free remote path buffer at ", remote.ToString(), ": ", ferr)
			if err == nil {
				err = &process.HandleError{Op: "Free", Code: process.ErrorCode(ferr), Err: ferr}
			}
		}
	}()

	n, err := i.platform.WriteMemory(h, remote, path)
	if err != nil || n != len(path) {
		return injectionError(process.ReasonWrite, &process.MemoryAccessError{
			Op: "write", Address: remote, Requested: len(path), Transferred: n, Err: err,
		})
	}

	entry, err := i.platform.LoaderEntryPoint(h)
	if err != nil {
		return injectionError(process.ReasonResolve, err)
	}
	if entry == 0 {
		return injectionError(process.ReasonResolve, errors.New("loader entry point is null"))
	}

	thread, err := i.platform.CreateRemoteThread(h, entry, remote)
	if err != nil {
		return injectionError(process.ReasonCreateThread, err)
	}
	defer i.platform.CloseHandle(thread)

	i.log.Debugln("Loader thread started for", libraryPath)

	if err := i.platform.WaitThread(thread, i.timeout); err != nil {
		if errors.Is(err, process.ErrWaitTimeout) {
			return injectionError(process.ReasonTimeout, fmt.Errorf("loader thread did not finish within %s: %w", i.timeout, err))
		}
		return injectionError(process.ReasonWait, &process.HandleError{Op: "WaitThread", Code: process.ErrorCode(err), Err: err})
	}

	// The exit code is the low 32 bits of the module handle; zero means the
	// loader returned NULL
	code, err := i.platform.ThreadExitCode(thread)
	if err != nil {
		return injectionError(process.ReasonLoadFailed, err)
	}
	if code == 0 {
		return injectionError(process.ReasonLoadFailed, fmt.Errorf("loader returned NULL for %s", libraryPath))
	}

	i.log.Infoln("Injected", libraryPath)
	return nil
}
