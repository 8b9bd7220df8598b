// Package engine runs the full launch sequence: verify the executable
// against the version registry, start it suspended, patch it, optionally
// inject a library, resume it.
//
// A process that has been created is never abandoned while suspended. On a
// failure it is terminated or resumed according to the request's
// FailurePolicy before the error is returned.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"patchlauncher/injector"
	"patchlauncher/launcher"
	"patchlauncher/memstream"
	"patchlauncher/patcher"
	"patchlauncher/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// FailurePolicy decides what happens to a created process when a later step fails
type FailurePolicy int

const (
	// TerminateOnFailure kills the process; its memory may be half patched
	TerminateOnFailure FailurePolicy = iota
	// ResumeOnFailure lets the process run as it is
	ResumeOnFailure
)

// failureExitCode is the exit code given to a process terminated after a failed launch
const failureExitCode = 1

// Request describes one launch
type Request struct {
	ExecutablePath string
	CommandLine    string

	// Options selects the patches; every one is validated before the
	// process is created
	Options patcher.Options

	// LibraryPath is injected after patching when set. A failed injection
	// fails the launch only when RequireLibrary is set.
	LibraryPath    string
	RequireLibrary bool

	// VersionName, when set, must match the version found by content hash
	VersionName string

	FailurePolicy FailurePolicy
}

// Identity is what the OS reports about the launched process
type Identity struct {
	Name string
	Exe  string
}

// Result describes a launched, running process
type Result struct {
	PID          process.ProcessID
	TID          process.ThreadID
	Version      patcher.ClientVersion
	Patches      []patcher.Patch
	InjectionErr error
	Identity     Identity
}

// Engine launches clients. It is safe for concurrent launches; each launch
// owns its own handles and stream.
type Engine struct {
	platform process.Platform
	registry *patcher.Registry
	timeout  time.Duration
	identify func(process.ProcessID) (Identity, error)
	log      *logger.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithInjectionTimeout overrides injector.DefaultTimeout
func WithInjectionTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithIdentify replaces the process identity lookup
func WithIdentify(fn func(process.ProcessID) (Identity, error)) Option {
	return func(e *Engine) { e.identify = fn }
}

// New returns an engine using platform and the read-only registry
func New(platform process.Platform, registry *patcher.Registry, opts ...Option) *Engine {
	e := &Engine{
		platform: platform,
		registry: registry,
		timeout:  injector.DefaultTimeout,
		identify: lookupIdentity,
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func lookupIdentity(pid process.ProcessID) (Identity, error) {
	info, err := process.FindProcessByPID(pid)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Name: info.Name, Exe: info.Exe}, nil
}

// SelectVersion hashes path and returns the registered version for it
func (e *Engine) SelectVersion(path, name string) (patcher.ClientVersion, error) {
	hash, err := patcher.HashFile(path)
	if err != nil {
		return patcher.ClientVersion{}, &process.LaunchError{Path: path, Code: process.ErrorCode(err), Err: err}
	}

	v, ok := e.registry.ByHash(hash)
	if !ok || (name != "" && v.Name != name) {
		return patcher.ClientVersion{}, &process.VersionMismatchError{Path: path, Hash: hash, Requested: name}
	}
	return v, nil
}

// Launch runs the whole sequence synchronously. On success the process is
// running and its handles have been released.
func (e *Engine) Launch(req Request) (*Result, error) {
	version, err := e.SelectVersion(req.ExecutablePath, req.VersionName)
	if err != nil {
		return nil, err
	}

	plan, err := patcher.Plan(version, req.Options)
	if err != nil {
		return nil, err
	}

	sp, err := launcher.Start(e.platform, req.ExecutablePath, req.CommandLine, false)
	if err != nil {
		return nil, err
	}
	defer sp.Close()

	res := &Result{PID: sp.PID(), TID: sp.TID(), Version: version, Patches: plan}

	if err := e.patch(sp, version, plan); err != nil {
		return nil, e.abandon(sp, req.FailurePolicy, err)
	}

	if req.LibraryPath != "" {
		if err := e.inject(sp, req.LibraryPath); err != nil {
			if req.RequireLibrary {
				return nil, e.abandon(sp, req.FailurePolicy, err)
			}
			e.log.Warn("Injection failed, continuing without library: ", err)
			res.InjectionErr = err
		}
	}

	if err := sp.Resume(); err != nil {
		return nil, e.abandon(sp, TerminateOnFailure, err)
	}

	if id, err := e.identify(res.PID); err != nil {
		e.log.Debugln("Identity lookup failed for", res.PID, err)
	} else {
		res.Identity = id
	}

	e.log.Infoln("Launched", version.String(), "pid", res.PID)
	return res, nil
}

func (e *Engine) patch(sp *launcher.SuspendedProcess, version patcher.ClientVersion, plan []patcher.Patch) error {
	h, err := sp.ProcessHandle()
	if err != nil {
		return err
	}

	// The stream borrows the launcher's handle
	stream, err := memstream.New(e.platform, h, memstream.Write, true)
	if err != nil {
		return err
	}

	p := patcher.NewOwning(version, stream)
	defer p.Close()

	for _, patch := range plan {
		if err := p.Write(patch); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) inject(sp *launcher.SuspendedProcess, libraryPath string) error {
	h, err := sp.ProcessHandle()
	if err != nil {
		return err
	}
	return injector.New(e.platform, e.timeout).Run(injector.Request{LibraryPath: libraryPath, Process: h})
}

// abandon ends a failed launch so that no suspended process is left behind.
// A process that cannot be terminated is resumed instead. cause is always
// returned; cleanup failures are joined to it.
func (e *Engine) abandon(sp *launcher.SuspendedProcess, policy FailurePolicy, cause error) error {
	e.log.Warn("Launch of pid ", sp.PID(), " failed: ", cause)

	var resumeErr error
	if policy == ResumeOnFailure {
		if resumeErr = sp.Resume(); resumeErr == nil {
			return cause
		}
		e.log.Warn("Resume after failure failed, terminating: ", resumeErr)
	}

	err := sp.Terminate(failureExitCode)
	if err == nil || errors.Is(err, process.ErrClosed) {
		return errors.Join(cause, resumeErr)
	}
	terminateErr := fmt.Errorf("terminate pid %d: %w", sp.PID(), err)

	if !sp.Suspended() {
		return errors.Join(cause, resumeErr, terminateErr)
	}
	e.log.Warn("Terminate failed, resuming pid ", sp.PID(), " unpatched: ", err)
	if rerr := sp.Resume(); rerr != nil {
		return errors.Join(cause, resumeErr, terminateErr, fmt.Errorf("resume pid %d: %w", sp.PID(), rerr))
	}
	return errors.Join(cause, resumeErr, terminateErr)
}

// Outcome is the single value delivered by LaunchAsync
type Outcome struct {
	Result *Result
	Err    error
}

// LaunchAsync runs Launch on its own goroutine. The channel receives exactly
// one Outcome. Cancelling ctx does not interrupt a launch in progress, since
// a suspended process may only be finished or terminated; it only stops a
// launch that has not started yet.
func (e *Engine) LaunchAsync(ctx context.Context, req Request) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		if err := ctx.Err(); err != nil {
			out <- Outcome{Err: err}
			return
		}
		res, err := e.Launch(req)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}
