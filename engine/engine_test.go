package engine

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"patchlauncher/patcher"
	"patchlauncher/process"
	"patchlauncher/process_mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firstPID is the pid the mock gives its first process
const firstPID process.ProcessID = 4004

// client writes a fake executable and returns a registry that knows it as Version741
func client(t *testing.T) (string, *patcher.Registry) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.exe")
	require.NoError(t, os.WriteFile(path, []byte("MZ fake client"), 0o755))

	hash, err := patcher.HashFile(path)
	require.NoError(t, err)

	v := patcher.Version741
	v.Hash = hash
	registry, err := patcher.NewRegistry(v)
	require.NoError(t, err)
	return path, registry
}

func newEngine(mock *process_mock.Platform, registry *patcher.Registry, opts ...Option) *Engine {
	opts = append([]Option{WithIdentify(func(process.ProcessID) (Identity, error) {
		return Identity{Name: "client.exe"}, nil
	})}, opts...)
	return New(mock, registry, opts...)
}

func TestLaunchPatchesAndResumes(t *testing.T) {
	mock := process_mock.New()
	path, registry := client(t)

	res, err := newEngine(mock, registry).Launch(Request{
		ExecutablePath: path,
		Options: patcher.Options{
			Address:           net.IPv4(127, 0, 0, 1),
			Port:              7171,
			SkipIntro:         true,
			MultipleInstances: true,
		},
	})
	require.NoError(t, err)

	addrs := patcher.Version741.Addresses
	assert.Equal(t, []byte{0x6A, 0x01, 0x6A, 0x00, 0x6A, 0x00, 0x6A, 0x7F}, mock.Bytes(res.PID, addrs.Hostname, 8))
	assert.Equal(t, []byte{0x03, 0x1C}, mock.Bytes(res.PID, addrs.Port, 2))
	for _, patch := range res.Patches {
		assert.Equal(t, patch.Bytes, mock.Bytes(res.PID, patch.Address, len(patch.Bytes)), patch.Name)
	}

	p := mock.Process(res.PID)
	assert.Equal(t, uint32(0), p.Main.SuspendCount)
	assert.False(t, p.Terminated)
	assert.Zero(t, mock.OpenHandles())
	assert.Equal(t, "Version741", res.Version.Name)
	assert.Len(t, res.Patches, 5)
	assert.Equal(t, "client.exe", res.Identity.Name)
	assert.NoError(t, res.InjectionErr)
}

func TestLaunchUnknownHash(t *testing.T) {
	mock := process_mock.New()
	path, _ := client(t)

	_, err := newEngine(mock, patcher.DefaultRegistry()).Launch(Request{ExecutablePath: path})

	var mismatch *process.VersionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, path, mismatch.Path)
	assert.Zero(t, mock.ProcessCount())
}

func TestLaunchVersionNameMustMatchHash(t *testing.T) {
	mock := process_mock.New()
	path, registry := client(t)

	_, err := newEngine(mock, registry).Launch(Request{ExecutablePath: path, VersionName: "Version760"})

	var mismatch *process.VersionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "Version760", mismatch.Requested)
	assert.Zero(t, mock.ProcessCount())
}

func TestLaunchMissingExecutable(t *testing.T) {
	mock := process_mock.New()
	_, registry := client(t)

	_, err := newEngine(mock, registry).Launch(Request{ExecutablePath: filepath.Join(t.TempDir(), "missing.exe")})

	var launchErr *process.LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Zero(t, mock.ProcessCount())
}

func TestLaunchUnavailablePatchStartsNothing(t *testing.T) {
	mock := process_mock.New()
	path, registry := client(t)

	_, err := newEngine(mock, registry).Launch(Request{
		ExecutablePath: path,
		Options:        patcher.Options{HideWalls: true},
	})
	require.ErrorIs(t, err, patcher.ErrPatchUnavailable)
	assert.Zero(t, mock.ProcessCount())
}

func TestPatchFailureTerminates(t *testing.T) {
	mock := process_mock.New()
	mock.WriteErr = errors.New("write denied")
	path, registry := client(t)

	res, err := newEngine(mock, registry).Launch(Request{
		ExecutablePath: path,
		Options:        patcher.Options{SkipIntro: true},
	})
	require.Nil(t, res)

	var memErr *process.MemoryAccessError
	require.ErrorAs(t, err, &memErr)
	assert.Equal(t, patcher.Version741.Addresses.SkipIntro, memErr.Address)

	require.Equal(t, 1, mock.ProcessCount())
	p := mock.Process(firstPID)
	require.NotNil(t, p)
	assert.True(t, p.Terminated)
	assert.Equal(t, uint32(failureExitCode), p.ExitCode)
	assert.Zero(t, mock.OpenHandles())
}

func TestPatchFailureResumePolicy(t *testing.T) {
	mock := process_mock.New()
	mock.ShortWrite = 1
	path, registry := client(t)

	_, err := newEngine(mock, registry).Launch(Request{
		ExecutablePath: path,
		Options:        patcher.Options{MultipleInstances: true},
		FailurePolicy:  ResumeOnFailure,
	})
	var memErr *process.MemoryAccessError
	require.ErrorAs(t, err, &memErr)
	assert.Equal(t, 1, memErr.Transferred)

	p := mock.Process(firstPID)
	require.NotNil(t, p)
	assert.False(t, p.Terminated)
	assert.Equal(t, uint32(0), p.Main.SuspendCount)
	assert.Zero(t, mock.OpenHandles())
}

func TestOptionalInjectionFailureResumes(t *testing.T) {
	mock := process_mock.New()
	mock.FailLoad = true
	path, registry := client(t)

	res, err := newEngine(mock, registry).Launch(Request{
		ExecutablePath: path,
		Options:        patcher.Options{SkipIntro: true},
		LibraryPath:    `C:\tools\overlay.dll`,
	})
	require.NoError(t, err)

	var injErr *process.InjectionError
	require.ErrorAs(t, res.InjectionErr, &injErr)
	assert.Equal(t, process.ReasonLoadFailed, injErr.Reason)

	p := mock.Process(res.PID)
	assert.False(t, p.Terminated)
	assert.Equal(t, uint32(0), p.Main.SuspendCount)
	assert.Zero(t, mock.OpenHandles())
}

func TestRequiredInjectionFailureTerminates(t *testing.T) {
	mock := process_mock.New()
	mock.WaitTimeout = true
	path, registry := client(t)

	_, err := newEngine(mock, registry, WithInjectionTimeout(time.Millisecond)).Launch(Request{
		ExecutablePath: path,
		LibraryPath:    `C:\tools\overlay.dll`,
		RequireLibrary: true,
	})
	require.ErrorIs(t, err, process.ErrWaitTimeout)

	var injErr *process.InjectionError
	require.ErrorAs(t, err, &injErr)
	assert.Equal(t, process.ReasonTimeout, injErr.Reason)

	p := mock.Process(firstPID)
	require.NotNil(t, p)
	assert.True(t, p.Terminated)
	assert.Zero(t, mock.OpenHandles())
}

func TestResumeFailureTerminates(t *testing.T) {
	mock := process_mock.New()
	mock.ResumeErr = errors.New("resume refused")
	path, registry := client(t)

	_, err := newEngine(mock, registry).Launch(Request{ExecutablePath: path, FailurePolicy: ResumeOnFailure})

	var handleErr *process.HandleError
	require.ErrorAs(t, err, &handleErr)
	assert.Equal(t, "ResumeThread", handleErr.Op)
	assert.True(t, mock.Process(firstPID).Terminated)
	assert.Zero(t, mock.OpenHandles())
}

func TestIdentityFailureIsNotFatal(t *testing.T) {
	mock := process_mock.New()
	path, registry := client(t)

	e := New(mock, registry, WithIdentify(func(process.ProcessID) (Identity, error) {
		return Identity{}, errors.New("no such process")
	}))
	res, err := e.Launch(Request{ExecutablePath: path})
	require.NoError(t, err)
	assert.Empty(t, res.Identity.Name)
}

func TestLaunchAsync(t *testing.T) {
	mock := process_mock.New()
	path, registry := client(t)

	out := newEngine(mock, registry).LaunchAsync(context.Background(), Request{ExecutablePath: path})
	select {
	case o := <-out:
		require.NoError(t, o.Err)
		assert.Equal(t, uint32(0), mock.Process(o.Result.PID).Main.SuspendCount)
	case <-time.After(5 * time.Second):
		t.Fatal("no outcome")
	}
}

func TestLaunchAsyncCancelledBeforeStart(t *testing.T) {
	mock := process_mock.New()
	path, registry := client(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := <-newEngine(mock, registry).LaunchAsync(ctx, Request{ExecutablePath: path})
	require.ErrorIs(t, o.Err, context.Canceled)
	assert.Zero(t, mock.ProcessCount())
}

func TestTerminateFailureFallsBackToResume(t *testing.T) {
	mock := process_mock.New()
	mock.WriteErr = errors.New("write denied")
	mock.TerminateErr = errors.New("terminate denied")
	path, registry := client(t)

	_, err := newEngine(mock, registry).Launch(Request{
		ExecutablePath: path,
		Options:        patcher.Options{SkipIntro: true},
	})

	var memErr *process.MemoryAccessError
	require.ErrorAs(t, err, &memErr)
	var handleErr *process.HandleError
	require.ErrorAs(t, err, &handleErr)
	assert.Equal(t, "TerminateProcess", handleErr.Op)

	p := mock.Process(firstPID)
	require.NotNil(t, p)
	assert.False(t, p.Terminated)
	assert.Equal(t, uint32(0), p.Main.SuspendCount)
	assert.Zero(t, mock.OpenHandles())
}

func TestTerminateAndResumeFailureReportsBoth(t *testing.T) {
	mock := process_mock.New()
	mock.WriteErr = errors.New("write denied")
	mock.TerminateErr = errors.New("terminate denied")
	mock.ResumeErr = errors.New("resume denied")
	path, registry := client(t)

	_, err := newEngine(mock, registry).Launch(Request{
		ExecutablePath: path,
		Options:        patcher.Options{SkipIntro: true},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "terminate denied")
	assert.ErrorContains(t, err, "resume denied")
	assert.Zero(t, mock.OpenHandles())
}

func TestForeignArchitectureInjectionIsOptional(t *testing.T) {
	mock := process_mock.New()
	mock.ForeignArch = true
	path, registry := client(t)

	res, err := newEngine(mock, registry).Launch(Request{
		ExecutablePath: path,
		LibraryPath:    `C:\tools\overlay.dll`,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, res.InjectionErr, process.ErrNotSupported)
	assert.Equal(t, uint32(0), mock.Process(res.PID).Main.SuspendCount)
}
