//go:build linux

package process_linux

import (
	"runtime"
	"sync"
)

// tracer runs ptrace requests on a single locked OS thread. Linux binds a
// tracee to the thread that attached to it, so every ptrace call for a
// launched process has to come from the thread that started it.
type tracer struct {
	once     sync.Once
	requests chan func()
}

func (t *tracer) start() {
	t.requests = make(chan func())
	go func() {
		runtime.LockOSThread()
		// never unlocked: the thread dies with the goroutine, which only
		// happens at process exit
		for req := range t.requests {
			req()
		}
	}()
}

// do runs fn on the tracer thread and waits for it
func (t *tracer) do(fn func() error) error {
	t.once.Do(t.start)

	done := make(chan error, 1)
	t.requests <- func() {
		done <- fn()
	}
	return <-done
}
