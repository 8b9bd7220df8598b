package process

// ProcessID represents a unique identifier for a process
type ProcessID uint32

// ThreadID represents a unique identifier for a thread
type ThreadID uint32

// Handle is an opaque OS handle to a process or thread. On Linux backends it
// is a backend defined token, not a file descriptor.
type Handle uintptr

// InvalidHandle is never returned by a successful open.
const InvalidHandle Handle = 0

// ProcessInformation is what a platform returns after creating a suspended process.
// The caller owns both handles.
type ProcessInformation struct {
	PID     ProcessID
	TID     ThreadID
	Process Handle
	Thread  Handle
}

// ProcessInfo contains basic information about a running process
type ProcessInfo struct {
	PID  ProcessID // Process ID
	Name string    // Executable name
	Exe  string    // Path to the executable
}
