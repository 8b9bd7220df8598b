package process_mock

import (
	"patchlauncher/process"
)

// Process returns the state of pid, or nil
func (m *Platform) Process(pid process.ProcessID) *Process {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processes[pid]
}

// ProcessCount returns the number of processes ever created or spawned
func (m *Platform) ProcessCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processes)
}

// Bytes returns size bytes of pid's memory at addr. Bytes never written read as zero.
func (m *Platform) Bytes(pid process.ProcessID, addr process.ProcessMemoryAddress, size int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]byte, size)
	p, ok := m.processes[pid]
	if !ok {
		return out
	}
	for i := range out {
		out[i] = p.memory[addr+process.ProcessMemoryAddress(i)]
	}
	return out
}

// Written reports how many distinct addresses of pid have been written
func (m *Platform) Written(pid process.ProcessID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.processes[pid]; ok {
		return len(p.memory)
	}
	return 0
}

// Poke sets memory of pid directly, bypassing handles
func (m *Platform) Poke(pid process.ProcessID, addr process.ProcessMemoryAddress, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.processes[pid]
	for i, b := range data {
		p.memory[addr+process.ProcessMemoryAddress(i)] = b
	}
}

// OpenHandles returns the number of handles not yet closed
func (m *Platform) OpenHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.handles {
		if !e.closed {
			n++
		}
	}
	return n
}

// HandleClosed reports whether h has been closed
func (m *Platform) HandleClosed(h process.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.handles[h]
	return ok && e.closed
}

// HandleRights returns the rights h was opened with
func (m *Platform) HandleRights(h process.Handle) process.AccessRights {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.handles[h]; ok {
		return e.rights
	}
	return 0
}

// Allocations returns the number of live remote allocations in pid
func (m *Platform) Allocations(pid process.ProcessID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.processes[pid]; ok {
		return len(p.allocations)
	}
	return 0
}

// Frees returns how many times Free was called for pid
func (m *Platform) Frees(pid process.ProcessID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.processes[pid]; ok {
		return p.frees
	}
	return 0
}

// Calls returns the number of ReadMemory and WriteMemory calls that reached the backend
func (m *Platform) Calls() (reads, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.writes
}
