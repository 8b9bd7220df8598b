package process

import (
	"fmt"
	"strings"

	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// FindProcessByPID returns name and executable information for a running pid
func FindProcessByPID(pid ProcessID) (*ProcessInfo, error) {
	p, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}

	info := &ProcessInfo{PID: pid}
	if info.Name, err = p.Name(); err != nil {
		return nil, fmt.Errorf("process %d name: %w", pid, err)
	}

	// Exe needs more privileges than Name on some systems
	info.Exe, _ = p.Exe()
	return info, nil
}

// FindProcessByName finds running processes whose executable name equals name,
// ignoring case
func FindProcessByName(name string) ([]ProcessInfo, error) {
	procs, err := gopsprocess.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var matches []ProcessInfo
	for _, p := range procs {
		pname, err := p.Name()
		if err != nil || !strings.EqualFold(pname, name) {
			continue
		}
		exe, _ := p.Exe()
		matches = append(matches, ProcessInfo{PID: ProcessID(p.Pid), Name: pname, Exe: exe})
	}
	return matches, nil
}
