package process

import (
	"fmt"
)

// ProcessMemoryAddress represents a virtual address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// AccessRights is the set of capabilities requested when a process handle is opened.
type AccessRights uint32

const (
	AccessVMOperation AccessRights = 1 << iota
	AccessVMRead
	AccessVMWrite
	AccessCreateThread
	AccessQueryInformation
)

// Has reports whether every bit in want is present.
func (a AccessRights) Has(want AccessRights) bool {
	return a&want == want
}

func (a AccessRights) String() string {
	names := []string{"vm-operation", "vm-read", "vm-write", "create-thread", "query-information"}
	s := ""
	for i, name := range names {
		if a&(1<<i) == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	if s == "" {
		return "none"
	}
	return s
}
