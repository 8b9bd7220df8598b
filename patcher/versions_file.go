package patcher

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"patchlauncher/process"
)

// versionFileEntry is one client build in a versions file. Addresses are
// strings so that they can be written in hex ("0x4333C2").
type versionFileEntry struct {
	Name      string            `json:"name"`
	Code      int               `json:"code"`
	Hash      string            `json:"hash"`
	Addresses map[string]string `json:"addresses"`
}

// LoadVersionsFile returns a registry of the built-in versions plus those
// described in the JSON file at path. An entry with the name of a built-in
// version replaces it.
func LoadVersionsFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read versions file: %w", err)
	}

	var entries []versionFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse versions file %s: %w", path, err)
	}

	merged := make([]ClientVersion, 0, len(entries)+1)
	replaced := make(map[string]bool)
	for _, e := range entries {
		v, err := e.toClientVersion()
		if err != nil {
			return nil, fmt.Errorf("versions file %s: %w", path, err)
		}
		replaced[v.Name] = true
		merged = append(merged, v)
	}
	for _, v := range builtinVersions() {
		if !replaced[v.Name] {
			merged = append(merged, v)
		}
	}
	return NewRegistry(merged...)
}

func (e versionFileEntry) toClientVersion() (ClientVersion, error) {
	v := ClientVersion{Name: e.Name, Code: e.Code, Hash: e.Hash}
	fields := map[string]*process.ProcessMemoryAddress{
		"hostname":           &v.Addresses.Hostname,
		"skip_hostname":      &v.Addresses.SkipHostname,
		"port":               &v.Addresses.Port,
		"skip_intro":         &v.Addresses.SkipIntro,
		"multiple_instances": &v.Addresses.MultipleInstances,
		"hide_walls":         &v.Addresses.HideWalls,
	}
	for key, raw := range e.Addresses {
		dst, ok := fields[key]
		if !ok {
			return ClientVersion{}, &process.ArgumentError{Name: "address key", Value: key, Reason: "unknown patch site in " + e.Name}
		}
		addr, err := strconv.ParseUint(raw, 0, 64)
		if err != nil {
			return ClientVersion{}, &process.ArgumentError{Name: key + " address", Value: raw, Reason: err.Error()}
		}
		*dst = process.ProcessMemoryAddress(addr)
	}
	return v, nil
}
