package patcher

import (
	"fmt"
	"sort"
	"strings"

	"patchlauncher/process"
)

// AddressTable holds the patch sites of one client build. A zero address
// means the patch is not available for that build.
type AddressTable struct {
	Hostname          process.ProcessMemoryAddress
	SkipHostname      process.ProcessMemoryAddress
	Port              process.ProcessMemoryAddress
	SkipIntro         process.ProcessMemoryAddress
	MultipleInstances process.ProcessMemoryAddress
	HideWalls         process.ProcessMemoryAddress
}

// ClientVersion binds one exact client executable, identified by the SHA-256
// of its contents, to the patch sites valid for that build only.
type ClientVersion struct {
	Name      string
	Code      int
	Hash      string // lowercase hex SHA-256
	Addresses AddressTable
}

func (v ClientVersion) String() string {
	return fmt.Sprintf("%s (%d)", v.Name, v.Code)
}

// PlaceholderHash marks a version whose content hash is not known. Such a
// version is never matched by ByHash; its real digest has to be supplied
// with a versions file (see LoadVersionsFile).
const PlaceholderHash = "0000000000000000000000000000000000000000000000000000000000000000"

// HasContentHash reports whether v carries a real content hash
func (v ClientVersion) HasContentHash() bool {
	return v.Hash != "" && v.Hash != PlaceholderHash
}

// Version741 is the 7.41 client. Its addresses are built in; its hash is
// PlaceholderHash, so launching a 7.41 client needs a versions file entry
// named Version741 with the digest of the deployed executable.
var Version741 = ClientVersion{
	Name: "Version741",
	Code: 741,
	Hash: PlaceholderHash,
	Addresses: AddressTable{
		Hostname:          0x4333C2,
		SkipHostname:      0x433391,
		Port:              0x4333E4,
		SkipIntro:         0x42E61F,
		MultipleInstances: 0x57A7CE,
	},
}

// Registry is an immutable lookup of client versions by content hash and name.
// It is safe for concurrent use.
type Registry struct {
	byHash map[string]ClientVersion
	byName map[string]ClientVersion
}

// NewRegistry builds a registry. Hashes and names must be unique.
func NewRegistry(versions ...ClientVersion) (*Registry, error) {
	r := &Registry{
		byHash: make(map[string]ClientVersion, len(versions)),
		byName: make(map[string]ClientVersion, len(versions)),
	}
	for _, v := range versions {
		if v.Name == "" {
			return nil, &process.ArgumentError{Name: "version name", Value: `""`, Reason: "empty"}
		}
		hash := strings.ToLower(v.Hash)
		if hash == "" {
			return nil, &process.ArgumentError{Name: "version hash", Value: v.Name, Reason: "empty"}
		}
		if prev, ok := r.byHash[hash]; ok {
			return nil, &process.ArgumentError{Name: "version hash", Value: hash, Reason: "already registered for " + prev.Name}
		}
		if _, ok := r.byName[v.Name]; ok {
			return nil, &process.ArgumentError{Name: "version name", Value: v.Name, Reason: "already registered"}
		}
		v.Hash = hash
		if v.HasContentHash() {
			r.byHash[hash] = v
		}
		r.byName[v.Name] = v
	}
	return r, nil
}

// DefaultRegistry returns a registry of the built-in client versions
func DefaultRegistry() *Registry {
	r, err := NewRegistry(builtinVersions()...)
	if err != nil {
		panic(err)
	}
	return r
}

func builtinVersions() []ClientVersion {
	return []ClientVersion{Version741}
}

// WithoutContentHash returns the registered versions that ByHash can never
// select, ordered by code
func (r *Registry) WithoutContentHash() []ClientVersion {
	var out []ClientVersion
	for _, v := range r.Versions() {
		if !v.HasContentHash() {
			out = append(out, v)
		}
	}
	return out
}

// ByHash returns the version whose content hash is hash
func (r *Registry) ByHash(hash string) (ClientVersion, bool) {
	v, ok := r.byHash[strings.ToLower(hash)]
	return v, ok
}

// ByName returns the version called name
func (r *Registry) ByName(name string) (ClientVersion, bool) {
	v, ok := r.byName[name]
	return v, ok
}

// Versions returns all versions ordered by code
func (r *Registry) Versions() []ClientVersion {
	out := make([]ClientVersion, 0, len(r.byName))
	for _, v := range r.byName {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Name < out[j].Name
	})
	return out
}
