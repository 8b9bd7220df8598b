// Package patcher applies the byte-level patch catalog of a client build
// through a caller supplied io.WriteSeeker, usually a memstream.Stream over
// a suspended process.
//
// The patch bytes are literal x86 instructions for one exact build. Applying
// a ClientVersion to any other binary corrupts unrelated code, so callers
// must select the version by content hash first.
package patcher

import (
	"errors"
	"fmt"
	"io"
	"net"

	"patchlauncher/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// ErrPatchUnavailable is returned for a patch whose address is zero in the
// selected version's table
var ErrPatchUnavailable = errors.New("patch not available for this client version")

const (
	opPushImm8 = 0x6A
	opNop      = 0x90

	skipHostnameLength = 13
)

var (
	// cmp edx, 0 followed by nops: the intro check always passes
	skipIntroBytes = []byte{0x83, 0xFA, 0x00, 0x90, 0x90, 0x90}

	// xor eax, eax followed by nops: the single instance check never finds a mutex
	multipleInstancesBytes = []byte{0x31, 0xC0, 0x90, 0x90, 0x90, 0x90}

	// jmp short +0x17, nop: skip wall rendering
	hideWallsBytes = []byte{0xEB, 0x17, 0x90}
)

// Patch is one literal overwrite
type Patch struct {
	Name    string
	Address process.ProcessMemoryAddress
	Bytes   []byte
}

// Options selects the patches Apply writes. The server patches are applied
// when Address is set; Port is then required. Port may also be patched alone.
type Options struct {
	Address           net.IP
	Port              int
	SkipIntro         bool
	MultipleInstances bool
	HideWalls         bool
}

// HostnameBytes returns push-immediate instructions for each octet of ip in
// reverse order, replacing the hostname resolution call with a literal address
func HostnameBytes(ip net.IP) ([]byte, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, &process.ArgumentError{Name: "address", Value: ip, Reason: "not an IPv4 address"}
	}

	out := make([]byte, 0, 2*net.IPv4len)
	for i := net.IPv4len - 1; i >= 0; i-- {
		out = append(out, opPushImm8, ip4[i])
	}
	return out, nil
}

// PortBytes returns port as two little endian bytes
func PortBytes(port int) ([]byte, error) {
	if port < 1 || port > 65535 {
		return nil, &process.ArgumentError{Name: "port", Value: port, Reason: "must be in [1, 65535]"}
	}
	return []byte{byte(port & 0xFF), byte((port >> 8) & 0xFF)}, nil
}

func nops(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = opNop
	}
	return out
}

func site(name string, addr process.ProcessMemoryAddress, b []byte) (Patch, error) {
	if addr == 0 {
		return Patch{}, fmt.Errorf("%s: %w", name, ErrPatchUnavailable)
	}
	return Patch{Name: name, Address: addr, Bytes: b}, nil
}

// Plan returns the patches opts selects for version, in the order they are
// written. Every input is validated before anything is returned.
func Plan(version ClientVersion, opts Options) ([]Patch, error) {
	table := version.Addresses
	var plan []Patch

	add := func(name string, addr process.ProcessMemoryAddress, b []byte) error {
		p, err := site(name, addr, b)
		if err != nil {
			return err
		}
		plan = append(plan, p)
		return nil
	}

	if opts.Address != nil {
		host, err := HostnameBytes(opts.Address)
		if err != nil {
			return nil, err
		}
		if err := add("hostname", table.Hostname, host); err != nil {
			return nil, err
		}
		if err := add("skip-hostname", table.SkipHostname, nops(skipHostnameLength)); err != nil {
			return nil, err
		}
	}
	if opts.Address != nil || opts.Port != 0 {
		port, err := PortBytes(opts.Port)
		if err != nil {
			return nil, err
		}
		if err := add("port", table.Port, port); err != nil {
			return nil, err
		}
	}
	if opts.SkipIntro {
		if err := add("skip-intro", table.SkipIntro, skipIntroBytes); err != nil {
			return nil, err
		}
	}
	if opts.MultipleInstances {
		if err := add("multiple-instances", table.MultipleInstances, multipleInstancesBytes); err != nil {
			return nil, err
		}
	}
	if opts.HideWalls {
		if err := add("hide-walls", table.HideWalls, hideWallsBytes); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// Patcher writes patches for one client version. It never owns the process
// or its handles; the stream is closed by Close only when created with NewOwning.
type Patcher struct {
	version ClientVersion
	w       io.WriteSeeker
	owns    bool
	closed  bool
	log     *logger.Logger
}

// New returns a patcher writing through w. w stays open after Close.
func New(version ClientVersion, w io.WriteSeeker) *Patcher {
	return &Patcher{
		version: version,
		w:       w,
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "patcher-"+version.Name)),
	}
}

// NewOwning returns a patcher that closes w on Close if w is an io.Closer
func NewOwning(version ClientVersion, w io.WriteSeeker) *Patcher {
	p := New(version, w)
	p.owns = true
	return p
}

// Version returns the client version the patcher writes for
func (p *Patcher) Version() ClientVersion {
	return p.version
}

// Write applies one patch: seek to its address, then write its bytes
func (p *Patcher) Write(patch Patch) error {
	if p.closed {
		return process.ErrClosed
	}
	if _, err := p.w.Seek(int64(patch.Address), io.SeekStart); err != nil {
		return fmt.Errorf("%s: seek %s: %w", patch.Name, patch.Address.ToString(), err)
	}
	if _, err := p.w.Write(patch.Bytes); err != nil {
		return fmt.Errorf("%s: write %d bytes at %s: %w", patch.Name, len(patch.Bytes), patch.Address.ToString(), err)
	}
	p.log.Debugln("Patched", patch.Name, "at", patch.Address.ToString(), len(patch.Bytes), "bytes")
	return nil
}

func (p *Patcher) writeAll(patches []Patch) error {
	for _, patch := range patches {
		if err := p.Write(patch); err != nil {
			return err
		}
	}
	return nil
}

// Apply validates the whole plan for opts, then writes it
func (p *Patcher) Apply(opts Options) error {
	plan, err := Plan(p.version, opts)
	if err != nil {
		return err
	}
	if err := p.writeAll(plan); err != nil {
		return err
	}
	p.log.Infoln("Applied", len(plan), "patches for", p.version.String())
	return nil
}

// PatchHostname makes the client connect to ip instead of resolving its
// built-in hostname
func (p *Patcher) PatchHostname(ip net.IP) error {
	host, err := HostnameBytes(ip)
	if err != nil {
		return err
	}
	hostPatch, err := site("hostname", p.version.Addresses.Hostname, host)
	if err != nil {
		return err
	}
	skipPatch, err := site("skip-hostname", p.version.Addresses.SkipHostname, nops(skipHostnameLength))
	if err != nil {
		return err
	}
	return p.writeAll([]Patch{hostPatch, skipPatch})
}

// PatchPort replaces the server port. Nothing is written for an invalid port.
func (p *Patcher) PatchPort(port int) error {
	b, err := PortBytes(port)
	if err != nil {
		return err
	}
	return p.writeSite("port", p.version.Addresses.Port, b)
}

// SkipIntro forces the intro comparison to succeed
func (p *Patcher) SkipIntro() error {
	return p.writeSite("skip-intro", p.version.Addresses.SkipIntro, skipIntroBytes)
}

// AllowMultipleInstances defeats the single instance mutex check
func (p *Patcher) AllowMultipleInstances() error {
	return p.writeSite("multiple-instances", p.version.Addresses.MultipleInstances, multipleInstancesBytes)
}

// HideWalls turns the wall rendering branch into an unconditional jump
func (p *Patcher) HideWalls() error {
	return p.writeSite("hide-walls", p.version.Addresses.HideWalls, hideWallsBytes)
}

func (p *Patcher) writeSite(name string, addr process.ProcessMemoryAddress, b []byte) error {
	patch, err := site(name, addr, b)
	if err != nil {
		return err
	}
	return p.Write(patch)
}

// Close stops the patcher. The stream is closed only for an owning patcher.
func (p *Patcher) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if !p.owns {
		return nil
	}
	if c, ok := p.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
