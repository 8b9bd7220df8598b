package patcher

import (
	"math/rand"
	"net"
	"testing"

	"patchlauncher/memstream"
	"patchlauncher/process"
	"patchlauncher/process_mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTarget(t *testing.T) (*process_mock.Platform, process.ProcessID, *memstream.Stream) {
	t.Helper()
	mock := process_mock.New()
	pid := mock.Spawn("client.exe")
	s, err := memstream.Open(mock, pid, memstream.Write)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return mock, pid, s
}

func TestPortPatchValid(t *testing.T) {
	ports := []int{1, 80, 255, 256, 4200, 7171, 65535}
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		ports = append(ports, 1+r.Intn(65535))
	}

	for _, port := range ports {
		mock, pid, s := openTarget(t)
		p := New(Version741, s)

		require.NoError(t, p.PatchPort(port))
		got := mock.Bytes(pid, Version741.Addresses.Port, 2)
		assert.Equal(t, []byte{byte(port & 0xFF), byte((port >> 8) & 0xFF)}, got, "port %d", port)
		assert.Equal(t, 2, mock.Written(pid), "port %d", port)
	}
}

func TestPortPatchInvalid(t *testing.T) {
	for _, port := range []int{0, -1, -65535, 65536, 1 << 20} {
		mock, pid, s := openTarget(t)
		p := New(Version741, s)

		var argErr *process.ArgumentError
		require.ErrorAs(t, p.PatchPort(port), &argErr, "port %d", port)
		assert.Equal(t, "port", argErr.Name)
		assert.Zero(t, mock.Written(pid))
		_, writes := mock.Calls()
		assert.Zero(t, writes)
	}
}

func TestHostnamePatch(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	ips := []net.IP{net.IPv4(127, 0, 0, 1), net.IPv4(0, 0, 0, 0), net.IPv4(255, 255, 255, 255)}
	for i := 0; i < 20; i++ {
		ips = append(ips, net.IPv4(byte(r.Intn(256)), byte(r.Intn(256)), byte(r.Intn(256)), byte(r.Intn(256))))
	}

	for _, ip := range ips {
		mock, pid, s := openTarget(t)
		p := New(Version741, s)
		require.NoError(t, p.PatchHostname(ip))

		o := ip.To4()
		want := []byte{0x6A, o[3], 0x6A, o[2], 0x6A, o[1], 0x6A, o[0]}
		assert.Equal(t, want, mock.Bytes(pid, Version741.Addresses.Hostname, 8), "ip %s", ip)
		assert.Equal(t, nops(13), mock.Bytes(pid, Version741.Addresses.SkipHostname, 13), "ip %s", ip)
		assert.Equal(t, 8+13, mock.Written(pid), "ip %s", ip)
	}
}

func TestHostnamePatchRejectsIPv6(t *testing.T) {
	mock, pid, s := openTarget(t)
	p := New(Version741, s)

	var argErr *process.ArgumentError
	require.ErrorAs(t, p.PatchHostname(net.ParseIP("::1")), &argErr)
	assert.Zero(t, mock.Written(pid))
}

func TestFixedPatches(t *testing.T) {
	mock, pid, s := openTarget(t)
	p := New(Version741, s)

	require.NoError(t, p.SkipIntro())
	require.NoError(t, p.AllowMultipleInstances())

	assert.Equal(t, []byte{0x83, 0xFA, 0x00, 0x90, 0x90, 0x90}, mock.Bytes(pid, 0x42E61F, 6))
	assert.Equal(t, []byte{0x31, 0xC0, 0x90, 0x90, 0x90, 0x90}, mock.Bytes(pid, 0x57A7CE, 6))
}

func TestHideWalls(t *testing.T) {
	mock, pid, s := openTarget(t)

	// Version741 has no hide-walls site
	require.ErrorIs(t, New(Version741, s).HideWalls(), ErrPatchUnavailable)
	assert.Zero(t, mock.Written(pid))

	v := Version741
	v.Addresses.HideWalls = 0x4A1B20
	require.NoError(t, New(v, s).HideWalls())
	assert.Equal(t, []byte{0xEB, 0x17, 0x90}, mock.Bytes(pid, 0x4A1B20, 3))
}

func TestPatchesAreIdempotent(t *testing.T) {
	mock, pid, s := openTarget(t)
	p := New(Version741, s)

	require.NoError(t, p.SkipIntro())
	first := mock.Bytes(pid, Version741.Addresses.SkipIntro, 8)
	require.NoError(t, p.SkipIntro())
	assert.Equal(t, first, mock.Bytes(pid, Version741.Addresses.SkipIntro, 8))
}

func TestApplyVersion741(t *testing.T) {
	mock, pid, s := openTarget(t)
	p := New(Version741, s)

	err := p.Apply(Options{
		Address:           net.ParseIP("127.0.0.1"),
		Port:              4200,
		SkipIntro:         true,
		MultipleInstances: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []byte{0x6A, 0x01, 0x6A, 0x00, 0x6A, 0x00, 0x6A, 0x7F}, mock.Bytes(pid, 0x4333C2, 8))
	assert.Equal(t, nops(13), mock.Bytes(pid, 0x433391, 13))
	// 4200 is 0x1068, low byte first
	assert.Equal(t, []byte{0x68, 0x10}, mock.Bytes(pid, 0x4333E4, 2))
	assert.Equal(t, []byte{0x83, 0xFA, 0x00, 0x90, 0x90, 0x90}, mock.Bytes(pid, 0x42E61F, 6))
	assert.Equal(t, []byte{0x31, 0xC0, 0x90, 0x90, 0x90, 0x90}, mock.Bytes(pid, 0x57A7CE, 6))
	assert.Equal(t, 8+13+2+6+6, mock.Written(pid))
}

func TestApplyValidatesBeforeWriting(t *testing.T) {
	mock, pid, s := openTarget(t)
	p := New(Version741, s)

	// hide walls is unavailable; the earlier patches must not be written
	err := p.Apply(Options{Address: net.IPv4(10, 0, 0, 1), Port: 7171, SkipIntro: true, HideWalls: true})
	require.ErrorIs(t, err, ErrPatchUnavailable)
	assert.Zero(t, mock.Written(pid))

	err = p.Apply(Options{Address: net.IPv4(10, 0, 0, 1), SkipIntro: true})
	var argErr *process.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Zero(t, mock.Written(pid))
}

func TestPlanOrder(t *testing.T) {
	plan, err := Plan(Version741, Options{Address: net.IPv4(1, 2, 3, 4), Port: 1, SkipIntro: true, MultipleInstances: true})
	require.NoError(t, err)

	var names []string
	for _, p := range plan {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"hostname", "skip-hostname", "port", "skip-intro", "multiple-instances"}, names)

	plan, err = Plan(Version741, Options{})
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestWriteFailureIsReported(t *testing.T) {
	mock, _, s := openTarget(t)
	mock.ShortWrite = 1
	p := New(Version741, s)

	var memErr *process.MemoryAccessError
	require.ErrorAs(t, p.SkipIntro(), &memErr)
	assert.Equal(t, Version741.Addresses.SkipIntro, memErr.Address)
}

func TestCloseLeavesStreamOpen(t *testing.T) {
	_, _, s := openTarget(t)
	p := New(Version741, s)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.SkipIntro(), process.ErrClosed)

	// the stream is still usable by its owner
	_, err := s.Write([]byte{0x90})
	require.NoError(t, err)
}

func TestOwningCloseClosesStream(t *testing.T) {
	_, _, s := openTarget(t)
	p := NewOwning(Version741, s)

	require.NoError(t, p.Close())
	_, err := s.Write([]byte{0x90})
	assert.ErrorIs(t, err, process.ErrClosed)
}

func TestPortBytesLittleEndian(t *testing.T) {
	cases := []struct {
		port int
		want []byte
	}{
		{4200, []byte{0x68, 0x10}},
		{4232, []byte{0x88, 0x10}},
		{7171, []byte{0x03, 0x1C}},
		{1, []byte{0x01, 0x00}},
		{65535, []byte{0xFF, 0xFF}},
	}
	for _, tc := range cases {
		got, err := PortBytes(tc.port)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "port %d", tc.port)
	}
}
