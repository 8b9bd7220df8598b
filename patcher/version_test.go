package patcher

import (
	"os"
	"path/filepath"
	"testing"

	"patchlauncher/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	v, ok := r.ByName("Version741")
	require.True(t, ok)
	assert.Equal(t, 741, v.Code)
	assert.Equal(t, process.ProcessMemoryAddress(0x4333C2), v.Addresses.Hostname)

	// the built-in digest is a placeholder and never matches an executable
	assert.False(t, v.HasContentHash())
	_, ok = r.ByHash(v.Hash)
	assert.False(t, ok)
	require.Len(t, r.WithoutContentHash(), 1)
	assert.Equal(t, "Version741", r.WithoutContentHash()[0].Name)
}

func TestPlaceholderHashesDoNotCollide(t *testing.T) {
	r, err := NewRegistry(
		ClientVersion{Name: "A", Code: 1, Hash: PlaceholderHash},
		ClientVersion{Name: "B", Code: 2, Hash: PlaceholderHash},
		ClientVersion{Name: "C", Code: 3, Hash: "cc"},
	)
	require.NoError(t, err)

	_, ok := r.ByHash(PlaceholderHash)
	assert.False(t, ok)
	assert.Len(t, r.WithoutContentHash(), 2)

	v, ok := r.ByHash("CC")
	require.True(t, ok)
	assert.True(t, v.HasContentHash())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	a := ClientVersion{Name: "A", Code: 1, Hash: "AA"}
	b := ClientVersion{Name: "B", Code: 2, Hash: "aa"}

	_, err := NewRegistry(a, b)
	var argErr *process.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "version hash", argErr.Name)

	_, err = NewRegistry(a, ClientVersion{Name: "A", Hash: "bb"})
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "version name", argErr.Name)

	_, err = NewRegistry(ClientVersion{Name: "C"})
	require.ErrorAs(t, err, &argErr)
}

func TestRegistryHashIsCaseInsensitive(t *testing.T) {
	r, err := NewRegistry(ClientVersion{Name: "A", Hash: "ABCDEF"})
	require.NoError(t, err)

	v, ok := r.ByHash("abcdef")
	require.True(t, ok)
	assert.Equal(t, "abcdef", v.Hash)
}

func TestRegistryVersionsOrdered(t *testing.T) {
	r, err := NewRegistry(
		ClientVersion{Name: "V760", Code: 760, Hash: "02"},
		ClientVersion{Name: "V710", Code: 710, Hash: "01"},
	)
	require.NoError(t, err)

	versions := r.Versions()
	require.Len(t, versions, 2)
	assert.Equal(t, "V710", versions[0].Name)
	assert.Equal(t, "V760", versions[1].Name)
}

func TestLoadVersionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{
			"name": "Version760",
			"code": 760,
			"hash": "ffee",
			"addresses": {
				"hostname": "0x44A0B2",
				"skip_hostname": "0x44A081",
				"port": "4497620",
				"hide_walls": "0x4D1C0A"
			}
		},
		{
			"name": "Version741",
			"code": 741,
			"hash": "0101",
			"addresses": {"hostname": "0x4333C2"}
		}
	]`), 0o644))

	r, err := LoadVersionsFile(path)
	require.NoError(t, err)
	require.Len(t, r.Versions(), 2)

	v, ok := r.ByHash("FFEE")
	require.True(t, ok)
	assert.Equal(t, "Version760", v.Name)
	assert.Equal(t, process.ProcessMemoryAddress(0x44A0B2), v.Addresses.Hostname)
	assert.Equal(t, process.ProcessMemoryAddress(4497620), v.Addresses.Port)
	assert.Equal(t, process.ProcessMemoryAddress(0x4D1C0A), v.Addresses.HideWalls)
	assert.Zero(t, v.Addresses.SkipIntro)

	// the file entry replaced the built-in
	v, ok = r.ByName("Version741")
	require.True(t, ok)
	assert.Equal(t, "0101", v.Hash)
	assert.True(t, v.HasContentHash())
	assert.Empty(t, r.WithoutContentHash())
}

func TestLoadVersionsFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadVersionsFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"name":"X","hash":"01","addresses":{"wallhack":"0x1"}}]`), 0o644))
	_, err = LoadVersionsFile(bad)
	var argErr *process.ArgumentError
	require.ErrorAs(t, err, &argErr)

	badAddr := filepath.Join(dir, "addr.json")
	require.NoError(t, os.WriteFile(badAddr, []byte(`[{"name":"X","hash":"01","addresses":{"port":"zz"}}]`), 0o644))
	_, err = LoadVersionsFile(badAddr)
	require.ErrorAs(t, err, &argErr)
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.exe")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	hash, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hash)

	_, err = HashFile(filepath.Join(t.TempDir(), "none"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
