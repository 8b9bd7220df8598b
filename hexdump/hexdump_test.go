package hexdump

import (
	"strings"
	"testing"

	"patchlauncher/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plain() Options {
	return Options{BytesPerLine: 16}
}

func TestFullLine(t *testing.T) {
	data := []byte("0123456789abcdef")
	got := DumpWithOptions(data, 0x433391, plain())

	want := "00433391  30 31 32 33 34 35 36 37 | 38 39 61 62 63 64 65 66 | 0123456789abcdef\n"
	assert.Equal(t, want, got)
}

func TestShortLineIsPadded(t *testing.T) {
	got := DumpWithOptions([]byte("ABC"), 0x10, plain())

	left := "41 42 43" + strings.Repeat("   ", 5)
	right := strings.TrimSuffix(strings.Repeat("   ", 8), " ")
	assert.Equal(t, "00000010  "+left+" | "+right+" | ABC\n", got)
}

func TestLinesAdvanceAddress(t *testing.T) {
	data := make([]byte, 40)
	data[0] = 0x90
	data[39] = 0x0A

	lines := strings.Split(strings.TrimSuffix(DumpWithOptions(data, 0x400000, plain()), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "00400000  90 00"))
	assert.True(t, strings.HasPrefix(lines[1], "00400010  "))
	assert.True(t, strings.HasPrefix(lines[2], "00400020  "))
	assert.True(t, strings.HasSuffix(lines[2], "| ........"))
}

func TestHighlightColorsOnlyRange(t *testing.T) {
	data := []byte{0x11, 0x90, 0x90, 0x22}
	got := Dump(data, 0x1000, Range{Address: 0x1001, Size: 2})

	mark := coloransi.Color(highlightColor, background, "90")
	assert.Equal(t, 2, strings.Count(got, mark))
	assert.Contains(t, got, coloransi.Color(hexColor, background, "11"))
	assert.Contains(t, got, coloransi.Color(hexColor, background, "22"))
}

func TestRangeContains(t *testing.T) {
	r := Range{Address: process.ProcessMemoryAddress(0x10), Size: 2}
	assert.False(t, r.contains(0x0F))
	assert.True(t, r.contains(0x10))
	assert.True(t, r.contains(0x11))
	assert.False(t, r.contains(0x12))
}
