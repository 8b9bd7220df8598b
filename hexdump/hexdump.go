// Package hexdump renders remote memory for inspection, with patched byte
// ranges highlighted.
package hexdump

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"patchlauncher/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Range is a highlighted span of Size bytes starting at Address
type Range struct {
	Address process.ProcessMemoryAddress
	Size    int
}

func (r Range) contains(addr process.ProcessMemoryAddress) bool {
	return addr >= r.Address && addr < r.Address+process.ProcessMemoryAddress(r.Size)
}

// Options controls the layout
type Options struct {
	// BytesPerLine defaults to 16 when not positive
	BytesPerLine int

	// Color enables ANSI colors; when false the output is plain text
	Color bool

	Highlight []Range
}

// DefaultOptions returns a colored 16 byte layout
func DefaultOptions() Options {
	return Options{BytesPerLine: 16, Color: true}
}

var (
	offsetColor    = coloransi.Cyan
	hexColor       = coloransi.Green
	zeroColor      = coloransi.BrightBlack
	highlightColor = coloransi.Yellow
	background     = coloransi.Black
)

// Dump renders data read from base with the default layout
func Dump(data []byte, base process.ProcessMemoryAddress, highlight ...Range) string {
	opts := DefaultOptions()
	opts.Highlight = highlight
	return DumpWithOptions(data, base, opts)
}

// DumpWithOptions renders data read from base
func DumpWithOptions(data []byte, base process.ProcessMemoryAddress, opts Options) string {
	var buf bytes.Buffer
	DumpToWriter(&buf, data, base, opts)
	return buf.String()
}

// DumpToWriter writes one line per BytesPerLine bytes:
//
//	00433391  90 90 90 90 90 90 90 90 | 90 90 90 90 90 00 00 00 | ................
func DumpToWriter(w io.Writer, data []byte, base process.ProcessMemoryAddress, opts Options) {
	if opts.BytesPerLine <= 0 {
		opts.BytesPerLine = 16
	}
	for offset := 0; offset < len(data); offset += opts.BytesPerLine {
		end := offset + opts.BytesPerLine
		if end > len(data) {
			end = len(data)
		}
		writeLine(w, data[offset:end], base+process.ProcessMemoryAddress(offset), opts)
	}
}

func (o Options) highlighted(addr process.ProcessMemoryAddress) bool {
	for _, r := range o.Highlight {
		if r.contains(addr) {
			return true
		}
	}
	return false
}

func (o Options) paint(fg coloransi.ColorCode, s string) string {
	if !o.Color {
		return s
	}
	return coloransi.Color(fg, background, s)
}

func writeLine(w io.Writer, line []byte, addr process.ProcessMemoryAddress, opts Options) {
	cells := make([]string, opts.BytesPerLine)
	ascii := make([]byte, len(line))
	for i := range cells {
		if i >= len(line) {
			cells[i] = "  "
			continue
		}

		b := line[i]
		color := hexColor
		switch {
		case opts.highlighted(addr + process.ProcessMemoryAddress(i)):
			color = highlightColor
		case b == 0:
			color = zeroColor
		}
		cells[i] = opts.paint(color, fmt.Sprintf("%02x", b))

		ascii[i] = '.'
		if b >= 0x20 && b < 0x7f {
			ascii[i] = b
		}
	}

	hexColumn := strings.Join(cells, " ")
	if opts.BytesPerLine >= 8 {
		mid := opts.BytesPerLine / 2
		hexColumn = strings.Join(cells[:mid], " ") + " | " + strings.Join(cells[mid:], " ")
	}

	fmt.Fprintf(w, "%s  %s | %s\n", opts.paint(offsetColor, fmt.Sprintf("%08x", uint64(addr))), hexColumn, ascii)
}
