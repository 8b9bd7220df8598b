package hexdump

import (
	"fmt"
	"io"
	"strings"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Column describes one table column. Format, when set, colors a cell after
// its width has been measured.
type Column struct {
	Header string
	Format func(string) string
}

// Table renders aligned rows of text; cell widths ignore ANSI escapes
type Table struct {
	columns []Column
	rows    [][]string
	widths  []int
}

// NewTable returns an empty table with the given columns
func NewTable(cols ...Column) *Table {
	t := &Table{columns: cols, widths: make([]int, len(cols))}
	for i, c := range cols {
		t.widths[i] = visibleLength(c.Header)
	}
	return t
}

// AddRow appends a row. Missing cells are shown as "-", extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		row[i] = "-"
		if i < len(cells) && cells[i] != "" {
			row[i] = cells[i]
		}
		t.widths[i] = max(t.widths[i], visibleLength(row[i]))
	}
	t.rows = append(t.rows, row)
}

// Render writes a header, a rule and every row
func (t *Table) Render(w io.Writer) error {
	header := make([]string, len(t.columns))
	rule := make([]string, len(t.columns))
	for i, c := range t.columns {
		header[i] = pad(c.Header, t.widths[i])
		rule[i] = strings.Repeat("-", t.widths[i])
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(header, " "), " ")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.Join(rule, " ")); err != nil {
		return err
	}

	for _, row := range t.rows {
		out := make([]string, len(row))
		for i, cell := range row {
			shown := cell
			if f := t.columns[i].Format; f != nil {
				shown = f(cell)
			}
			out[i] = pad(shown, t.widths[i])
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(out, " "), " ")); err != nil {
			return err
		}
	}
	return nil
}

// StatusFormat colors "applied" green and anything else red
func StatusFormat(s string) string {
	if s == "applied" {
		return coloransi.Color(coloransi.Green, background, s)
	}
	return coloransi.Color(coloransi.Red, background, s)
}

func pad(s string, width int) string {
	if n := visibleLength(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func visibleLength(s string) int {
	n := 0
	escape := false
	for _, r := range s {
		switch {
		case r == '\033':
			escape = true
		case escape:
			if r == 'm' {
				escape = false
			}
		default:
			n++
		}
	}
	return n
}
