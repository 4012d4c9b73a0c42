package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/penwyp/go-chat-recap/internal/util"
)

// Table renders bordered rows. Column widths follow display width, so wide
// runes in sender names stay aligned.
type Table struct {
	headers []string
	// rightAlign marks numeric columns.
	rightAlign []bool
	rows       [][]string
	maxWidth   int
}

// NewTable creates a table. Columns listed in numeric are right-aligned.
func NewTable(headers []string, numeric ...int) *Table {
	align := make([]bool, len(headers))
	for _, i := range numeric {
		if i >= 0 && i < len(align) {
			align[i] = true
		}
	}
	return &Table{headers: headers, rightAlign: align, maxWidth: 32}
}

// AddRow appends a row; missing cells render empty.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	copy(row, values)
	t.rows = append(t.rows, row)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) {
	widths := t.calculateColumnWidths()

	t.printBorder(w, widths, "top")
	t.printRow(w, t.headers, widths)
	t.printBorder(w, widths, "middle")
	for _, row := range t.rows {
		t.printRow(w, row, widths)
	}
	t.printBorder(w, widths, "bottom")
}

// calculateColumnWidths determines optimal width for each column based on content
func (t *Table) calculateColumnWidths() []int {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = util.GetDisplayWidth(header)
	}
	for _, row := range t.rows {
		for i, value := range row {
			if w := util.GetDisplayWidth(value); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		if widths[i] > t.maxWidth {
			widths[i] = t.maxWidth
		}
	}
	return widths
}

// printBorder prints table borders (top, middle, bottom)
func (t *Table) printBorder(w io.Writer, widths []int, borderType string) {
	var left, middle, right string

	switch borderType {
	case "top":
		left, middle, right = "┌", "┬", "┐"
	case "middle":
		left, middle, right = "├", "┼", "┤"
	case "bottom":
		left, middle, right = "└", "┴", "┘"
	}

	var b strings.Builder
	b.WriteString(left)
	for i, width := range widths {
		b.WriteString(strings.Repeat("─", width+2)) // +2 for padding spaces
		if i < len(widths)-1 {
			b.WriteString(middle)
		}
	}
	b.WriteString(right)
	fmt.Fprintln(w, b.String())
}

// printRow prints a data row with proper alignment
func (t *Table) printRow(w io.Writer, values []string, widths []int) {
	var b strings.Builder
	b.WriteString("│")
	for i, value := range values {
		value = util.TruncateString(value, widths[i])
		b.WriteString(" ")
		b.WriteString(util.PadString(value, widths[i], !t.rightAlign[i]))
		b.WriteString(" │")
	}
	fmt.Fprintln(w, b.String())
}
