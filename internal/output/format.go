// Package output provides formatters for CLI output.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

// Format selects how a grid is printed.
type Format string

const (
	FormatAuto  Format = ""
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatAuto, FormatTable, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q: use 'table' or 'csv'", s)
	}
}

// Resolve turns FormatAuto into a table on a terminal and CSV otherwise.
func (f Format) Resolve(w io.Writer) Format {
	if f != FormatAuto {
		return f
	}
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return FormatTable
	}
	return FormatCSV
}

// WriteGrid prints grid (header row first) in format f.
func WriteGrid(w io.Writer, grid [][]any, f Format) error {
	if f.Resolve(w) == FormatTable {
		return WriteTable(w, grid)
	}
	return WriteCSV(w, grid)
}

// WriteCSV prints grid as CSV.
func WriteCSV(w io.Writer, grid [][]any) error {
	cw := csv.NewWriter(w)
	for _, row := range grid {
		if err := cw.Write(texts(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable prints grid as aligned columns, the header underlined.
func WriteTable(w io.Writer, grid [][]any) error {
	if len(grid) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, row := range grid {
		cells := texts(row)
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
		if i == 0 {
			rule := make([]string, len(cells))
			for j, c := range cells {
				rule[j] = strings.Repeat("-", max(len(c), 1))
			}
			fmt.Fprintln(tw, strings.Join(rule, "\t"))
		}
	}
	return tw.Flush()
}

// FormatWritten reports where a result was written.
// Format: "wrote {N} row(s) to {TARGET}\n"
func FormatWritten(w io.Writer, rows int, target string) {
	noun := "rows"
	if rows == 1 {
		noun = "row"
	}
	fmt.Fprintf(w, "wrote %d %s to %s\n", rows, noun, target)
}

// FormatPending tells the user a task outlived the poll budget.
func FormatPending(w io.Writer, taskID string) {
	fmt.Fprintf(w, "task %s is still running; run 'sheetrow resume' to continue waiting\n", taskID)
}

// FormatNoResults reports a task that completed without rows.
func FormatNoResults(w io.Writer) {
	fmt.Fprintln(w, "no results")
}

func texts(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = cellText(v)
	}
	return out
}

// cellText renders one cell. Tabs and newlines become spaces so a table row
// stays on one line.
func cellText(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		s = fmt.Sprint(v)
	}
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(s)
}
