package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrValidation is the parent of every selection error.
	// Selections that fail validation are never sent to the remote service.
	ErrValidation = errors.New("invalid selection")

	// ErrEmptySelection means no column holds any data below the header row.
	ErrEmptySelection = fmt.Errorf("%w: no columns contain data", ErrValidation)

	// ErrNoData means every data row was blank.
	ErrNoData = fmt.Errorf("%w: no data rows found", ErrValidation)

	// ErrDuplicateHeader is matched by every *DuplicateHeaderError.
	ErrDuplicateHeader = fmt.Errorf("%w: duplicate column header", ErrValidation)

	// ErrEmptyResult means there were no records to lay out as a grid.
	ErrEmptyResult = errors.New("no results")
)

// DuplicateHeaderError reports two data columns resolving to the same header.
type DuplicateHeaderError struct {
	Header string
	First  int // zero-based column index of the first occurrence
	Second int
}

func (e *DuplicateHeaderError) Error() string {
	return fmt.Sprintf("duplicate column header %q in columns %s and %s",
		e.Header, ColumnLetters(e.First), ColumnLetters(e.Second))
}

func (e *DuplicateHeaderError) Unwrap() error { return ErrDuplicateHeader }

// ColumnLetters returns the spreadsheet letters for a zero-based column index:
// 0 -> A, 25 -> Z, 26 -> AA, 701 -> ZZ, 702 -> AAA.
func ColumnLetters(index int) string {
	if index < 0 {
		return ""
	}
	var buf []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		buf = append(buf, byte('A'+(n-1)%26))
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// PlaceholderHeader is the header given to a data column whose header cell is blank.
func PlaceholderHeader(index int) string {
	return "Column " + ColumnLetters(index)
}

// IsEmpty reports whether a cell counts as blank: nil, or a string that is
// empty after trimming. Zero and false are values.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// cell returns grid[row][col], treating cells past the end of a ragged row as nil.
func cell(grid [][]any, row, col int) any {
	if row >= len(grid) || col >= len(grid[row]) {
		return nil
	}
	return grid[row][col]
}

func headerText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// FromGrid converts a selection into records. Row 0 holds the headers and the
// remaining rows hold data. Columns with no data are dropped, blank headers get
// a placeholder, and blank rows are skipped.
func FromGrid(grid [][]any) ([]Record, error) {
	if len(grid) < 2 {
		return nil, ErrEmptySelection
	}

	width := 0
	for _, row := range grid {
		width = max(width, len(row))
	}

	var cols []int
	for c := 0; c < width; c++ {
		for r := 1; r < len(grid); r++ {
			if !IsEmpty(cell(grid, r, c)) {
				cols = append(cols, c)
				break
			}
		}
	}
	if len(cols) == 0 {
		return nil, ErrEmptySelection
	}

	headers := make([]string, len(cols))
	seen := make(map[string]int, len(cols))
	for i, c := range cols {
		h := headerText(cell(grid, 0, c))
		if h == "" {
			h = PlaceholderHeader(c)
		}
		if first, dup := seen[h]; dup {
			return nil, &DuplicateHeaderError{Header: h, First: first, Second: c}
		}
		seen[h] = c
		headers[i] = h
	}

	var out []Record
	for r := 1; r < len(grid); r++ {
		blank := true
		for _, c := range cols {
			if !IsEmpty(cell(grid, r, c)) {
				blank = false
				break
			}
		}
		if blank {
			continue
		}
		rec := New()
		for i, c := range cols {
			rec.Set(headers[i], cell(grid, r, c))
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// Headers returns the union of keys across recs in first-seen order.
func Headers(recs []Record) []string {
	var headers []string
	seen := make(map[string]bool)
	for i := range recs {
		for _, k := range recs[i].Keys() {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	return headers
}

// ToGrid lays records out as a grid with a header row. Missing keys become
// empty strings and structured values are written as JSON text.
func ToGrid(recs []Record) ([][]any, error) {
	if len(recs) == 0 {
		return nil, ErrEmptyResult
	}
	headers := Headers(recs)

	grid := make([][]any, 0, len(recs)+1)
	head := make([]any, len(headers))
	for i, h := range headers {
		head[i] = h
	}
	grid = append(grid, head)

	for i := range recs {
		row := make([]any, len(headers))
		for j, h := range headers {
			v, ok := recs[i].Get(h)
			if !ok {
				row[j] = ""
				continue
			}
			row[j] = cellValue(v)
		}
		grid = append(grid, row)
	}
	return grid, nil
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, bool, float64, float32, int, int64, int32:
		return t
	case Record:
		return jsonText(t)
	case json.Number:
		return t.String()
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
		return jsonText(v)
	}
	return v
}

func jsonText(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
