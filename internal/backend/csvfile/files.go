// Package csvfile implements the service.Sheets interface on local CSV files.
// A selection is a whole file; results are written as new files in a directory.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"sheetrow/internal/service"
)

// Files reads and writes CSV files.
type Files struct{}

// New returns a CSV backed implementation of service.Sheets.
func New() *Files {
	return &Files{}
}

// ReadSelection reads the file at ref.Spreadsheet. All cells are strings.
func (f *Files) ReadSelection(ctx context.Context, ref service.SheetRef) ([][]any, error) {
	file, err := os.Open(ref.Spreadsheet)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("csv file %s: %w", ref.Spreadsheet, service.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", ref.Spreadsheet, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1 // rows may be ragged

	var grid [][]any
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv %s: %w", ref.Spreadsheet, err)
		}
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		grid = append(grid, cells)
	}
	return grid, nil
}

// WriteSheet writes grid to <ref.Spreadsheet>/<name>.csv, creating the
// directory if needed. A taken file name gets "-2", "-3", ... appended.
// Returns the path written.
func (f *Files) WriteSheet(ctx context.Context, ref service.SheetRef, name string, grid [][]any) (string, error) {
	dir := ref.Spreadsheet
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	file, path, err := createUnique(dir, FileName(name))
	if err != nil {
		return "", err
	}

	w := csv.NewWriter(file)
	for _, row := range grid {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cellText(v)
		}
		if err := w.Write(cells); err != nil {
			file.Close()
			return "", fmt.Errorf("writing %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// FileName turns a sheet name into a file base name: "Agent results" -> "agent-results".
func FileName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ' ' || r == '/' || r == '\\':
			return '-'
		case r < 0x20:
			return -1
		}
		return r
	}, name)
	if name == "" {
		return "results"
	}
	return name
}

// createUnique creates base.csv in dir, or the first free base-N.csv.
func createUnique(dir, base string) (*os.File, string, error) {
	for n := 1; ; n++ {
		name := base + ".csv"
		if n > 1 {
			name = fmt.Sprintf("%s-%d.csv", base, n)
		}
		path := filepath.Join(dir, name)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create %s: %w", path, err)
		}
		return file, path, nil
	}
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatFloat(t)
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) && f < 1e15 && f > -1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(f)
}
