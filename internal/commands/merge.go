package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"sheetrow/internal/config"
	"sheetrow/internal/operations"
	"sheetrow/internal/records"
	"sheetrow/internal/service"
)

func init() {
	Register(&MergeCmd{})
}

// MergeCmd implements the merge command. The input selection is the left
// table; the right table comes from a CSV file or another range.
type MergeCmd struct {
	input      inputFlags
	task       string
	rightCSV   string
	rightSheet string
	rightRange string
	leftKey    string
	rightKey   string
}

func (c *MergeCmd) Name() string      { return "merge" }
func (c *MergeCmd) Aliases() []string { return []string{"join"} }
func (c *MergeCmd) Synopsis() string  { return "Join the selection with a second table" }
func (c *MergeCmd) Usage() string {
	return "sheetrow merge [input flags] (--right-csv <file> | [--right-sheet <id>] --right-range <A1>) [--left-key <col>] [--right-key <col>] --task <text>"
}
func (c *MergeCmd) NeedsAuth() bool { return true }

func (c *MergeCmd) RegisterFlags(fs *flag.FlagSet) {
	c.input.register(fs)
	fs.StringVar(&c.task, "task", "", "")
	fs.StringVar(&c.rightCSV, "right-csv", "", "")
	fs.StringVar(&c.rightSheet, "right-sheet", "", "")
	fs.StringVar(&c.rightRange, "right-range", "", "")
	fs.StringVar(&c.leftKey, "left-key", "", "")
	fs.StringVar(&c.rightKey, "right-key", "", "")
}

func (c *MergeCmd) Run(ctx context.Context, cfg *config.Config, svc *service.Services, args []string, out, errOut io.Writer) int {
	task := taskText(c.task, args)
	build := func(ctx context.Context, svc *service.Services) (operations.Operation, error) {
		right, err := c.readRight(ctx, svc)
		if err != nil {
			return nil, err
		}
		return operations.Merge{
			Task:     task,
			Right:    right,
			LeftKey:  c.leftKey,
			RightKey: c.rightKey,
		}, nil
	}
	return runOperation(ctx, cfg, svc, &c.input, build, out, errOut)
}

func (c *MergeCmd) readRight(ctx context.Context, svc *service.Services) ([]records.Record, error) {
	var (
		src service.Sheets
		ref service.SheetRef
	)
	switch {
	case c.rightCSV != "" && c.rightRange != "":
		return nil, usagef("use either --right-csv or --right-range, not both")
	case c.rightCSV != "":
		src, ref = svc.Files, service.SheetRef{Spreadsheet: c.rightCSV}
	case c.rightRange != "":
		id := c.rightSheet
		if id == "" {
			id = c.input.sheetID
		}
		if id == "" {
			return nil, usagef("--right-range needs a spreadsheet: pass --right-sheet or --sheet")
		}
		if svc.Sheets == nil {
			return nil, errNotLoggedIn
		}
		src, ref = svc.Sheets, service.SheetRef{Spreadsheet: id, Range: c.rightRange}
	default:
		return nil, usagef("a right table is required: --right-csv <file> or --right-range <A1>")
	}

	grid, err := src.ReadSelection(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("read right table %s: %w", ref, err)
	}
	right, err := records.FromGrid(grid)
	if err != nil {
		return nil, fmt.Errorf("right table: %w", err)
	}
	return right, nil
}
