package commands

import (
	"context"
	"flag"
	"io"

	"sheetrow/internal/config"
	"sheetrow/internal/operations"
	"sheetrow/internal/service"
)

func init() {
	Register(&RankCmd{})
}

// RankCmd implements the rank command.
type RankCmd struct {
	input     inputFlags
	task      string
	field     string
	ascending bool
}

func (c *RankCmd) Name() string      { return "rank" }
func (c *RankCmd) Aliases() []string { return nil }
func (c *RankCmd) Synopsis() string  { return "Score every row and sort by the score" }
func (c *RankCmd) Usage() string {
	return "sheetrow rank [input flags] [--field <name>] [--ascending] --task <text>"
}
func (c *RankCmd) NeedsAuth() bool { return true }

func (c *RankCmd) RegisterFlags(fs *flag.FlagSet) {
	c.input.register(fs)
	fs.StringVar(&c.task, "task", "", "")
	fs.StringVar(&c.field, "field", "", "")
	fs.BoolVar(&c.ascending, "ascending", false, "")
}

func (c *RankCmd) Run(ctx context.Context, cfg *config.Config, svc *service.Services, args []string, out, errOut io.Writer) int {
	op := operations.Rank{
		Task:      taskText(c.task, args),
		Field:     c.field,
		Ascending: c.ascending,
	}
	return runOperation(ctx, cfg, svc, &c.input, staticOp(op), out, errOut)
}
