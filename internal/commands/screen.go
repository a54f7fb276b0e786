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
	Register(&ScreenCmd{})
}

// ScreenCmd implements the screen command.
type ScreenCmd struct {
	input inputFlags
	task  string
}

func (c *ScreenCmd) Name() string      { return "screen" }
func (c *ScreenCmd) Aliases() []string { return []string{"filter"} }
func (c *ScreenCmd) Synopsis() string  { return "Keep the rows that pass a criterion, with a reason" }
func (c *ScreenCmd) Usage() string     { return "sheetrow screen [input flags] --task <text>" }
func (c *ScreenCmd) NeedsAuth() bool   { return true }

func (c *ScreenCmd) RegisterFlags(fs *flag.FlagSet) {
	c.input.register(fs)
	fs.StringVar(&c.task, "task", "", "")
}

func (c *ScreenCmd) Run(ctx context.Context, cfg *config.Config, svc *service.Services, args []string, out, errOut io.Writer) int {
	op := operations.Screen{Task: taskText(c.task, args)}
	return runOperation(ctx, cfg, svc, &c.input, staticOp(op), out, errOut)
}
