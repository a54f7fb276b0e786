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
	Register(&DedupeCmd{})
}

// DedupeCmd implements the dedupe command.
type DedupeCmd struct {
	input       inputFlags
	equivalence string
}

func (c *DedupeCmd) Name() string      { return "dedupe" }
func (c *DedupeCmd) Aliases() []string { return nil }
func (c *DedupeCmd) Synopsis() string  { return "Keep one row per group of equivalent rows" }
func (c *DedupeCmd) Usage() string     { return "sheetrow dedupe [input flags] --equivalence <text>" }
func (c *DedupeCmd) NeedsAuth() bool   { return true }

func (c *DedupeCmd) RegisterFlags(fs *flag.FlagSet) {
	c.input.register(fs)
	fs.StringVar(&c.equivalence, "equivalence", "", "")
}

func (c *DedupeCmd) Run(ctx context.Context, cfg *config.Config, svc *service.Services, args []string, out, errOut io.Writer) int {
	op := operations.Dedupe{EquivalenceRelation: taskText(c.equivalence, args)}
	return runOperation(ctx, cfg, svc, &c.input, staticOp(op), out, errOut)
}
