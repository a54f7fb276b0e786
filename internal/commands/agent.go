package commands

import (
	"context"
	"flag"
	"io"
	"strings"

	"sheetrow/internal/config"
	"sheetrow/internal/operations"
	"sheetrow/internal/service"
)

func init() {
	Register(&AgentCmd{})
}

// AgentCmd implements the agent command.
type AgentCmd struct {
	input  inputFlags
	task   string
	fields string
}

func (c *AgentCmd) Name() string      { return "agent" }
func (c *AgentCmd) Aliases() []string { return nil }
func (c *AgentCmd) Synopsis() string  { return "Research every row and fill in new columns" }
func (c *AgentCmd) Usage() string {
	return "sheetrow agent [input flags] [--fields <a,b,...>] --task <text>"
}
func (c *AgentCmd) NeedsAuth() bool { return true }

func (c *AgentCmd) RegisterFlags(fs *flag.FlagSet) {
	c.input.register(fs)
	fs.StringVar(&c.task, "task", "", "")
	fs.StringVar(&c.fields, "fields", "", "")
}

func (c *AgentCmd) Run(ctx context.Context, cfg *config.Config, svc *service.Services, args []string, out, errOut io.Writer) int {
	var fields []string
	if c.fields != "" {
		fields = strings.Split(c.fields, ",")
	}
	op := operations.Agent{Task: taskText(c.task, args), Fields: fields}
	return runOperation(ctx, cfg, svc, &c.input, staticOp(op), out, errOut)
}
